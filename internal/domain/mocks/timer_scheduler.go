// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/talktime/meeting-engine/internal/domain/models"
)

// MockMeetingTimerScheduler implements MeetingTimerScheduler for testing
type MockMeetingTimerScheduler struct {
	mock.Mock
}

func (m *MockMeetingTimerScheduler) ScheduleMeetingTimers(meeting *models.Meeting) {
	m.Called(meeting)
}

func (m *MockMeetingTimerScheduler) ScheduleDisconnectTimer(meetingUID string, due time.Time) {
	m.Called(meetingUID, due)
}

func (m *MockMeetingTimerScheduler) CancelMeetingTimers(meetingUID string) {
	m.Called(meetingUID)
}

// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/talktime/meeting-engine/internal/domain/models"
)

// MockMeetingEventPublisher implements MeetingEventPublisher for testing
type MockMeetingEventPublisher struct {
	mock.Mock
}

func (m *MockMeetingEventPublisher) PublishMeetingEvent(ctx context.Context, event *models.MeetingEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockEventFlushKicker implements EventFlushKicker for testing
type MockEventFlushKicker struct {
	mock.Mock
}

func (m *MockEventFlushKicker) KickFlush(meetingUID string) {
	m.Called(meetingUID)
}

// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import (
	"time"

	"github.com/talktime/meeting-engine/internal/domain/models"
)

// MeetingTimerScheduler owns the wall-clock timers of live meetings. Services
// call it after committing a transition; the scheduler re-reads the record
// when a deadline fires, so a stale or duplicate arming is harmless.
type MeetingTimerScheduler interface {
	// ScheduleMeetingTimers reconciles the meeting's deadline entries with
	// its current state: pending meetings get their invitation expiry, active
	// meetings get the call-timer expiry and its warnings, terminal meetings
	// get everything canceled.
	ScheduleMeetingTimers(meeting *models.Meeting)

	// ScheduleDisconnectTimer starts the reconnection grace countdown after
	// the signaling service reports the room empty. A later room-active
	// report cancels it through ScheduleMeetingTimers.
	ScheduleDisconnectTimer(meetingUID string, due time.Time)

	// CancelMeetingTimers drops every deadline entry of the meeting.
	CancelMeetingTimers(meetingUID string)
}

// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MeetingStatus is the lifecycle state of a meeting.
type MeetingStatus string

const (
	// MeetingStatusScheduled is a booked meeting waiting for its start time.
	MeetingStatusScheduled MeetingStatus = "scheduled"
	// MeetingStatusPending is an instant call waiting for the volunteer to pick up.
	MeetingStatusPending MeetingStatus = "pending"
	// MeetingStatusActive is a call in progress.
	MeetingStatusActive MeetingStatus = "active"
	// MeetingStatusCompleted is the terminal state of a call that ran at least
	// the minimum duration.
	MeetingStatusCompleted MeetingStatus = "completed"
	// MeetingStatusEnded is the terminal state of a call ended before the
	// minimum duration. It counts toward nobody's statistics.
	MeetingStatusEnded MeetingStatus = "ended"
	// MeetingStatusCanceled is the terminal state of an explicitly canceled
	// meeting or an expired instant invitation.
	MeetingStatusCanceled MeetingStatus = "canceled"
	// MeetingStatusMissed is the terminal state of a scheduled meeting nobody
	// joined within the grace period.
	MeetingStatusMissed MeetingStatus = "missed"
)

// ParseMeetingStatus normalizes a status string. The double-L spelling
// "cancelled" is accepted on input; "canceled" is the canonical form.
func ParseMeetingStatus(raw string) (MeetingStatus, bool) {
	switch MeetingStatus(raw) {
	case MeetingStatusScheduled, MeetingStatusPending, MeetingStatusActive,
		MeetingStatusCompleted, MeetingStatusEnded, MeetingStatusCanceled, MeetingStatusMissed:
		return MeetingStatus(raw), true
	}
	if raw == "cancelled" {
		return MeetingStatusCanceled, true
	}
	return "", false
}

// UnmarshalJSON normalizes status spellings on every decode boundary.
func (s *MeetingStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*s = ""
		return nil
	}
	parsed, ok := ParseMeetingStatus(raw)
	if !ok {
		return fmt.Errorf("unknown meeting status %q", raw)
	}
	*s = parsed
	return nil
}

// IsTerminal reports whether the status is absorbing.
func (s MeetingStatus) IsTerminal() bool {
	switch s {
	case MeetingStatusCompleted, MeetingStatusEnded, MeetingStatusCanceled, MeetingStatusMissed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows moving from s to
// next. Terminal states allow no transition at all.
func (s MeetingStatus) CanTransitionTo(next MeetingStatus) bool {
	switch s {
	case MeetingStatusScheduled:
		return next == MeetingStatusActive || next == MeetingStatusCanceled || next == MeetingStatusMissed
	case MeetingStatusPending:
		return next == MeetingStatusActive || next == MeetingStatusCanceled
	case MeetingStatusActive:
		return next == MeetingStatusCompleted || next == MeetingStatusEnded || next == MeetingStatusCanceled
	}
	return false
}

// EndReason records why a meeting reached a terminal state.
type EndReason string

const (
	// EndReasonParticipantLeft is an explicit end or a disconnect that was not
	// followed by a reconnection within the grace window.
	EndReasonParticipantLeft EndReason = "participant_left"
	// EndReasonTimerExpired is the call timer running out.
	EndReasonTimerExpired EndReason = "timer_expired"
	// EndReasonCanceled is an explicit cancellation by a participant or admin.
	EndReasonCanceled EndReason = "canceled"
	// EndReasonAutoMissed is the grace-period sweep of a scheduled meeting
	// nobody joined.
	EndReasonAutoMissed EndReason = "auto_missed"
	// EndReasonResponseTimeout is an instant invitation the volunteer never
	// answered. It does not count against anyone's reputation.
	EndReasonResponseTimeout EndReason = "response_timeout"
)

// Meeting is the key-value store representation of a one-to-one meeting
// between a volunteer and a student.
type Meeting struct {
	UID               string         `json:"uid"`
	RoomUID           string         `json:"room_uid"`
	VolunteerUID      string         `json:"volunteer_uid"`
	StudentUID        string         `json:"student_uid"`
	ScheduledStart    time.Time      `json:"scheduled_start"`
	OriginalStart     *time.Time     `json:"original_start,omitempty"`
	ReservedDate      string         `json:"reserved_date,omitempty"`
	DurationMinutes   int            `json:"duration_minutes"`
	Status            MeetingStatus  `json:"status"`
	IsInstant         bool           `json:"is_instant"`
	RescheduleCount   int            `json:"reschedule_count,omitempty"`
	LastRescheduledAt *time.Time     `json:"last_rescheduled_at,omitempty"`
	RescheduledBy     string         `json:"rescheduled_by,omitempty"`
	ActualStart       *time.Time     `json:"actual_start,omitempty"`
	EndedAt           *time.Time     `json:"ended_at,omitempty"`
	EndedBy           string         `json:"ended_by,omitempty"`
	EndReason         EndReason      `json:"end_reason,omitempty"`
	ClearedByAdmin    bool           `json:"cleared_by_admin,omitempty"`
	EventSeq          uint64         `json:"event_seq"`
	PendingEvents     []MeetingEvent `json:"pending_events,omitempty"`
	CreatedAt         *time.Time     `json:"created_at,omitempty"`
	UpdatedAt         *time.Time     `json:"updated_at,omitempty"`
}

// RecordEvent bumps the event sequence and appends an event of the given kind
// to the pending queue, so the transition and its event land in the store in
// one write. The returned pointer lets the caller fill kind-specific payload
// fields before the meeting is persisted.
func (m *Meeting) RecordEvent(kind MeetingEventType, at time.Time) *MeetingEvent {
	m.EventSeq++
	m.PendingEvents = append(m.PendingEvents, NewMeetingEvent(kind, m, at))
	return &m.PendingEvents[len(m.PendingEvents)-1]
}

// IsParticipant reports whether the given user is one of the two meeting
// participants.
func (m *Meeting) IsParticipant(userUID string) bool {
	return userUID != "" && (userUID == m.VolunteerUID || userUID == m.StudentUID)
}

// HoldsDayReservation reports whether the meeting still occupies the given
// student-local day. Instant calls never reserve a day, terminal meetings
// have released theirs, and a reschedule moves the reservation with the
// meeting. Clearing a record does not free its day: the one-call-per-day
// rule holds for every scheduled or active meeting.
func (m *Meeting) HoldsDayReservation(localDate string) bool {
	if m.IsInstant || m.ReservedDate != localDate {
		return false
	}
	return m.Status == MeetingStatusScheduled || m.Status == MeetingStatusActive
}

// CountsTowardPairLimit reports whether the meeting consumes pair budget.
// Missed, canceled and short-ended meetings do not, nor do records an admin
// has cleared.
func (m *Meeting) CountsTowardPairLimit() bool {
	if m.ClearedByAdmin {
		return false
	}
	switch m.Status {
	case MeetingStatusMissed, MeetingStatusCanceled, MeetingStatusEnded:
		return false
	}
	return true
}

// ActualDurationMinutes is the whole minutes between the actual start and the
// end of the call. It is zero when the call never started or has not ended.
func (m *Meeting) ActualDurationMinutes() int {
	if m.ActualStart == nil || m.EndedAt == nil {
		return 0
	}
	elapsed := m.EndedAt.Sub(*m.ActualStart)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / time.Minute)
}

// ExpiryAt is the instant the call timer fires: actual start plus planned
// duration. It is only meaningful once the call has started.
func (m *Meeting) ExpiryAt() (time.Time, bool) {
	if m.ActualStart == nil {
		return time.Time{}, false
	}
	return m.ActualStart.Add(time.Duration(m.DurationMinutes) * time.Minute), true
}

// GraceDeadline is the instant a scheduled meeting becomes missed when nobody
// has joined.
func (m *Meeting) GraceDeadline(grace time.Duration) time.Time {
	return m.ScheduledStart.Add(grace)
}

// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MeetingEventType identifies a lifecycle event kind.
type MeetingEventType string

const (
	// MeetingEventCreated is emitted when a meeting passes admission.
	MeetingEventCreated MeetingEventType = "meeting.created"
	// MeetingEventRescheduled is emitted when a scheduled meeting moves.
	MeetingEventRescheduled MeetingEventType = "meeting.rescheduled"
	// MeetingEventCanceled is emitted on explicit cancellation and on expired
	// instant invitations.
	MeetingEventCanceled MeetingEventType = "meeting.canceled"
	// MeetingEventStarted is emitted when both peers are in the room.
	MeetingEventStarted MeetingEventType = "meeting.started"
	// MeetingEventEnded is emitted when an active call terminates.
	MeetingEventEnded MeetingEventType = "meeting.ended"
	// MeetingEventMissed is emitted by the grace-period sweep.
	MeetingEventMissed MeetingEventType = "meeting.missed"
	// MeetingEventWarning is emitted shortly before the call timer expires.
	MeetingEventWarning MeetingEventType = "meeting.warning"
)

// MeetingEvent is the wire envelope published on the meeting events subject.
type MeetingEvent struct {
	Type      MeetingEventType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Data      MeetingEventData `json:"data"`
}

// MeetingEventData is the payload of a lifecycle event. The first block of
// fields is present on every event; the rest are kind-specific. Consumers
// deduplicate on (meeting_uid, type, seq).
type MeetingEventData struct {
	MeetingUID   string    `json:"meeting_uid"`
	RoomUID      string    `json:"room_uid"`
	VolunteerUID string    `json:"volunteer_uid"`
	StudentUID   string    `json:"student_uid"`
	Seq          uint64    `json:"seq"`
	TransitionAt time.Time `json:"transition_at"`

	OldStart              *time.Time    `json:"old_start,omitempty"`
	NewStart              *time.Time    `json:"new_start,omitempty"`
	RescheduledBy         string        `json:"rescheduled_by,omitempty"`
	ActualStart           *time.Time    `json:"actual_start,omitempty"`
	EndedBy               string        `json:"ended_by,omitempty"`
	EndReason             EndReason     `json:"end_reason,omitempty"`
	ActualDurationMinutes *int          `json:"actual_duration_minutes,omitempty"`
	FinalStatus           MeetingStatus `json:"final_status,omitempty"`
	CanceledBy            string        `json:"canceled_by,omitempty"`
	MinutesRemaining      *int          `json:"minutes_remaining,omitempty"`
}

// NewMeetingEvent builds an event envelope with the shared payload fields
// filled in from the meeting record. The meeting's EventSeq must already be
// bumped for this transition.
func NewMeetingEvent(eventType MeetingEventType, meeting *Meeting, transitionAt time.Time) MeetingEvent {
	return MeetingEvent{
		Type:      eventType,
		Timestamp: transitionAt,
		Data: MeetingEventData{
			MeetingUID:   meeting.UID,
			RoomUID:      meeting.RoomUID,
			VolunteerUID: meeting.VolunteerUID,
			StudentUID:   meeting.StudentUID,
			Seq:          meeting.EventSeq,
			TransitionAt: transitionAt,
		},
	}
}

// MarshalPayload renders the wire form of the event.
func (e *MeetingEvent) MarshalPayload() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s event for meeting %s: %w", e.Type, e.Data.MeetingUID, err)
	}
	return data, nil
}

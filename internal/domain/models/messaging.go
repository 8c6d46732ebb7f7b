// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import "time"

// NATS subjects that the meeting engine publishes messages on.
const (
	// MeetingEventsSubject carries every lifecycle event envelope.
	// The subject is of the form: talktime.meeting.events
	MeetingEventsSubject = "talktime.meeting.events"
)

// NATS queue group for the meeting engine API subscriptions.
const (
	// MeetingsAPIQueue is the queue group name for the meetings API.
	// The queue is of the form: talktime.meetings-api.queue
	MeetingsAPIQueue = "talktime.meetings-api.queue"
)

// NATS request/reply subjects that the meeting engine serves.
const (
	// MeetingCreateSubject is the subject for scheduling a meeting.
	// The subject is of the form: talktime.meetings-api.meeting.create
	MeetingCreateSubject = "talktime.meetings-api.meeting.create"

	// MeetingRescheduleSubject is the subject for moving a scheduled meeting.
	// The subject is of the form: talktime.meetings-api.meeting.reschedule
	MeetingRescheduleSubject = "talktime.meetings-api.meeting.reschedule"

	// MeetingCancelSubject is the subject for canceling a meeting.
	// The subject is of the form: talktime.meetings-api.meeting.cancel
	MeetingCancelSubject = "talktime.meetings-api.meeting.cancel"

	// MeetingEndSubject is the subject for explicitly ending an active call.
	// The subject is of the form: talktime.meetings-api.meeting.end
	MeetingEndSubject = "talktime.meetings-api.meeting.end"

	// MeetingGetSubject is the subject for fetching one meeting by UID.
	// The subject is of the form: talktime.meetings-api.meeting.get
	MeetingGetSubject = "talktime.meetings-api.meeting.get"

	// MeetingGetByRoomSubject is the subject for fetching one meeting by its
	// signaling room UID.
	// The subject is of the form: talktime.meetings-api.meeting.get_by_room
	MeetingGetByRoomSubject = "talktime.meetings-api.meeting.get_by_room"

	// MeetingListByStudentSubject is the subject for the student-centric view
	// of a volunteer-student pair.
	// The subject is of the form: talktime.meetings-api.meeting.list_by_student
	MeetingListByStudentSubject = "talktime.meetings-api.meeting.list_by_student"

	// MeetingListUpcomingSubject is the subject for a participant's upcoming
	// meetings.
	// The subject is of the form: talktime.meetings-api.meeting.list_upcoming
	MeetingListUpcomingSubject = "talktime.meetings-api.meeting.list_upcoming"

	// MeetingListPastSubject is the subject for a participant's terminal
	// meetings.
	// The subject is of the form: talktime.meetings-api.meeting.list_past
	MeetingListPastSubject = "talktime.meetings-api.meeting.list_past"

	// MeetingClearSubject is the subject for the admin record-clearing
	// operation.
	// The subject is of the form: talktime.meetings-api.meeting.clear
	MeetingClearSubject = "talktime.meetings-api.meeting.clear"

	// LinkTokenValidateSubject is the subject for meeting-link token checks.
	// The subject is of the form: talktime.meetings-api.link_token.validate
	LinkTokenValidateSubject = "talktime.meetings-api.link_token.validate"

	// EnginePingSubject is the readiness probe subject.
	// The subject is of the form: talktime.meetings-api.ping
	EnginePingSubject = "talktime.meetings-api.ping"
)

// NATS subjects published by collaborating services that the engine consumes.
const (
	// SignalingRoomActiveSubject fires when both peers are present in a room.
	// The subject is of the form: talktime.signaling.room_active
	SignalingRoomActiveSubject = "talktime.signaling.room_active"

	// SignalingRoomEmptySubject fires when the last peer leaves a room.
	// The subject is of the form: talktime.signaling.room_empty
	SignalingRoomEmptySubject = "talktime.signaling.room_empty"

	// UserUpdatedSubject carries profile-service user upserts.
	// The subject is of the form: talktime.users.updated
	UserUpdatedSubject = "talktime.users.updated"

	// SettingsInvalidateSubject forces a settings cache reload.
	// The subject is of the form: talktime.config.invalidate
	SettingsInvalidateSubject = "talktime.config.invalidate"
)

// CreateMeetingRequest is the payload for MeetingCreateSubject. For instant
// calls ScheduledStart is ignored and the engine uses the current time.
type CreateMeetingRequest struct {
	VolunteerUID    string     `json:"volunteer_uid"`
	StudentUID      string     `json:"student_uid"`
	ScheduledStart  *time.Time `json:"scheduled_start,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	IsInstant       bool       `json:"is_instant,omitempty"`
}

// RescheduleMeetingRequest is the payload for MeetingRescheduleSubject.
type RescheduleMeetingRequest struct {
	MeetingUID    string    `json:"meeting_uid"`
	NewStart      time.Time `json:"new_start"`
	RescheduledBy string    `json:"rescheduled_by"`
}

// CancelMeetingRequest is the payload for MeetingCancelSubject.
type CancelMeetingRequest struct {
	MeetingUID string `json:"meeting_uid"`
	CanceledBy string `json:"canceled_by"`
}

// EndMeetingRequest is the payload for MeetingEndSubject. The meeting may be
// addressed by UID or by its room UID; reason defaults to participant_left
// when empty.
type EndMeetingRequest struct {
	MeetingUID string    `json:"meeting_uid,omitempty"`
	RoomUID    string    `json:"room_uid,omitempty"`
	EndedBy    string    `json:"ended_by"`
	Reason     EndReason `json:"reason,omitempty"`
}

// EndMeetingResponse carries the post-write record plus the outcome fields
// callers branch on.
type EndMeetingResponse struct {
	Meeting               *Meeting      `json:"meeting"`
	ActualDurationMinutes int           `json:"actual_duration_minutes"`
	FinalStatus           MeetingStatus `json:"final_status"`
}

// GetMeetingRequest is the payload for MeetingGetSubject.
type GetMeetingRequest struct {
	MeetingUID string `json:"meeting_uid"`
}

// GetMeetingByRoomRequest is the payload for MeetingGetByRoomSubject.
type GetMeetingByRoomRequest struct {
	RoomUID string `json:"room_uid"`
}

// ListByStudentRequest is the payload for MeetingListByStudentSubject.
type ListByStudentRequest struct {
	StudentUID   string `json:"student_uid"`
	VolunteerUID string `json:"volunteer_uid"`
}

// ListByStudentResponse is the student-centric pair view: the currently
// running meeting if any, the full pair history, and the pair budget.
type ListByStudentResponse struct {
	ActiveMeeting *Meeting   `json:"active_meeting,omitempty"`
	PairHistory   []*Meeting `json:"pair_history"`
	PairStats     PairStats  `json:"pair_stats"`
}

// ListMeetingsRequest is the payload for the upcoming/past listing subjects.
type ListMeetingsRequest struct {
	ParticipantUID string `json:"participant_uid"`
	Limit          int    `json:"limit,omitempty"`
}

// ListMeetingsResponse carries an ordered page of meetings.
type ListMeetingsResponse struct {
	Meetings []*Meeting `json:"meetings"`
}

// ClearMeetingRequest is the payload for MeetingClearSubject. Only admins may
// clear records.
type ClearMeetingRequest struct {
	MeetingUID string `json:"meeting_uid"`
	ClearedBy  string `json:"cleared_by"`
}

// ValidateLinkTokenRequest is the payload for LinkTokenValidateSubject.
type ValidateLinkTokenRequest struct {
	MeetingUID string `json:"meeting_uid"`
	Token      string `json:"token"`
}

// ValidateLinkTokenResponse reports a successful token check.
type ValidateLinkTokenResponse struct {
	Valid      bool   `json:"valid"`
	StudentUID string `json:"student_uid,omitempty"`
}

// RoomStatusMessage is the signaling service's report about a room.
type RoomStatusMessage struct {
	RoomUID   string     `json:"room_uid"`
	PeerCount int        `json:"peer_count"`
	At        *time.Time `json:"at,omitempty"`
}

// ErrorResponse is the error envelope returned on request/reply subjects.
type ErrorResponse struct {
	Error ErrorInfo `json:"error"`
}

// ErrorInfo carries the stable machine code and human-readable message of a
// failed operation.
type ErrorInfo struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import (
	"context"
	"time"

	"github.com/talktime/meeting-engine/internal/domain/models"
)

// MeetingRepository defines the interface for meeting storage operations.
// This interface can be implemented by different storage backends (NATS, PostgreSQL, etc.)
// Implementations own the secondary indexes (room, day reservation, pair) and
// keep them consistent with the records they point at.
type MeetingRepository interface {
	// Meeting full operations.
	// CreateMeeting writes the record together with its room uniqueness entry,
	// pair entry and, when the meeting carries a ReservedDate, the day
	// reservation; a partial failure unwinds the keys already written.
	CreateMeeting(ctx context.Context, meeting *models.Meeting) error
	MeetingExists(ctx context.Context, meetingUID string) (bool, error)

	// Meeting base operations
	GetMeeting(ctx context.Context, meetingUID string) (*models.Meeting, error)
	GetMeetingWithRevision(ctx context.Context, meetingUID string) (*models.Meeting, uint64, error)
	GetMeetingByRoom(ctx context.Context, roomUID string) (*models.Meeting, error)
	UpdateMeeting(ctx context.Context, meeting *models.Meeting, revision uint64) error

	// Day reservations: at most one non-instant meeting per student per
	// student-local civil day. ReserveDay fails with a day_conflict when the
	// date is taken; ReleaseDay only removes a reservation the given meeting
	// owns and treats an absent key as released.
	ReserveDay(ctx context.Context, meeting *models.Meeting, localDate string) error
	ReleaseDay(ctx context.Context, studentUID, localDate, meetingUID string) error
	// FindDayConflict resolves the student's reservation for the date to the
	// meeting holding it, or nil when the date is free. Reservations whose
	// meeting no longer occupies the day are removed on the way.
	FindDayConflict(ctx context.Context, studentUID, localDate string) (*models.Meeting, error)

	// Pair queries
	CountActivePair(ctx context.Context, volunteerUID, studentUID string) (int, error)
	ListPairMeetings(ctx context.Context, volunteerUID, studentUID string) ([]*models.Meeting, error)

	// Participant queries
	ListByParticipant(ctx context.Context, participantUID string) ([]*models.Meeting, error)

	// Bulk operations
	ListAllMeetings(ctx context.Context) ([]*models.Meeting, error)

	// Sweeps. Both flip overdue records with a revision-checked write that
	// also queues the terminal event, so a concurrent explicit transition
	// wins cleanly; swept meetings are returned for event flushing.
	MarkOverdueMissed(ctx context.Context, cutoff, now time.Time) ([]*models.Meeting, error)
	MarkOverdueMissedForPair(ctx context.Context, volunteerUID, studentUID string, cutoff, now time.Time) ([]*models.Meeting, error)
	ExpireStalePending(ctx context.Context, cutoff, now time.Time) ([]*models.Meeting, error)

	// Aggregates
	GetVolunteerPerformance(ctx context.Context, volunteerUID string) (models.PerformanceStats, error)
}

// UserRepository reads the participant records mirrored from the profile
// service and accepts updates from its feed.
type UserRepository interface {
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	UserExists(ctx context.Context, userUID string) (bool, error)
	PutUser(ctx context.Context, user *models.User) error
}

// SettingsRepository stores the engine's runtime tunables as raw strings;
// parsing and defaulting happen in the settings service.
type SettingsRepository interface {
	ListSettings(ctx context.Context) (map[string]string, error)
	PutSetting(ctx context.Context, key, value string) error
}

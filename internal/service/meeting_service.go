// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/akamensky/base58"
	"github.com/google/uuid"

	"github.com/talktime/meeting-engine/internal/domain"
	"github.com/talktime/meeting-engine/internal/domain/models"
	"github.com/talktime/meeting-engine/internal/logging"
	"github.com/talktime/meeting-engine/pkg/constants"
)

// errTransitionSuperseded aborts a transition whose trigger no longer applies:
// a timer that fired for a meeting another actor already moved on. System
// callers treat it as a clean no-op.
var errTransitionSuperseded = errors.New("meeting transition superseded")

// MeetingService implements the meeting lifecycle: creation through the
// admission evaluator, the state machine transitions, and the read views.
// Every transition commits its lifecycle event in the same record write; the
// outbox flusher delivers them afterwards.
type MeetingService struct {
	MeetingRepository domain.MeetingRepository
	UserRepository    domain.UserRepository
	Admission         *AdmissionService
	Settings          *SettingsService
	FlushKicker       domain.EventFlushKicker
	Clock             domain.Clock

	// Timers is assigned after the scheduler is constructed, since the
	// scheduler drives its deadlines back through this service.
	Timers domain.MeetingTimerScheduler
}

// NewMeetingService creates a new MeetingService.
func NewMeetingService(
	meetingRepository domain.MeetingRepository,
	userRepository domain.UserRepository,
	admission *AdmissionService,
	settings *SettingsService,
	flushKicker domain.EventFlushKicker,
	clock domain.Clock,
) *MeetingService {
	return &MeetingService{
		MeetingRepository: meetingRepository,
		UserRepository:    userRepository,
		Admission:         admission,
		Settings:          settings,
		FlushKicker:       flushKicker,
		Clock:             clock,
	}
}

// ServiceReady checks if the service is ready for use.
func (s *MeetingService) ServiceReady() bool {
	return s.MeetingRepository != nil &&
		s.UserRepository != nil &&
		s.Admission != nil &&
		s.Settings != nil &&
		s.Clock != nil
}

// CreateMeeting runs the proposed booking through admission and persists it
// together with its room key, pair entry and day reservation. Instant calls
// start pending at the current time; scheduled meetings wait for their slot.
func (s *MeetingService) CreateMeeting(ctx context.Context, req *models.CreateMeetingRequest) (*models.Meeting, error) {
	if !s.ServiceReady() {
		slog.ErrorContext(ctx, "service not initialized", logging.PriorityCritical())
		return nil, domain.NewUnavailableError("meeting service not initialized")
	}
	if err := validateCreateMeetingRequest(req); err != nil {
		return nil, err
	}

	settings := s.Settings.Snapshot(ctx)
	now := s.Clock.Now().UTC()
	start := now
	if !req.IsInstant {
		start = req.ScheduledStart.UTC()
	}

	grant, err := s.Admission.EvaluateCreate(ctx, AdmissionRequest{
		VolunteerUID: req.VolunteerUID,
		StudentUID:   req.StudentUID,
		Start:        start,
		IsInstant:    req.IsInstant,
	}, settings)
	if err != nil {
		return nil, err
	}
	defer grant.Release()

	roomUID, err := newRoomUID()
	if err != nil {
		slog.ErrorContext(ctx, "generating room identifier", logging.ErrKey, err, logging.PriorityCritical())
		return nil, domain.NewInternalError("generating room identifier", err)
	}

	duration := settings.DurationMinutes
	if req.DurationMinutes != nil {
		duration = *req.DurationMinutes
	}
	status := models.MeetingStatusScheduled
	if req.IsInstant {
		status = models.MeetingStatusPending
	}

	meeting := &models.Meeting{
		UID:             uuid.New().String(),
		RoomUID:         roomUID,
		VolunteerUID:    req.VolunteerUID,
		StudentUID:      req.StudentUID,
		ScheduledStart:  start,
		ReservedDate:    grant.LocalDate,
		DurationMinutes: duration,
		Status:          status,
		IsInstant:       req.IsInstant,
		CreatedAt:       &now,
		UpdatedAt:       &now,
	}
	meeting.RecordEvent(models.MeetingEventCreated, now)

	if err := retryTransientErr(ctx, func() error {
		return s.MeetingRepository.CreateMeeting(ctx, meeting)
	}); err != nil {
		if domain.GetErrorCode(err) == domain.ErrorCodeDuplicateRoom {
			// 122 bits of room entropy should never collide.
			slog.ErrorContext(ctx, "room identifier collision", logging.ErrKey, err, logging.PriorityCritical())
		}
		return nil, err
	}

	slog.DebugContext(ctx, "created meeting",
		"meeting_uid", meeting.UID,
		"room_uid", meeting.RoomUID,
		"status", meeting.Status,
		"scheduled_start", meeting.ScheduledStart,
	)

	s.kickFlush(meeting.UID)
	s.scheduleTimers(meeting)
	return meeting, nil
}

// RescheduleMeeting moves a scheduled meeting to a new start. The room is
// never reissued; the day reservation moves with the meeting; the original
// start is snapshotted the first time only.
func (s *MeetingService) RescheduleMeeting(ctx context.Context, req *models.RescheduleMeetingRequest) (*models.Meeting, error) {
	if !s.ServiceReady() {
		slog.ErrorContext(ctx, "service not initialized", logging.PriorityCritical())
		return nil, domain.NewUnavailableError("meeting service not initialized")
	}
	if req == nil || req.MeetingUID == "" {
		return nil, domain.NewValidationError("meeting UID is required")
	}
	if req.NewStart.IsZero() {
		return nil, domain.NewValidationError("new start time is required")
	}

	settings := s.Settings.Snapshot(ctx)
	newStart := req.NewStart.UTC()

	meeting, revision, err := s.getMeetingForTransition(ctx, req.MeetingUID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeActor(ctx, meeting, req.RescheduledBy); err != nil {
		return nil, err
	}
	if meeting.Status != models.MeetingStatusScheduled {
		return nil, illegalTransition(meeting, "reschedule")
	}

	grant, err := s.Admission.EvaluateReschedule(ctx, meeting, newStart, settings)
	if err != nil {
		return nil, err
	}
	defer grant.Release()

	newDate := grant.LocalDate
	for attempt := 0; ; attempt++ {
		oldStart := meeting.ScheduledStart
		oldDate := meeting.ReservedDate

		// Claim the new day before touching the record, so losing the
		// cross-process race changes nothing.
		if newDate != oldDate {
			if err := retryTransientErr(ctx, func() error {
				return s.MeetingRepository.ReserveDay(ctx, meeting, newDate)
			}); err != nil {
				return nil, err
			}
		}

		now := s.Clock.Now().UTC()
		if meeting.OriginalStart == nil {
			original := oldStart
			meeting.OriginalStart = &original
		}
		meeting.ScheduledStart = newStart
		meeting.ReservedDate = newDate
		meeting.RescheduleCount++
		meeting.LastRescheduledAt = &now
		meeting.RescheduledBy = req.RescheduledBy
		meeting.UpdatedAt = &now
		event := meeting.RecordEvent(models.MeetingEventRescheduled, now)
		event.Data.OldStart = &oldStart
		event.Data.NewStart = &newStart
		event.Data.RescheduledBy = req.RescheduledBy

		err = retryTransientErr(ctx, func() error {
			return s.MeetingRepository.UpdateMeeting(ctx, meeting, revision)
		})
		if err == nil {
			if oldDate != "" && oldDate != newDate {
				s.releaseDay(ctx, meeting.StudentUID, oldDate, meeting.UID)
			}
			s.kickFlush(meeting.UID)
			s.scheduleTimers(meeting)
			return meeting, nil
		}

		if newDate != oldDate {
			s.releaseDay(ctx, meeting.StudentUID, newDate, meeting.UID)
		}
		if domain.GetErrorType(err) != domain.ErrorTypeConflict || attempt > 0 {
			return nil, err
		}

		// Lost a concurrent update; re-read and re-validate once. If a
		// cancellation won the race the status check rejects the retry.
		slog.DebugContext(ctx, "reschedule lost a concurrent update, retrying", "meeting_uid", req.MeetingUID)
		meeting, revision, err = s.getMeetingForTransition(ctx, req.MeetingUID)
		if err != nil {
			return nil, err
		}
		if meeting.Status != models.MeetingStatusScheduled {
			return nil, illegalTransition(meeting, "reschedule")
		}
	}
}

func validateCreateMeetingRequest(req *models.CreateMeetingRequest) error {
	if req == nil {
		return domain.NewValidationError("request payload is required")
	}
	if req.VolunteerUID == "" || req.StudentUID == "" {
		return domain.NewValidationError("volunteer and student UIDs are required")
	}
	if !req.IsInstant && req.ScheduledStart == nil {
		return domain.NewValidationError("scheduled start is required for non-instant meetings")
	}
	if req.DurationMinutes != nil {
		if d := *req.DurationMinutes; d <= 0 || d > constants.MaxMeetingDurationMinutes {
			return domain.NewValidationError(
				fmt.Sprintf("duration must be between 1 and %d minutes", constants.MaxMeetingDurationMinutes))
		}
	}
	return nil
}

// newRoomUID allocates an opaque room identifier: 16 bytes of entropy,
// base58-encoded so it stays URL- and subject-safe.
func newRoomUID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base58.Encode(buf), nil
}

type meetingWithRevision struct {
	meeting  *models.Meeting
	revision uint64
}

// getMeetingForTransition reads a meeting with its revision for a CAS write.
// Per the lifecycle contract, transitions on a meeting that does not exist
// are illegal transitions, not lookup failures.
func (s *MeetingService) getMeetingForTransition(ctx context.Context, meetingUID string) (*models.Meeting, uint64, error) {
	read, err := retryTransient(ctx, func() (meetingWithRevision, error) {
		meeting, revision, err := s.MeetingRepository.GetMeetingWithRevision(ctx, meetingUID)
		return meetingWithRevision{meeting, revision}, err
	})
	if err != nil {
		if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
			return nil, 0, domain.NewConflictError("meeting does not exist", err).
				WithCode(domain.ErrorCodeIllegalTransition).
				WithDetail("meeting_uid", meetingUID)
		}
		return nil, 0, err
	}
	return read.meeting, read.revision, nil
}

// updateMeetingTransition applies mutate under a compare-and-swap. A lost
// race re-reads the record once and re-applies mutate, so the transition
// re-validates against whatever won; a second conflict surfaces to the
// caller.
func (s *MeetingService) updateMeetingTransition(ctx context.Context, meetingUID string, mutate func(meeting *models.Meeting, now time.Time) error) (*models.Meeting, error) {
	for attempt := 0; ; attempt++ {
		meeting, revision, err := s.getMeetingForTransition(ctx, meetingUID)
		if err != nil {
			return nil, err
		}
		if err := mutate(meeting, s.Clock.Now().UTC()); err != nil {
			return nil, err
		}
		err = retryTransientErr(ctx, func() error {
			return s.MeetingRepository.UpdateMeeting(ctx, meeting, revision)
		})
		if err == nil {
			return meeting, nil
		}
		if domain.GetErrorType(err) != domain.ErrorTypeConflict || attempt > 0 {
			return nil, err
		}
		slog.DebugContext(ctx, "transition lost a concurrent update, retrying", "meeting_uid", meetingUID)
	}
}

// authorizeActor permits the meeting's participants and platform admins.
func (s *MeetingService) authorizeActor(ctx context.Context, meeting *models.Meeting, actorUID string) error {
	if actorUID == "" {
		return domain.NewUnauthorizedError("acting user is required")
	}
	if meeting.IsParticipant(actorUID) {
		return nil
	}
	user, err := s.UserRepository.GetUser(ctx, actorUID)
	if err != nil {
		if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
			return domain.NewUnauthorizedError("user may not act on this meeting").
				WithDetail("user_uid", actorUID)
		}
		return err
	}
	if user.Role == models.UserRoleAdmin {
		return nil
	}
	return domain.NewUnauthorizedError("user may not act on this meeting").
		WithDetail("user_uid", actorUID)
}

// requireAdmin resolves the actor and insists on the admin role.
func (s *MeetingService) requireAdmin(ctx context.Context, actorUID string) error {
	if actorUID == "" {
		return domain.NewUnauthorizedError("acting user is required")
	}
	user, err := s.UserRepository.GetUser(ctx, actorUID)
	if err != nil {
		if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
			return domain.NewUnauthorizedError("only admins may perform this operation").
				WithDetail("user_uid", actorUID)
		}
		return err
	}
	if user.Role != models.UserRoleAdmin {
		return domain.NewUnauthorizedError("only admins may perform this operation").
			WithDetail("user_uid", actorUID)
	}
	return nil
}

func illegalTransition(meeting *models.Meeting, action string) *domain.DomainError {
	return domain.NewConflictError("meeting cannot "+action+" from its current state").
		WithCode(domain.ErrorCodeIllegalTransition).
		WithDetail("meeting_uid", meeting.UID).
		WithDetail("status", string(meeting.Status))
}

// releaseDay drops a day reservation and downgrades failures to warnings:
// the conflict finder removes stale reservations lazily.
func (s *MeetingService) releaseDay(ctx context.Context, studentUID, localDate, meetingUID string) {
	if localDate == "" {
		return
	}
	if err := s.MeetingRepository.ReleaseDay(ctx, studentUID, localDate, meetingUID); err != nil {
		slog.WarnContext(ctx, "failed to release day reservation",
			logging.ErrKey, err,
			"student_uid", studentUID,
			"local_date", localDate,
			"meeting_uid", meetingUID,
		)
	}
}

func (s *MeetingService) kickFlush(meetingUID string) {
	if s.FlushKicker != nil {
		s.FlushKicker.KickFlush(meetingUID)
	}
}

func (s *MeetingService) scheduleTimers(meeting *models.Meeting) {
	if s.Timers != nil {
		s.Timers.ScheduleMeetingTimers(meeting)
	}
}

func (s *MeetingService) cancelTimers(meetingUID string) {
	if s.Timers != nil {
		s.Timers.CancelMeetingTimers(meetingUID)
	}
}

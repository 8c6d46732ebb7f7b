// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/talktime/meeting-engine/internal/domain"
	"github.com/talktime/meeting-engine/internal/domain/models"
	"github.com/talktime/meeting-engine/internal/logging"
	"github.com/talktime/meeting-engine/internal/timeutil"
	"github.com/talktime/meeting-engine/pkg/concurrent"
)

// AdmissionRequest is a proposed booking to evaluate. Start is the UTC
// instant of the proposed start; for instant calls it is the current time.
type AdmissionRequest struct {
	VolunteerUID string
	StudentUID   string
	Start        time.Time
	IsInstant    bool
}

// AdmissionGrant is a passed admission check. It pins the participant records
// and the student-local date the decision was made with, and it holds the
// admission locks until Release so the caller's insert runs under the same
// mutual exclusion as the checks.
type AdmissionGrant struct {
	Volunteer *models.User
	Student   *models.User
	// LocalDate is the student-local civil date of the start. Empty for
	// instant calls, which do not reserve a day.
	LocalDate string

	release func()
}

// Release frees the admission locks. It is safe to call more than once.
func (g *AdmissionGrant) Release() {
	if g.release != nil {
		g.release()
	}
}

// AdmissionService applies the scheduling policy to proposed bookings: time
// window, volunteer reputation, participant roles, the one-call-per-day rule
// and the pair limit, in that order, with the first failure winning. Checks
// and the subsequent insert are serialized per volunteer-student pair and per
// student-day through in-process keyed locks; across processes the day
// reservation's exclusive create is the backstop.
type AdmissionService struct {
	MeetingRepository domain.MeetingRepository
	UserRepository    domain.UserRepository
	FlushKicker       domain.EventFlushKicker
	Clock             domain.Clock

	locks concurrent.KeyedMutex
}

// NewAdmissionService creates a new AdmissionService.
func NewAdmissionService(
	meetingRepository domain.MeetingRepository,
	userRepository domain.UserRepository,
	flushKicker domain.EventFlushKicker,
	clock domain.Clock,
) *AdmissionService {
	return &AdmissionService{
		MeetingRepository: meetingRepository,
		UserRepository:    userRepository,
		FlushKicker:       flushKicker,
		Clock:             clock,
	}
}

// ServiceReady checks if the service is ready for use.
func (s *AdmissionService) ServiceReady() bool {
	return s.MeetingRepository != nil &&
		s.UserRepository != nil &&
		s.Clock != nil
}

func pairLockKey(volunteerUID, studentUID string) string {
	return "pair/" + volunteerUID + "/" + studentUID
}

func dayLockKey(studentUID, localDate string) string {
	return "day/" + studentUID + "/" + localDate
}

// EvaluateCreate runs the ordered admission checks for a new booking against
// one settings snapshot. On success the caller must insert the meeting and
// then Release the grant; on failure the locks are already released.
func (s *AdmissionService) EvaluateCreate(ctx context.Context, req AdmissionRequest, settings models.EngineSettings) (*AdmissionGrant, error) {
	if !s.ServiceReady() {
		slog.ErrorContext(ctx, "service not initialized", logging.PriorityCritical())
		return nil, domain.NewUnavailableError("admission service not initialized")
	}

	now := s.Clock.Now().UTC()

	// Pair lock before day lock, always in that order.
	releasePair := s.locks.Lock(pairLockKey(req.VolunteerUID, req.StudentUID))
	var releaseDay func()
	releaseAll := func() {
		if releaseDay != nil {
			releaseDay()
		}
		releasePair()
	}
	granted := false
	defer func() {
		if !granted {
			releaseAll()
		}
	}()

	// 1. Time window. Instant calls start now and bypass it.
	if !req.IsInstant {
		if err := checkTimeWindow(req.Start, now, settings); err != nil {
			return nil, err
		}
	}

	// 2. Volunteer reputation. A volunteer with no counted history has rate
	// zero and score 100 and always passes.
	stats, err := s.MeetingRepository.GetVolunteerPerformance(ctx, req.VolunteerUID)
	if err != nil {
		return nil, err
	}
	if err := checkReputation(stats, settings); err != nil {
		slog.InfoContext(ctx, "volunteer restricted from scheduling",
			"volunteer_uid", req.VolunteerUID,
			"cancel_rate", stats.CancelRate(),
			"missed_rate", stats.MissedRate(),
			"reputation_score", stats.ReputationScore(),
		)
		return nil, err
	}

	// 3. Existence and role.
	volunteer, err := s.requireUser(ctx, req.VolunteerUID, models.UserRoleVolunteer)
	if err != nil {
		return nil, err
	}
	student, err := s.requireUser(ctx, req.StudentUID, models.UserRoleStudent)
	if err != nil {
		return nil, err
	}

	// 4. One-call-per-day, in the student's zone. Instant calls are exempt.
	localDate := ""
	if !req.IsInstant {
		zone := s.studentZone(ctx, student)
		localDate = timeutil.LocalDate(req.Start, zone)
		releaseDay = s.locks.Lock(dayLockKey(req.StudentUID, localDate))

		conflict, err := s.MeetingRepository.FindDayConflict(ctx, req.StudentUID, localDate)
		if err != nil {
			return nil, err
		}
		if conflict != nil {
			return nil, domain.NewConflictError("student already has a meeting that day").
				WithCode(domain.ErrorCodeDayConflict).
				WithDetail("existing_meeting_uid", conflict.UID).
				WithDetail("local_date", localDate).
				WithDetail("timezone", zone.String())
		}
	}

	// 5. Pair limit. Sweep the pair's overdue meetings first so a stale
	// scheduled meeting stops blocking a new booking.
	swept, err := s.MeetingRepository.MarkOverdueMissedForPair(ctx,
		req.VolunteerUID, req.StudentUID, now.Add(-settings.AutoTimeoutGrace()), now)
	if err != nil {
		return nil, err
	}
	s.kickFlush(swept)

	count, err := s.MeetingRepository.CountActivePair(ctx, req.VolunteerUID, req.StudentUID)
	if err != nil {
		return nil, err
	}
	if count >= settings.MeetingsPerPair {
		return nil, domain.NewConflictError("pair meeting limit reached").
			WithCode(domain.ErrorCodePairLimitReached).
			WithDetail("current_count", strconv.Itoa(count)).
			WithDetail("limit", strconv.Itoa(settings.MeetingsPerPair))
	}

	granted = true
	return &AdmissionGrant{
		Volunteer: volunteer,
		Student:   student,
		LocalDate: localDate,
		release:   releaseAll,
	}, nil
}

// EvaluateReschedule re-runs the time-window and day checks for moving an
// existing scheduled meeting; the meeting's own day reservation is not a
// conflict. Reputation and pair budget are not re-checked: the pair's
// membership does not change when a meeting moves.
func (s *AdmissionService) EvaluateReschedule(ctx context.Context, meeting *models.Meeting, newStart time.Time, settings models.EngineSettings) (*AdmissionGrant, error) {
	if !s.ServiceReady() {
		slog.ErrorContext(ctx, "service not initialized", logging.PriorityCritical())
		return nil, domain.NewUnavailableError("admission service not initialized")
	}

	now := s.Clock.Now().UTC()
	if err := checkTimeWindow(newStart, now, settings); err != nil {
		return nil, err
	}

	student, err := s.requireUser(ctx, meeting.StudentUID, models.UserRoleStudent)
	if err != nil {
		return nil, err
	}

	zone := s.studentZone(ctx, student)
	localDate := timeutil.LocalDate(newStart, zone)
	releaseDay := s.locks.Lock(dayLockKey(meeting.StudentUID, localDate))
	granted := false
	defer func() {
		if !granted {
			releaseDay()
		}
	}()

	conflict, err := s.MeetingRepository.FindDayConflict(ctx, meeting.StudentUID, localDate)
	if err != nil {
		return nil, err
	}
	if conflict != nil && conflict.UID != meeting.UID {
		return nil, domain.NewConflictError("student already has a meeting that day").
			WithCode(domain.ErrorCodeDayConflict).
			WithDetail("existing_meeting_uid", conflict.UID).
			WithDetail("local_date", localDate).
			WithDetail("timezone", zone.String())
	}

	granted = true
	return &AdmissionGrant{
		Student:   student,
		LocalDate: localDate,
		release:   releaseDay,
	}, nil
}

func checkTimeWindow(start, now time.Time, settings models.EngineSettings) error {
	if !start.After(now) {
		return domain.NewValidationError("scheduled start must be in the future").
			WithCode(domain.ErrorCodeTimeOutOfWindow).
			WithDetail("scheduled_start", start.Format(time.RFC3339))
	}
	horizon := now.AddDate(0, settings.MaxFutureMonths, 0)
	if start.After(horizon) {
		return domain.NewValidationError("scheduled start is beyond the booking window").
			WithCode(domain.ErrorCodeTimeOutOfWindow).
			WithDetail("scheduled_start", start.Format(time.RFC3339)).
			WithDetail("window_closes", horizon.Format(time.RFC3339))
	}
	return nil
}

func checkReputation(stats models.PerformanceStats, settings models.EngineSettings) error {
	cancelRate := stats.CancelRate()
	missedRate := stats.MissedRate()
	score := stats.ReputationScore()
	if cancelRate >= settings.CancellationRateThreshold ||
		missedRate >= settings.MissedRateThreshold ||
		score < settings.MinReputationScore {
		return domain.NewValidationError("volunteer is restricted from scheduling").
			WithCode(domain.ErrorCodeVolunteerRestricted).
			WithDetail("cancel_rate", strconv.Itoa(cancelRate)).
			WithDetail("missed_rate", strconv.Itoa(missedRate)).
			WithDetail("reputation_score", strconv.Itoa(score))
	}
	return nil
}

// requireUser resolves a participant and insists on the given role.
func (s *AdmissionService) requireUser(ctx context.Context, userUID string, role models.UserRole) (*models.User, error) {
	if userUID == "" {
		return nil, domain.NewValidationError("participant UID is required").
			WithCode(domain.ErrorCodeParticipantNotFound).
			WithDetail("required_role", string(role))
	}
	user, err := s.UserRepository.GetUser(ctx, userUID)
	if err != nil {
		if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
			return nil, domain.NewValidationError("participant does not exist").
				WithCode(domain.ErrorCodeParticipantNotFound).
				WithDetail("user_uid", userUID).
				WithDetail("required_role", string(role))
		}
		return nil, err
	}
	if user.Role != role {
		return nil, domain.NewValidationError("participant has the wrong role").
			WithCode(domain.ErrorCodeParticipantNotFound).
			WithDetail("user_uid", userUID).
			WithDetail("required_role", string(role)).
			WithDetail("actual_role", string(user.Role))
	}
	return user, nil
}

// studentZone resolves the student's IANA zone, defaulting to UTC.
func (s *AdmissionService) studentZone(ctx context.Context, student *models.User) *time.Location {
	zone, ok := timeutil.NormalizeZone(student.Timezone)
	if !ok && student.Timezone != "" {
		slog.WarnContext(ctx, "unknown student timezone, using UTC",
			"user_uid", student.UID,
			"timezone", student.Timezone,
		)
	}
	return zone
}

func (s *AdmissionService) kickFlush(meetings []*models.Meeting) {
	if s.FlushKicker == nil {
		return
	}
	for _, meeting := range meetings {
		s.FlushKicker.KickFlush(meeting.UID)
	}
}

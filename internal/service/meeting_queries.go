// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"sort"

	"github.com/talktime/meeting-engine/internal/domain"
	"github.com/talktime/meeting-engine/internal/domain/models"
	"github.com/talktime/meeting-engine/internal/logging"
	"github.com/talktime/meeting-engine/internal/timeutil"
	"github.com/talktime/meeting-engine/pkg/constants"
)

// GetMeeting returns one meeting by UID.
func (s *MeetingService) GetMeeting(ctx context.Context, meetingUID string) (*models.Meeting, error) {
	if !s.ServiceReady() {
		slog.ErrorContext(ctx, "service not initialized", logging.PriorityCritical())
		return nil, domain.NewUnavailableError("meeting service not initialized")
	}
	if meetingUID == "" {
		return nil, domain.NewValidationError("meeting UID is required")
	}
	return retryTransient(ctx, func() (*models.Meeting, error) {
		return s.MeetingRepository.GetMeeting(ctx, meetingUID)
	})
}

// GetMeetingByRoom returns the meeting owning a room key.
func (s *MeetingService) GetMeetingByRoom(ctx context.Context, roomUID string) (*models.Meeting, error) {
	if !s.ServiceReady() {
		slog.ErrorContext(ctx, "service not initialized", logging.PriorityCritical())
		return nil, domain.NewUnavailableError("meeting service not initialized")
	}
	if roomUID == "" {
		return nil, domain.NewValidationError("room UID is required")
	}
	return retryTransient(ctx, func() (*models.Meeting, error) {
		return s.MeetingRepository.GetMeetingByRoom(ctx, roomUID)
	})
}

// ListByStudent returns the student-centric view of one volunteer-student
// pair: the running meeting if any, the pair history newest first, and the
// pair budget.
func (s *MeetingService) ListByStudent(ctx context.Context, req *models.ListByStudentRequest) (*models.ListByStudentResponse, error) {
	if !s.ServiceReady() {
		slog.ErrorContext(ctx, "service not initialized", logging.PriorityCritical())
		return nil, domain.NewUnavailableError("meeting service not initialized")
	}
	if req == nil || req.StudentUID == "" || req.VolunteerUID == "" {
		return nil, domain.NewValidationError("volunteer and student UIDs are required")
	}

	meetings, err := s.MeetingRepository.ListPairMeetings(ctx, req.VolunteerUID, req.StudentUID)
	if err != nil {
		return nil, err
	}
	sort.Slice(meetings, func(i, j int) bool {
		return meetings[i].ScheduledStart.After(meetings[j].ScheduledStart)
	})

	response := &models.ListByStudentResponse{
		PairHistory: make([]*models.Meeting, 0, len(meetings)),
	}
	count := 0
	for _, meeting := range meetings {
		response.PairHistory = append(response.PairHistory, meeting)
		if meeting.Status == models.MeetingStatusActive && response.ActiveMeeting == nil {
			response.ActiveMeeting = meeting
		}
		if meeting.CountsTowardPairLimit() {
			count++
		}
	}

	settings := s.Settings.Snapshot(ctx)
	response.PairStats = models.PairStats{
		Count:           count,
		Limit:           settings.MeetingsPerPair,
		CanScheduleMore: count < settings.MeetingsPerPair,
	}
	return response, nil
}

// ListUpcoming returns a participant's open meetings, soonest first.
func (s *MeetingService) ListUpcoming(ctx context.Context, req *models.ListMeetingsRequest) ([]*models.Meeting, error) {
	meetings, err := s.listParticipant(ctx, req, false)
	if err != nil {
		return nil, err
	}
	sort.Slice(meetings, func(i, j int) bool {
		return meetings[i].ScheduledStart.Before(meetings[j].ScheduledStart)
	})
	return capList(meetings, req.Limit), nil
}

// ListPast returns a participant's finished meetings, most recent first.
func (s *MeetingService) ListPast(ctx context.Context, req *models.ListMeetingsRequest) ([]*models.Meeting, error) {
	meetings, err := s.listParticipant(ctx, req, true)
	if err != nil {
		return nil, err
	}
	sort.Slice(meetings, func(i, j int) bool {
		return meetings[i].ScheduledStart.After(meetings[j].ScheduledStart)
	})
	return capList(meetings, req.Limit), nil
}

func (s *MeetingService) listParticipant(ctx context.Context, req *models.ListMeetingsRequest, terminal bool) ([]*models.Meeting, error) {
	if !s.ServiceReady() {
		slog.ErrorContext(ctx, "service not initialized", logging.PriorityCritical())
		return nil, domain.NewUnavailableError("meeting service not initialized")
	}
	if req == nil || req.ParticipantUID == "" {
		return nil, domain.NewValidationError("participant UID is required")
	}

	all, err := s.MeetingRepository.ListByParticipant(ctx, req.ParticipantUID)
	if err != nil {
		return nil, err
	}
	matched := make([]*models.Meeting, 0, len(all))
	for _, meeting := range all {
		if meeting.Status.IsTerminal() == terminal {
			matched = append(matched, meeting)
		}
	}
	return matched, nil
}

func capList(meetings []*models.Meeting, limit int) []*models.Meeting {
	if limit <= 0 {
		limit = constants.DefaultListLimit
	}
	if len(meetings) > limit {
		return meetings[:limit]
	}
	return meetings
}

// ClearMeetingRecord marks a meeting cleared for reputation and pair-limit
// purposes. It is the one write allowed on a terminal record, it queues no
// event, and clearing an already-cleared record is a no-op. The day
// reservation, if any, stays: clearing forgives statistics, not calendar
// slots.
func (s *MeetingService) ClearMeetingRecord(ctx context.Context, req *models.ClearMeetingRequest) (*models.Meeting, error) {
	if !s.ServiceReady() {
		slog.ErrorContext(ctx, "service not initialized", logging.PriorityCritical())
		return nil, domain.NewUnavailableError("meeting service not initialized")
	}
	if req == nil || req.MeetingUID == "" {
		return nil, domain.NewValidationError("meeting UID is required")
	}
	if err := s.requireAdmin(ctx, req.ClearedBy); err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		read, err := retryTransient(ctx, func() (meetingWithRevision, error) {
			meeting, revision, err := s.MeetingRepository.GetMeetingWithRevision(ctx, req.MeetingUID)
			return meetingWithRevision{meeting, revision}, err
		})
		if err != nil {
			return nil, err
		}
		meeting := read.meeting
		if meeting.ClearedByAdmin {
			return meeting, nil
		}

		now := s.Clock.Now().UTC()
		meeting.ClearedByAdmin = true
		meeting.UpdatedAt = &now

		err = retryTransientErr(ctx, func() error {
			return s.MeetingRepository.UpdateMeeting(ctx, meeting, read.revision)
		})
		if err == nil {
			slog.InfoContext(ctx, "cleared meeting record",
				"meeting_uid", meeting.UID,
				"cleared_by", req.ClearedBy,
			)
			return meeting, nil
		}
		if domain.GetErrorType(err) != domain.ErrorTypeConflict || attempt > 0 {
			return nil, err
		}
	}
}

// SyncUser upserts a participant record from the profile service's update
// feed. Unknown timezones are stored as-is and fall back to UTC wherever a
// zone is resolved.
func (s *MeetingService) SyncUser(ctx context.Context, user *models.User) error {
	if !s.ServiceReady() {
		slog.ErrorContext(ctx, "service not initialized", logging.PriorityCritical())
		return domain.NewUnavailableError("meeting service not initialized")
	}
	if user == nil || user.UID == "" {
		return domain.NewValidationError("user UID is required")
	}
	role, ok := models.ParseUserRole(string(user.Role))
	if !ok {
		return domain.NewValidationError("unknown user role").
			WithDetail("role", string(user.Role))
	}
	user.Role = role
	if _, ok := timeutil.NormalizeZone(user.Timezone); !ok && user.Timezone != "" {
		slog.WarnContext(ctx, "user carries an unknown timezone, day checks will use UTC",
			"user_uid", user.UID,
			"timezone", user.Timezone,
		)
	}

	if err := retryTransientErr(ctx, func() error {
		return s.UserRepository.PutUser(ctx, user)
	}); err != nil {
		return err
	}
	slog.DebugContext(ctx, "synced user", "user_uid", user.UID, "role", user.Role)
	return nil
}

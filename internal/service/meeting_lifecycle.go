// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/talktime/meeting-engine/internal/domain"
	"github.com/talktime/meeting-engine/internal/domain/models"
	"github.com/talktime/meeting-engine/internal/logging"
	"github.com/talktime/meeting-engine/pkg/constants"
)

// CancelMeeting cancels a scheduled, pending or active meeting on behalf of a
// participant or admin.
func (s *MeetingService) CancelMeeting(ctx context.Context, req *models.CancelMeetingRequest) (*models.Meeting, error) {
	if !s.ServiceReady() {
		slog.ErrorContext(ctx, "service not initialized", logging.PriorityCritical())
		return nil, domain.NewUnavailableError("meeting service not initialized")
	}
	if req == nil || req.MeetingUID == "" {
		return nil, domain.NewValidationError("meeting UID is required")
	}

	meeting, err := s.updateMeetingTransition(ctx, req.MeetingUID, func(m *models.Meeting, now time.Time) error {
		if err := s.authorizeActor(ctx, m, req.CanceledBy); err != nil {
			return err
		}
		if !m.Status.CanTransitionTo(models.MeetingStatusCanceled) {
			return illegalTransition(m, "be canceled")
		}
		m.Status = models.MeetingStatusCanceled
		m.EndReason = models.EndReasonCanceled
		m.EndedAt = &now
		m.EndedBy = req.CanceledBy
		m.UpdatedAt = &now
		event := m.RecordEvent(models.MeetingEventCanceled, now)
		event.Data.CanceledBy = req.CanceledBy
		event.Data.EndReason = models.EndReasonCanceled
		event.Data.FinalStatus = models.MeetingStatusCanceled
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "canceled meeting", "meeting_uid", meeting.UID, "canceled_by", req.CanceledBy)
	s.finishTerminal(ctx, meeting)
	return meeting, nil
}

// EndMeeting explicitly ends an active call on behalf of a participant or
// admin. Calls shorter than the configured minimum land in `ended` and count
// toward nobody's statistics; the rest complete.
func (s *MeetingService) EndMeeting(ctx context.Context, req *models.EndMeetingRequest) (*models.EndMeetingResponse, error) {
	if !s.ServiceReady() {
		slog.ErrorContext(ctx, "service not initialized", logging.PriorityCritical())
		return nil, domain.NewUnavailableError("meeting service not initialized")
	}
	if req == nil || (req.MeetingUID == "" && req.RoomUID == "") {
		return nil, domain.NewValidationError("meeting UID or room UID is required")
	}
	reason := req.Reason
	if reason == "" {
		reason = models.EndReasonParticipantLeft
	}
	if reason != models.EndReasonParticipantLeft {
		return nil, domain.NewValidationError("unsupported end reason").
			WithDetail("reason", string(reason))
	}

	meetingUID := req.MeetingUID
	if meetingUID == "" {
		byRoom, err := s.MeetingRepository.GetMeetingByRoom(ctx, req.RoomUID)
		if err != nil {
			if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
				return nil, domain.NewConflictError("no meeting for room", err).
					WithCode(domain.ErrorCodeIllegalTransition).
					WithDetail("room_uid", req.RoomUID)
			}
			return nil, err
		}
		meetingUID = byRoom.UID
	}

	settings := s.Settings.Snapshot(ctx)
	meeting, err := s.updateMeetingTransition(ctx, meetingUID, func(m *models.Meeting, now time.Time) error {
		if err := s.authorizeActor(ctx, m, req.EndedBy); err != nil {
			return err
		}
		if m.Status != models.MeetingStatusActive {
			return illegalTransition(m, "end")
		}
		applyEnd(m, now, req.EndedBy, reason, settings)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "ended meeting",
		"meeting_uid", meeting.UID,
		"ended_by", req.EndedBy,
		"final_status", meeting.Status,
	)
	s.finishTerminal(ctx, meeting)
	return &models.EndMeetingResponse{
		Meeting:               meeting,
		ActualDurationMinutes: meeting.ActualDurationMinutes(),
		FinalStatus:           meeting.Status,
	}, nil
}

// HandleRoomActive moves a meeting to active when the signaling service
// reports both peers present. For an already-active meeting it only re-arms
// the timers, which clears a pending disconnect deadline.
func (s *MeetingService) HandleRoomActive(ctx context.Context, roomUID string) error {
	if !s.ServiceReady() {
		slog.ErrorContext(ctx, "service not initialized", logging.PriorityCritical())
		return domain.NewUnavailableError("meeting service not initialized")
	}

	current, err := s.MeetingRepository.GetMeetingByRoom(ctx, roomUID)
	if err != nil {
		return err
	}
	if current.Status == models.MeetingStatusActive {
		s.scheduleTimers(current)
		return nil
	}

	meeting, err := s.updateMeetingTransition(ctx, current.UID, func(m *models.Meeting, now time.Time) error {
		if m.Status == models.MeetingStatusActive {
			return errTransitionSuperseded
		}
		if !m.Status.CanTransitionTo(models.MeetingStatusActive) {
			return illegalTransition(m, "start")
		}
		m.Status = models.MeetingStatusActive
		m.ActualStart = &now
		m.UpdatedAt = &now
		event := m.RecordEvent(models.MeetingEventStarted, now)
		event.Data.ActualStart = &now
		return nil
	})
	if err != nil {
		if errors.Is(err, errTransitionSuperseded) {
			return nil
		}
		return err
	}

	slog.InfoContext(ctx, "meeting started",
		"meeting_uid", meeting.UID,
		"room_uid", meeting.RoomUID,
		"actual_start", meeting.ActualStart,
	)
	s.kickFlush(meeting.UID)
	s.scheduleTimers(meeting)
	return nil
}

// HandleRoomEmpty arms the reconnection grace timer when the signaling
// service reports an active meeting's room drained. The record itself is not
// touched; a rejoin within the grace simply re-arms the timers.
func (s *MeetingService) HandleRoomEmpty(ctx context.Context, roomUID string) error {
	if !s.ServiceReady() {
		slog.ErrorContext(ctx, "service not initialized", logging.PriorityCritical())
		return domain.NewUnavailableError("meeting service not initialized")
	}

	meeting, err := s.MeetingRepository.GetMeetingByRoom(ctx, roomUID)
	if err != nil {
		return err
	}
	if meeting.Status != models.MeetingStatusActive {
		return nil
	}

	due := s.Clock.Now().UTC().Add(constants.DisconnectGrace)
	if s.Timers != nil {
		s.Timers.ScheduleDisconnectTimer(meeting.UID, due)
	}
	slog.DebugContext(ctx, "room drained, disconnect grace armed",
		"meeting_uid", meeting.UID,
		"due", due,
	)
	return nil
}

// CompleteMeetingByTimer finalizes an active meeting whose call timer ran
// out. The timer path always completes: the meeting ran its full planned
// duration. A meeting another actor already moved on is a clean no-op.
func (s *MeetingService) CompleteMeetingByTimer(ctx context.Context, meetingUID string) error {
	if !s.ServiceReady() {
		slog.ErrorContext(ctx, "service not initialized", logging.PriorityCritical())
		return domain.NewUnavailableError("meeting service not initialized")
	}

	settings := s.Settings.Snapshot(ctx)
	meeting, err := s.updateMeetingTransition(ctx, meetingUID, func(m *models.Meeting, now time.Time) error {
		if m.Status != models.MeetingStatusActive {
			return errTransitionSuperseded
		}
		applyEnd(m, now, constants.SystemActorUID, models.EndReasonTimerExpired, settings)
		return nil
	})
	if err != nil {
		return s.ignoreSuperseded(ctx, meetingUID, "expiry timer", err)
	}

	slog.InfoContext(ctx, "meeting completed by timer", "meeting_uid", meeting.UID)
	s.finishTerminal(ctx, meeting)
	return nil
}

// EndMeetingAfterDisconnect finalizes an active meeting whose room stayed
// empty past the reconnection grace. The usual minimum-duration rule decides
// between completed and ended.
func (s *MeetingService) EndMeetingAfterDisconnect(ctx context.Context, meetingUID string) error {
	if !s.ServiceReady() {
		slog.ErrorContext(ctx, "service not initialized", logging.PriorityCritical())
		return domain.NewUnavailableError("meeting service not initialized")
	}

	settings := s.Settings.Snapshot(ctx)
	meeting, err := s.updateMeetingTransition(ctx, meetingUID, func(m *models.Meeting, now time.Time) error {
		if m.Status != models.MeetingStatusActive {
			return errTransitionSuperseded
		}
		applyEnd(m, now, constants.SystemActorUID, models.EndReasonParticipantLeft, settings)
		return nil
	})
	if err != nil {
		return s.ignoreSuperseded(ctx, meetingUID, "disconnect timer", err)
	}

	slog.InfoContext(ctx, "meeting ended after disconnect",
		"meeting_uid", meeting.UID,
		"final_status", meeting.Status,
	)
	s.finishTerminal(ctx, meeting)
	return nil
}

// EmitExpiryWarning queues a meeting.warning event for an active meeting
// approaching its expiry. Warnings are best effort: a meeting that already
// moved on, or whose expiry slipped into the past, is skipped silently.
func (s *MeetingService) EmitExpiryWarning(ctx context.Context, meetingUID string, minutesRemaining int) error {
	if !s.ServiceReady() {
		slog.ErrorContext(ctx, "service not initialized", logging.PriorityCritical())
		return domain.NewUnavailableError("meeting service not initialized")
	}

	meeting, err := s.updateMeetingTransition(ctx, meetingUID, func(m *models.Meeting, now time.Time) error {
		if m.Status != models.MeetingStatusActive {
			return errTransitionSuperseded
		}
		expiry, ok := m.ExpiryAt()
		if !ok || !expiry.After(now) {
			return errTransitionSuperseded
		}
		event := m.RecordEvent(models.MeetingEventWarning, now)
		event.Data.MinutesRemaining = &minutesRemaining
		return nil
	})
	if err != nil {
		return s.ignoreSuperseded(ctx, meetingUID, "expiry warning", err)
	}

	s.kickFlush(meeting.UID)
	return nil
}

// SweepOverdueScheduled transitions scheduled meetings nobody joined within
// the grace period to missed. The repository queues the terminal event and
// releases the day reservation in the same write; here the swept meetings
// get their timers dropped and their events flushed.
func (s *MeetingService) SweepOverdueScheduled(ctx context.Context) ([]*models.Meeting, error) {
	if !s.ServiceReady() {
		slog.ErrorContext(ctx, "service not initialized", logging.PriorityCritical())
		return nil, domain.NewUnavailableError("meeting service not initialized")
	}

	settings := s.Settings.Snapshot(ctx)
	now := s.Clock.Now().UTC()
	swept, err := s.MeetingRepository.MarkOverdueMissed(ctx, now.Add(-settings.AutoTimeoutGrace()), now)
	if err != nil {
		return nil, err
	}
	for _, meeting := range swept {
		s.cancelTimers(meeting.UID)
		s.kickFlush(meeting.UID)
	}
	if len(swept) > 0 {
		slog.InfoContext(ctx, "swept overdue scheduled meetings", "count", len(swept))
	}
	return swept, nil
}

// SweepStalePending cancels instant invitations nobody answered within the
// response timeout. The cancellation is reputation-neutral.
func (s *MeetingService) SweepStalePending(ctx context.Context) ([]*models.Meeting, error) {
	if !s.ServiceReady() {
		slog.ErrorContext(ctx, "service not initialized", logging.PriorityCritical())
		return nil, domain.NewUnavailableError("meeting service not initialized")
	}

	settings := s.Settings.Snapshot(ctx)
	now := s.Clock.Now().UTC()
	swept, err := s.MeetingRepository.ExpireStalePending(ctx, now.Add(-settings.InstantResponseTimeout()), now)
	if err != nil {
		return nil, err
	}
	for _, meeting := range swept {
		s.cancelTimers(meeting.UID)
		s.kickFlush(meeting.UID)
	}
	if len(swept) > 0 {
		slog.InfoContext(ctx, "expired stale instant invitations", "count", len(swept))
	}
	return swept, nil
}

// ListOpenMeetings returns every non-terminal meeting. The scheduler scans
// these at boot to reconstruct its deadlines.
func (s *MeetingService) ListOpenMeetings(ctx context.Context) ([]*models.Meeting, error) {
	if !s.ServiceReady() {
		slog.ErrorContext(ctx, "service not initialized", logging.PriorityCritical())
		return nil, domain.NewUnavailableError("meeting service not initialized")
	}

	all, err := s.MeetingRepository.ListAllMeetings(ctx)
	if err != nil {
		return nil, err
	}
	open := make([]*models.Meeting, 0, len(all))
	for _, meeting := range all {
		if !meeting.Status.IsTerminal() {
			open = append(open, meeting)
		}
	}
	return open, nil
}

// applyEnd finalizes an active meeting. A timer expiry always completes; an
// explicit or disconnect end completes only when the call ran at least the
// configured minimum, otherwise it lands in `ended`.
func applyEnd(m *models.Meeting, now time.Time, endedBy string, reason models.EndReason, settings models.EngineSettings) {
	m.EndedAt = &now
	m.EndedBy = endedBy
	m.EndReason = reason
	m.UpdatedAt = &now

	finalStatus := models.MeetingStatusEnded
	if reason == models.EndReasonTimerExpired || m.ActualDurationMinutes() >= settings.MinDurationMinutes {
		finalStatus = models.MeetingStatusCompleted
	}
	m.Status = finalStatus

	duration := m.ActualDurationMinutes()
	event := m.RecordEvent(models.MeetingEventEnded, now)
	event.Data.EndedBy = endedBy
	event.Data.EndReason = reason
	event.Data.ActualDurationMinutes = &duration
	event.Data.FinalStatus = finalStatus
}

// finishTerminal runs the bookkeeping after a terminal transition committed:
// the day reservation is released, pending timers dropped, and the queued
// event flushed.
func (s *MeetingService) finishTerminal(ctx context.Context, meeting *models.Meeting) {
	if !meeting.IsInstant {
		s.releaseDay(ctx, meeting.StudentUID, meeting.ReservedDate, meeting.UID)
	}
	s.cancelTimers(meeting.UID)
	s.kickFlush(meeting.UID)
}

// ignoreSuperseded downgrades the benign outcomes of a system-driven
// transition: the meeting moved on, or it no longer exists.
func (s *MeetingService) ignoreSuperseded(ctx context.Context, meetingUID, trigger string, err error) error {
	if errors.Is(err, errTransitionSuperseded) ||
		domain.GetErrorCode(err) == domain.ErrorCodeIllegalTransition {
		slog.DebugContext(ctx, "stale trigger for a meeting that moved on",
			"meeting_uid", meetingUID,
			"trigger", trigger,
		)
		return nil
	}
	return err
}

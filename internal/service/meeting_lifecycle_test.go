// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/talktime/meeting-engine/internal/domain"
	"github.com/talktime/meeting-engine/internal/domain/models"
	"github.com/talktime/meeting-engine/pkg/constants"
)

// activeMeeting is a baseline record mid-call, started minutesAgo minutes
// before the fixture's now.
func activeMeeting(now time.Time, minutesAgo int) *models.Meeting {
	meeting := scheduledMeeting(now)
	meeting.Status = models.MeetingStatusActive
	started := now.Add(-time.Duration(minutesAgo) * time.Minute)
	meeting.ActualStart = &started
	meeting.EventSeq = 2
	return meeting
}

// expectTerminalCleanup wires the post-transition bookkeeping of a
// non-instant meeting.
func (f *meetingFixture) expectTerminalCleanup(meetingUID string) {
	f.repo.On("ReleaseDay", mock.Anything, "stu-1", "2025-06-16", meetingUID).
		Return(nil)
	f.timers.On("CancelMeetingTimers", meetingUID).Return()
	f.kicker.On("KickFlush", meetingUID).Return()
}

func TestMeetingServiceCancelMeeting(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("a participant cancels a scheduled meeting", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := scheduledMeeting(now)
		f.repo.On("GetMeetingWithRevision", mock.Anything, "meeting-1").
			Return(meeting, uint64(3), nil)
		f.repo.On("UpdateMeeting", mock.Anything, meeting, uint64(3)).
			Return(nil)
		f.expectTerminalCleanup("meeting-1")

		canceled, err := f.service.CancelMeeting(ctx, &models.CancelMeetingRequest{
			MeetingUID: "meeting-1",
			CanceledBy: "stu-1",
		})
		require.NoError(t, err)

		assert.Equal(t, models.MeetingStatusCanceled, canceled.Status)
		assert.Equal(t, models.EndReasonCanceled, canceled.EndReason)
		assert.Equal(t, "stu-1", canceled.EndedBy)
		require.NotNil(t, canceled.EndedAt)
		assert.Equal(t, now, *canceled.EndedAt)

		require.Len(t, canceled.PendingEvents, 1)
		event := canceled.PendingEvents[0]
		assert.Equal(t, models.MeetingEventCanceled, event.Type)
		assert.Equal(t, "stu-1", event.Data.CanceledBy)
		assert.Equal(t, models.MeetingStatusCanceled, event.Data.FinalStatus)

		f.repo.AssertExpectations(t)
		f.timers.AssertExpectations(t)
		f.kicker.AssertExpectations(t)
	})

	t.Run("an admin may cancel someone else's meeting", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := scheduledMeeting(now)
		f.expectUser("admin-1", models.UserRoleAdmin, "")
		f.repo.On("GetMeetingWithRevision", mock.Anything, "meeting-1").
			Return(meeting, uint64(3), nil)
		f.repo.On("UpdateMeeting", mock.Anything, meeting, uint64(3)).
			Return(nil)
		f.expectTerminalCleanup("meeting-1")

		canceled, err := f.service.CancelMeeting(ctx, &models.CancelMeetingRequest{
			MeetingUID: "meeting-1",
			CanceledBy: "admin-1",
		})
		require.NoError(t, err)
		assert.Equal(t, "admin-1", canceled.EndedBy)
	})

	t.Run("outsiders may not cancel", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := scheduledMeeting(now)
		f.expectUser("other-1", models.UserRoleVolunteer, "")
		f.repo.On("GetMeetingWithRevision", mock.Anything, "meeting-1").
			Return(meeting, uint64(3), nil)

		_, err := f.service.CancelMeeting(ctx, &models.CancelMeetingRequest{
			MeetingUID: "meeting-1",
			CanceledBy: "other-1",
		})
		require.Error(t, err)
		assert.Equal(t, domain.ErrorTypeUnauthorized, domain.GetErrorType(err))
		f.repo.AssertNotCalled(t, "UpdateMeeting", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("terminal states are absorbing", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := scheduledMeeting(now)
		meeting.Status = models.MeetingStatusCompleted
		f.repo.On("GetMeetingWithRevision", mock.Anything, "meeting-1").
			Return(meeting, uint64(3), nil)

		_, err := f.service.CancelMeeting(ctx, &models.CancelMeetingRequest{
			MeetingUID: "meeting-1",
			CanceledBy: "stu-1",
		})
		require.Error(t, err)
		assert.Equal(t, domain.ErrorCodeIllegalTransition, domain.GetErrorCode(err))
	})

	t.Run("canceling a meeting that does not exist is an illegal transition", func(t *testing.T) {
		f := newMeetingFixture(now)
		f.repo.On("GetMeetingWithRevision", mock.Anything, "missing-1").
			Return(nil, uint64(0), domain.NewNotFoundError("meeting not found"))

		_, err := f.service.CancelMeeting(ctx, &models.CancelMeetingRequest{
			MeetingUID: "missing-1",
			CanceledBy: "stu-1",
		})
		require.Error(t, err)
		assert.Equal(t, domain.ErrorTypeConflict, domain.GetErrorType(err))
		assert.Equal(t, domain.ErrorCodeIllegalTransition, domain.GetErrorCode(err))
	})

	t.Run("canceling an instant invitation releases no day", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := scheduledMeeting(now)
		meeting.Status = models.MeetingStatusPending
		meeting.IsInstant = true
		meeting.ReservedDate = ""
		f.repo.On("GetMeetingWithRevision", mock.Anything, "meeting-1").
			Return(meeting, uint64(3), nil)
		f.repo.On("UpdateMeeting", mock.Anything, meeting, uint64(3)).
			Return(nil)
		f.timers.On("CancelMeetingTimers", "meeting-1").Return()
		f.kicker.On("KickFlush", "meeting-1").Return()

		_, err := f.service.CancelMeeting(ctx, &models.CancelMeetingRequest{
			MeetingUID: "meeting-1",
			CanceledBy: "vol-1",
		})
		require.NoError(t, err)
		f.repo.AssertNotCalled(t, "ReleaseDay", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestMeetingServiceEndMeeting(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("a call past the minimum duration completes", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := activeMeeting(now, 10)
		f.repo.On("GetMeetingWithRevision", mock.Anything, "meeting-1").
			Return(meeting, uint64(5), nil)
		f.repo.On("UpdateMeeting", mock.Anything, meeting, uint64(5)).
			Return(nil)
		f.expectTerminalCleanup("meeting-1")

		response, err := f.service.EndMeeting(ctx, &models.EndMeetingRequest{
			MeetingUID: "meeting-1",
			EndedBy:    "vol-1",
		})
		require.NoError(t, err)

		assert.Equal(t, models.MeetingStatusCompleted, response.FinalStatus)
		assert.Equal(t, 10, response.ActualDurationMinutes)
		assert.Equal(t, models.EndReasonParticipantLeft, response.Meeting.EndReason)
		assert.Equal(t, "vol-1", response.Meeting.EndedBy)

		require.Len(t, response.Meeting.PendingEvents, 1)
		event := response.Meeting.PendingEvents[0]
		assert.Equal(t, models.MeetingEventEnded, event.Type)
		assert.Equal(t, uint64(3), event.Data.Seq)
		assert.Equal(t, models.MeetingStatusCompleted, event.Data.FinalStatus)
		require.NotNil(t, event.Data.ActualDurationMinutes)
		assert.Equal(t, 10, *event.Data.ActualDurationMinutes)
	})

	t.Run("a short call lands in ended and counts for nothing", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := activeMeeting(now, 2)
		f.repo.On("GetMeetingWithRevision", mock.Anything, "meeting-1").
			Return(meeting, uint64(5), nil)
		f.repo.On("UpdateMeeting", mock.Anything, meeting, uint64(5)).
			Return(nil)
		f.expectTerminalCleanup("meeting-1")

		response, err := f.service.EndMeeting(ctx, &models.EndMeetingRequest{
			MeetingUID: "meeting-1",
			EndedBy:    "stu-1",
		})
		require.NoError(t, err)

		assert.Equal(t, models.MeetingStatusEnded, response.FinalStatus)
		assert.Equal(t, 2, response.ActualDurationMinutes)
		assert.False(t, response.Meeting.CountsTowardPairLimit())
	})

	t.Run("the meeting can be addressed by its room", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := activeMeeting(now, 10)
		f.repo.On("GetMeetingByRoom", mock.Anything, "room-1").
			Return(meeting, nil)
		f.repo.On("GetMeetingWithRevision", mock.Anything, "meeting-1").
			Return(meeting, uint64(5), nil)
		f.repo.On("UpdateMeeting", mock.Anything, meeting, uint64(5)).
			Return(nil)
		f.expectTerminalCleanup("meeting-1")

		response, err := f.service.EndMeeting(ctx, &models.EndMeetingRequest{
			RoomUID: "room-1",
			EndedBy: "vol-1",
		})
		require.NoError(t, err)
		assert.Equal(t, "meeting-1", response.Meeting.UID)
	})

	t.Run("a room with no meeting is an illegal transition", func(t *testing.T) {
		f := newMeetingFixture(now)
		f.repo.On("GetMeetingByRoom", mock.Anything, "ghost-room").
			Return(nil, domain.NewNotFoundError("room not found"))

		_, err := f.service.EndMeeting(ctx, &models.EndMeetingRequest{
			RoomUID: "ghost-room",
			EndedBy: "vol-1",
		})
		require.Error(t, err)
		assert.Equal(t, domain.ErrorCodeIllegalTransition, domain.GetErrorCode(err))
	})

	t.Run("external callers may only end with participant_left", func(t *testing.T) {
		f := newMeetingFixture(now)

		_, err := f.service.EndMeeting(ctx, &models.EndMeetingRequest{
			MeetingUID: "meeting-1",
			EndedBy:    "vol-1",
			Reason:     models.EndReasonTimerExpired,
		})
		require.Error(t, err)
		assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))
	})

	t.Run("only active meetings end", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := scheduledMeeting(now)
		f.repo.On("GetMeetingWithRevision", mock.Anything, "meeting-1").
			Return(meeting, uint64(3), nil)

		_, err := f.service.EndMeeting(ctx, &models.EndMeetingRequest{
			MeetingUID: "meeting-1",
			EndedBy:    "vol-1",
		})
		require.Error(t, err)
		assert.Equal(t, domain.ErrorCodeIllegalTransition, domain.GetErrorCode(err))
	})
}

func TestMeetingServiceSystemTransitions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("the call timer always completes, even a short call", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := activeMeeting(now, 2)
		f.repo.On("GetMeetingWithRevision", mock.Anything, "meeting-1").
			Return(meeting, uint64(5), nil)
		f.repo.On("UpdateMeeting", mock.Anything, meeting, uint64(5)).
			Return(nil)
		f.expectTerminalCleanup("meeting-1")

		require.NoError(t, f.service.CompleteMeetingByTimer(ctx, "meeting-1"))

		assert.Equal(t, models.MeetingStatusCompleted, meeting.Status)
		assert.Equal(t, models.EndReasonTimerExpired, meeting.EndReason)
		assert.Equal(t, constants.SystemActorUID, meeting.EndedBy)
	})

	t.Run("a timer for a meeting that moved on is a clean no-op", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := scheduledMeeting(now)
		meeting.Status = models.MeetingStatusCanceled
		f.repo.On("GetMeetingWithRevision", mock.Anything, "meeting-1").
			Return(meeting, uint64(5), nil)

		require.NoError(t, f.service.CompleteMeetingByTimer(ctx, "meeting-1"))
		f.repo.AssertNotCalled(t, "UpdateMeeting", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("a timer for a vanished meeting is a clean no-op", func(t *testing.T) {
		f := newMeetingFixture(now)
		f.repo.On("GetMeetingWithRevision", mock.Anything, "missing-1").
			Return(nil, uint64(0), domain.NewNotFoundError("meeting not found"))

		require.NoError(t, f.service.CompleteMeetingByTimer(ctx, "missing-1"))
	})

	t.Run("a disconnect past the grace applies the minimum-duration rule", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := activeMeeting(now, 2)
		f.repo.On("GetMeetingWithRevision", mock.Anything, "meeting-1").
			Return(meeting, uint64(5), nil)
		f.repo.On("UpdateMeeting", mock.Anything, meeting, uint64(5)).
			Return(nil)
		f.expectTerminalCleanup("meeting-1")

		require.NoError(t, f.service.EndMeetingAfterDisconnect(ctx, "meeting-1"))

		assert.Equal(t, models.MeetingStatusEnded, meeting.Status)
		assert.Equal(t, models.EndReasonParticipantLeft, meeting.EndReason)
		assert.Equal(t, constants.SystemActorUID, meeting.EndedBy)
	})

	t.Run("a disconnect timer for a finished meeting is a clean no-op", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := scheduledMeeting(now)
		meeting.Status = models.MeetingStatusCompleted
		f.repo.On("GetMeetingWithRevision", mock.Anything, "meeting-1").
			Return(meeting, uint64(5), nil)

		require.NoError(t, f.service.EndMeetingAfterDisconnect(ctx, "meeting-1"))
		f.repo.AssertNotCalled(t, "UpdateMeeting", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestMeetingServiceEmitExpiryWarning(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("queues a warning with the minutes remaining", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := activeMeeting(now, 35) // 40-minute call, 5 minutes left
		f.repo.On("GetMeetingWithRevision", mock.Anything, "meeting-1").
			Return(meeting, uint64(5), nil)
		f.repo.On("UpdateMeeting", mock.Anything, meeting, uint64(5)).
			Return(nil)
		f.kicker.On("KickFlush", "meeting-1").Return()

		require.NoError(t, f.service.EmitExpiryWarning(ctx, "meeting-1", 5))

		assert.Equal(t, models.MeetingStatusActive, meeting.Status)
		require.Len(t, meeting.PendingEvents, 1)
		event := meeting.PendingEvents[0]
		assert.Equal(t, models.MeetingEventWarning, event.Type)
		require.NotNil(t, event.Data.MinutesRemaining)
		assert.Equal(t, 5, *event.Data.MinutesRemaining)
		f.kicker.AssertExpectations(t)
	})

	t.Run("skips a meeting already past its expiry", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := activeMeeting(now, 45) // 40-minute call, expiry in the past
		f.repo.On("GetMeetingWithRevision", mock.Anything, "meeting-1").
			Return(meeting, uint64(5), nil)

		require.NoError(t, f.service.EmitExpiryWarning(ctx, "meeting-1", 5))
		f.repo.AssertNotCalled(t, "UpdateMeeting", mock.Anything, mock.Anything, mock.Anything)
		f.kicker.AssertNotCalled(t, "KickFlush", mock.Anything)
	})

	t.Run("skips a meeting that is not active", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := scheduledMeeting(now)
		f.repo.On("GetMeetingWithRevision", mock.Anything, "meeting-1").
			Return(meeting, uint64(5), nil)

		require.NoError(t, f.service.EmitExpiryWarning(ctx, "meeting-1", 5))
		f.repo.AssertNotCalled(t, "UpdateMeeting", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestMeetingServiceRoomSignals(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("room active starts a scheduled meeting", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := scheduledMeeting(now)
		f.repo.On("GetMeetingByRoom", mock.Anything, "room-1").
			Return(meeting, nil)
		f.repo.On("GetMeetingWithRevision", mock.Anything, "meeting-1").
			Return(meeting, uint64(3), nil)
		f.repo.On("UpdateMeeting", mock.Anything, meeting, uint64(3)).
			Return(nil)
		f.kicker.On("KickFlush", "meeting-1").Return()
		f.timers.On("ScheduleMeetingTimers", meeting).Return()

		require.NoError(t, f.service.HandleRoomActive(ctx, "room-1"))

		assert.Equal(t, models.MeetingStatusActive, meeting.Status)
		require.NotNil(t, meeting.ActualStart)
		assert.Equal(t, now, *meeting.ActualStart)

		require.Len(t, meeting.PendingEvents, 1)
		event := meeting.PendingEvents[0]
		assert.Equal(t, models.MeetingEventStarted, event.Type)
		assert.Equal(t, now, *event.Data.ActualStart)
		f.timers.AssertExpectations(t)
	})

	t.Run("room active on an already-active meeting only re-arms timers", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := activeMeeting(now, 10)
		f.repo.On("GetMeetingByRoom", mock.Anything, "room-1").
			Return(meeting, nil)
		f.timers.On("ScheduleMeetingTimers", meeting).Return()

		require.NoError(t, f.service.HandleRoomActive(ctx, "room-1"))
		f.repo.AssertNotCalled(t, "UpdateMeeting", mock.Anything, mock.Anything, mock.Anything)
		f.timers.AssertExpectations(t)
	})

	t.Run("room active on a terminal meeting is an illegal transition", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := scheduledMeeting(now)
		meeting.Status = models.MeetingStatusMissed
		f.repo.On("GetMeetingByRoom", mock.Anything, "room-1").
			Return(meeting, nil)
		f.repo.On("GetMeetingWithRevision", mock.Anything, "meeting-1").
			Return(meeting, uint64(3), nil)

		err := f.service.HandleRoomActive(ctx, "room-1")
		require.Error(t, err)
		assert.Equal(t, domain.ErrorCodeIllegalTransition, domain.GetErrorCode(err))
	})

	t.Run("room empty arms the reconnection grace", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := activeMeeting(now, 10)
		f.repo.On("GetMeetingByRoom", mock.Anything, "room-1").
			Return(meeting, nil)
		f.timers.On("ScheduleDisconnectTimer", "meeting-1", now.Add(constants.DisconnectGrace)).Return()

		require.NoError(t, f.service.HandleRoomEmpty(ctx, "room-1"))
		f.timers.AssertExpectations(t)
		f.repo.AssertNotCalled(t, "UpdateMeeting", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("room empty for a non-active meeting does nothing", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := scheduledMeeting(now)
		f.repo.On("GetMeetingByRoom", mock.Anything, "room-1").
			Return(meeting, nil)

		require.NoError(t, f.service.HandleRoomEmpty(ctx, "room-1"))
		f.timers.AssertNotCalled(t, "ScheduleDisconnectTimer", mock.Anything, mock.Anything)
	})
}

func TestMeetingServiceSweeps(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	settings := models.DefaultEngineSettings()

	t.Run("the overdue sweep drops timers and flushes each swept meeting", func(t *testing.T) {
		f := newMeetingFixture(now)
		swept := []*models.Meeting{
			{UID: "missed-1", Status: models.MeetingStatusMissed},
			{UID: "missed-2", Status: models.MeetingStatusMissed},
		}
		f.repo.On("MarkOverdueMissed", mock.Anything, now.Add(-settings.AutoTimeoutGrace()), now).
			Return(swept, nil)
		for _, meeting := range swept {
			f.timers.On("CancelMeetingTimers", meeting.UID).Return()
			f.kicker.On("KickFlush", meeting.UID).Return()
		}

		result, err := f.service.SweepOverdueScheduled(ctx)
		require.NoError(t, err)
		assert.Len(t, result, 2)
		f.timers.AssertExpectations(t)
		f.kicker.AssertExpectations(t)
	})

	t.Run("the pending sweep uses the instant response timeout", func(t *testing.T) {
		f := newMeetingFixture(now)
		swept := []*models.Meeting{{UID: "stale-1", Status: models.MeetingStatusCanceled}}
		f.repo.On("ExpireStalePending", mock.Anything, now.Add(-settings.InstantResponseTimeout()), now).
			Return(swept, nil)
		f.timers.On("CancelMeetingTimers", "stale-1").Return()
		f.kicker.On("KickFlush", "stale-1").Return()

		result, err := f.service.SweepStalePending(ctx)
		require.NoError(t, err)
		assert.Len(t, result, 1)
		f.repo.AssertExpectations(t)
	})

	t.Run("an empty sweep flushes nothing", func(t *testing.T) {
		f := newMeetingFixture(now)
		f.repo.On("MarkOverdueMissed", mock.Anything, mock.Anything, mock.Anything).
			Return([]*models.Meeting{}, nil)

		result, err := f.service.SweepOverdueScheduled(ctx)
		require.NoError(t, err)
		assert.Empty(t, result)
		f.kicker.AssertNotCalled(t, "KickFlush", mock.Anything)
	})
}

func TestMeetingServiceListOpenMeetings(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	f := newMeetingFixture(now)
	f.repo.On("ListAllMeetings", mock.Anything).Return([]*models.Meeting{
		{UID: "open-1", Status: models.MeetingStatusScheduled},
		{UID: "done-1", Status: models.MeetingStatusCompleted},
		{UID: "open-2", Status: models.MeetingStatusActive},
		{UID: "done-2", Status: models.MeetingStatusCanceled},
		{UID: "open-3", Status: models.MeetingStatusPending},
	}, nil)

	open, err := f.service.ListOpenMeetings(ctx)
	require.NoError(t, err)
	require.Len(t, open, 3)
	assert.Equal(t, "open-1", open[0].UID)
	assert.Equal(t, "open-2", open[1].UID)
	assert.Equal(t, "open-3", open[2].UID)
}

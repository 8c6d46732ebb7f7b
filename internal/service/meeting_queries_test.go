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
)

func pairMeeting(uid string, start time.Time, status models.MeetingStatus) *models.Meeting {
	return &models.Meeting{
		UID:            uid,
		VolunteerUID:   "vol-1",
		StudentUID:     "stu-1",
		ScheduledStart: start,
		Status:         status,
	}
}

func TestMeetingServiceGetMeeting(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("returns the record", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := scheduledMeeting(now)
		f.repo.On("GetMeeting", mock.Anything, "meeting-1").Return(meeting, nil)

		got, err := f.service.GetMeeting(ctx, "meeting-1")
		require.NoError(t, err)
		assert.Same(t, meeting, got)
	})

	t.Run("a missing meeting stays not found on reads", func(t *testing.T) {
		f := newMeetingFixture(now)
		f.repo.On("GetMeeting", mock.Anything, "missing-1").
			Return(nil, domain.NewNotFoundError("meeting not found"))

		_, err := f.service.GetMeeting(ctx, "missing-1")
		require.Error(t, err)
		assert.Equal(t, domain.ErrorTypeNotFound, domain.GetErrorType(err))
	})

	t.Run("requires a UID", func(t *testing.T) {
		f := newMeetingFixture(now)
		_, err := f.service.GetMeeting(ctx, "")
		require.Error(t, err)
		assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))
	})
}

func TestMeetingServiceListByStudent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("returns history newest first with the pair budget", func(t *testing.T) {
		f := newMeetingFixture(now)
		f.repo.On("ListPairMeetings", mock.Anything, "vol-1", "stu-1").
			Return([]*models.Meeting{
				pairMeeting("old-1", now.Add(-72*time.Hour), models.MeetingStatusCompleted),
				pairMeeting("live-1", now.Add(-time.Hour), models.MeetingStatusActive),
				pairMeeting("gone-1", now.Add(-48*time.Hour), models.MeetingStatusCanceled),
				pairMeeting("next-1", now.Add(24*time.Hour), models.MeetingStatusScheduled),
			}, nil)

		response, err := f.service.ListByStudent(ctx, &models.ListByStudentRequest{
			StudentUID:   "stu-1",
			VolunteerUID: "vol-1",
		})
		require.NoError(t, err)

		require.Len(t, response.PairHistory, 4)
		assert.Equal(t, "next-1", response.PairHistory[0].UID)
		assert.Equal(t, "live-1", response.PairHistory[1].UID)
		assert.Equal(t, "gone-1", response.PairHistory[2].UID)
		assert.Equal(t, "old-1", response.PairHistory[3].UID)

		require.NotNil(t, response.ActiveMeeting)
		assert.Equal(t, "live-1", response.ActiveMeeting.UID)

		// Canceled meetings spend no pair budget.
		assert.Equal(t, 3, response.PairStats.Count)
		assert.Equal(t, 3, response.PairStats.Limit)
		assert.False(t, response.PairStats.CanScheduleMore)
	})

	t.Run("cleared records free pair budget", func(t *testing.T) {
		f := newMeetingFixture(now)
		cleared := pairMeeting("old-1", now.Add(-72*time.Hour), models.MeetingStatusCompleted)
		cleared.ClearedByAdmin = true
		f.repo.On("ListPairMeetings", mock.Anything, "vol-1", "stu-1").
			Return([]*models.Meeting{cleared}, nil)

		response, err := f.service.ListByStudent(ctx, &models.ListByStudentRequest{
			StudentUID:   "stu-1",
			VolunteerUID: "vol-1",
		})
		require.NoError(t, err)
		assert.Equal(t, 0, response.PairStats.Count)
		assert.True(t, response.PairStats.CanScheduleMore)
		assert.Nil(t, response.ActiveMeeting)
	})

	t.Run("requires both participants", func(t *testing.T) {
		f := newMeetingFixture(now)
		_, err := f.service.ListByStudent(ctx, &models.ListByStudentRequest{StudentUID: "stu-1"})
		require.Error(t, err)
		assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))
	})
}

func TestMeetingServiceListUpcomingAndPast(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	history := []*models.Meeting{
		pairMeeting("done-1", now.Add(-72*time.Hour), models.MeetingStatusCompleted),
		pairMeeting("soon-1", now.Add(2*time.Hour), models.MeetingStatusScheduled),
		pairMeeting("done-2", now.Add(-24*time.Hour), models.MeetingStatusMissed),
		pairMeeting("later-1", now.Add(48*time.Hour), models.MeetingStatusScheduled),
		pairMeeting("live-1", now.Add(-time.Hour), models.MeetingStatusActive),
	}

	t.Run("upcoming meetings are open, soonest first", func(t *testing.T) {
		f := newMeetingFixture(now)
		f.repo.On("ListByParticipant", mock.Anything, "vol-1").Return(history, nil)

		meetings, err := f.service.ListUpcoming(ctx, &models.ListMeetingsRequest{ParticipantUID: "vol-1"})
		require.NoError(t, err)
		require.Len(t, meetings, 3)
		assert.Equal(t, "live-1", meetings[0].UID)
		assert.Equal(t, "soon-1", meetings[1].UID)
		assert.Equal(t, "later-1", meetings[2].UID)
	})

	t.Run("past meetings are terminal, most recent first", func(t *testing.T) {
		f := newMeetingFixture(now)
		f.repo.On("ListByParticipant", mock.Anything, "vol-1").Return(history, nil)

		meetings, err := f.service.ListPast(ctx, &models.ListMeetingsRequest{ParticipantUID: "vol-1"})
		require.NoError(t, err)
		require.Len(t, meetings, 2)
		assert.Equal(t, "done-2", meetings[0].UID)
		assert.Equal(t, "done-1", meetings[1].UID)
	})

	t.Run("the limit caps the page", func(t *testing.T) {
		f := newMeetingFixture(now)
		f.repo.On("ListByParticipant", mock.Anything, "vol-1").Return(history, nil)

		meetings, err := f.service.ListUpcoming(ctx, &models.ListMeetingsRequest{
			ParticipantUID: "vol-1",
			Limit:          1,
		})
		require.NoError(t, err)
		require.Len(t, meetings, 1)
		assert.Equal(t, "live-1", meetings[0].UID)
	})

	t.Run("requires a participant", func(t *testing.T) {
		f := newMeetingFixture(now)
		_, err := f.service.ListUpcoming(ctx, &models.ListMeetingsRequest{})
		require.Error(t, err)
		assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))
	})
}

func TestMeetingServiceClearMeetingRecord(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("an admin clears a terminal record", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := scheduledMeeting(now)
		meeting.Status = models.MeetingStatusCanceled
		f.expectUser("admin-1", models.UserRoleAdmin, "")
		f.repo.On("GetMeetingWithRevision", mock.Anything, "meeting-1").
			Return(meeting, uint64(9), nil)
		f.repo.On("UpdateMeeting", mock.Anything, meeting, uint64(9)).
			Return(nil)

		cleared, err := f.service.ClearMeetingRecord(ctx, &models.ClearMeetingRequest{
			MeetingUID: "meeting-1",
			ClearedBy:  "admin-1",
		})
		require.NoError(t, err)

		assert.True(t, cleared.ClearedByAdmin)
		assert.Equal(t, models.MeetingStatusCanceled, cleared.Status)
		// Clearing is bookkeeping, not a lifecycle transition.
		assert.Empty(t, cleared.PendingEvents)
		f.kicker.AssertNotCalled(t, "KickFlush", mock.Anything)
	})

	t.Run("clearing twice is a no-op", func(t *testing.T) {
		f := newMeetingFixture(now)
		meeting := scheduledMeeting(now)
		meeting.ClearedByAdmin = true
		f.expectUser("admin-1", models.UserRoleAdmin, "")
		f.repo.On("GetMeetingWithRevision", mock.Anything, "meeting-1").
			Return(meeting, uint64(9), nil)

		cleared, err := f.service.ClearMeetingRecord(ctx, &models.ClearMeetingRequest{
			MeetingUID: "meeting-1",
			ClearedBy:  "admin-1",
		})
		require.NoError(t, err)
		assert.True(t, cleared.ClearedByAdmin)
		f.repo.AssertNotCalled(t, "UpdateMeeting", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("participants may not clear their own records", func(t *testing.T) {
		f := newMeetingFixture(now)
		f.expectUser("vol-1", models.UserRoleVolunteer, "")

		_, err := f.service.ClearMeetingRecord(ctx, &models.ClearMeetingRequest{
			MeetingUID: "meeting-1",
			ClearedBy:  "vol-1",
		})
		require.Error(t, err)
		assert.Equal(t, domain.ErrorTypeUnauthorized, domain.GetErrorType(err))
		f.repo.AssertNotCalled(t, "GetMeetingWithRevision", mock.Anything, mock.Anything)
	})

	t.Run("a missing record stays not found", func(t *testing.T) {
		f := newMeetingFixture(now)
		f.expectUser("admin-1", models.UserRoleAdmin, "")
		f.repo.On("GetMeetingWithRevision", mock.Anything, "missing-1").
			Return(nil, uint64(0), domain.NewNotFoundError("meeting not found"))

		_, err := f.service.ClearMeetingRecord(ctx, &models.ClearMeetingRequest{
			MeetingUID: "missing-1",
			ClearedBy:  "admin-1",
		})
		require.Error(t, err)
		assert.Equal(t, domain.ErrorTypeNotFound, domain.GetErrorType(err))
	})
}

func TestMeetingServiceSyncUser(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("upserts a valid user", func(t *testing.T) {
		f := newMeetingFixture(now)
		user := &models.User{UID: "stu-1", Role: models.UserRoleStudent, Timezone: "Asia/Kolkata"}
		f.users.On("PutUser", mock.Anything, user).Return(nil)

		require.NoError(t, f.service.SyncUser(ctx, user))
		f.users.AssertExpectations(t)
	})

	t.Run("an unknown timezone is stored as-is", func(t *testing.T) {
		f := newMeetingFixture(now)
		user := &models.User{UID: "stu-1", Role: models.UserRoleStudent, Timezone: "Not/A_Zone"}
		f.users.On("PutUser", mock.Anything, user).Return(nil)

		require.NoError(t, f.service.SyncUser(ctx, user))
		assert.Equal(t, "Not/A_Zone", user.Timezone)
	})

	t.Run("rejects an unknown role", func(t *testing.T) {
		f := newMeetingFixture(now)
		err := f.service.SyncUser(ctx, &models.User{UID: "stu-1", Role: "wizard"})
		require.Error(t, err)
		assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))
		f.users.AssertNotCalled(t, "PutUser", mock.Anything, mock.Anything)
	})

	t.Run("rejects a missing UID", func(t *testing.T) {
		f := newMeetingFixture(now)
		err := f.service.SyncUser(ctx, &models.User{Role: models.UserRoleStudent})
		require.Error(t, err)
		assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))
	})
}

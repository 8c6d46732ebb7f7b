// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/talktime/meeting-engine/internal/domain/models"
)

// MockMeetingRepository implements MeetingRepository for testing
type MockMeetingRepository struct {
	mock.Mock
}

func (m *MockMeetingRepository) CreateMeeting(ctx context.Context, meeting *models.Meeting) error {
	args := m.Called(ctx, meeting)
	return args.Error(0)
}

func (m *MockMeetingRepository) MeetingExists(ctx context.Context, meetingUID string) (bool, error) {
	args := m.Called(ctx, meetingUID)
	return args.Bool(0), args.Error(1)
}

func (m *MockMeetingRepository) GetMeeting(ctx context.Context, meetingUID string) (*models.Meeting, error) {
	args := m.Called(ctx, meetingUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Meeting), args.Error(1)
}

func (m *MockMeetingRepository) GetMeetingWithRevision(ctx context.Context, meetingUID string) (*models.Meeting, uint64, error) {
	args := m.Called(ctx, meetingUID)
	if args.Get(0) == nil {
		return nil, args.Get(1).(uint64), args.Error(2)
	}
	return args.Get(0).(*models.Meeting), args.Get(1).(uint64), args.Error(2)
}

func (m *MockMeetingRepository) GetMeetingByRoom(ctx context.Context, roomUID string) (*models.Meeting, error) {
	args := m.Called(ctx, roomUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Meeting), args.Error(1)
}

func (m *MockMeetingRepository) UpdateMeeting(ctx context.Context, meeting *models.Meeting, revision uint64) error {
	args := m.Called(ctx, meeting, revision)
	return args.Error(0)
}

func (m *MockMeetingRepository) ReserveDay(ctx context.Context, meeting *models.Meeting, localDate string) error {
	args := m.Called(ctx, meeting, localDate)
	return args.Error(0)
}

func (m *MockMeetingRepository) ReleaseDay(ctx context.Context, studentUID, localDate, meetingUID string) error {
	args := m.Called(ctx, studentUID, localDate, meetingUID)
	return args.Error(0)
}

func (m *MockMeetingRepository) FindDayConflict(ctx context.Context, studentUID, localDate string) (*models.Meeting, error) {
	args := m.Called(ctx, studentUID, localDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Meeting), args.Error(1)
}

func (m *MockMeetingRepository) CountActivePair(ctx context.Context, volunteerUID, studentUID string) (int, error) {
	args := m.Called(ctx, volunteerUID, studentUID)
	return args.Int(0), args.Error(1)
}

func (m *MockMeetingRepository) ListPairMeetings(ctx context.Context, volunteerUID, studentUID string) ([]*models.Meeting, error) {
	args := m.Called(ctx, volunteerUID, studentUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Meeting), args.Error(1)
}

func (m *MockMeetingRepository) ListByParticipant(ctx context.Context, participantUID string) ([]*models.Meeting, error) {
	args := m.Called(ctx, participantUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Meeting), args.Error(1)
}

func (m *MockMeetingRepository) ListAllMeetings(ctx context.Context) ([]*models.Meeting, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Meeting), args.Error(1)
}

func (m *MockMeetingRepository) MarkOverdueMissed(ctx context.Context, cutoff, now time.Time) ([]*models.Meeting, error) {
	args := m.Called(ctx, cutoff, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Meeting), args.Error(1)
}

func (m *MockMeetingRepository) MarkOverdueMissedForPair(ctx context.Context, volunteerUID, studentUID string, cutoff, now time.Time) ([]*models.Meeting, error) {
	args := m.Called(ctx, volunteerUID, studentUID, cutoff, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Meeting), args.Error(1)
}

func (m *MockMeetingRepository) ExpireStalePending(ctx context.Context, cutoff, now time.Time) ([]*models.Meeting, error) {
	args := m.Called(ctx, cutoff, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Meeting), args.Error(1)
}

func (m *MockMeetingRepository) GetVolunteerPerformance(ctx context.Context, volunteerUID string) (models.PerformanceStats, error) {
	args := m.Called(ctx, volunteerUID)
	return args.Get(0).(models.PerformanceStats), args.Error(1)
}

// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/talktime/meeting-engine/internal/domain/models"
)

// MockNATSConn is a mock implementation of the INatsConn interface.
type MockNATSConn struct {
	mock.Mock
}

func (m *MockNATSConn) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockNATSConn) Publish(subj string, data []byte) error {
	args := m.Called(subj, data)
	return args.Error(0)
}

func TestMessageBuilder_IsReady(t *testing.T) {
	t.Run("connected", func(t *testing.T) {
		mockConn := new(MockNATSConn)
		mockConn.On("IsConnected").Return(true)

		builder := NewMessageBuilder(mockConn)

		assert.True(t, builder.IsReady())
		mockConn.AssertExpectations(t)
	})

	t.Run("disconnected", func(t *testing.T) {
		mockConn := new(MockNATSConn)
		mockConn.On("IsConnected").Return(false)

		builder := NewMessageBuilder(mockConn)

		assert.False(t, builder.IsReady())
		mockConn.AssertExpectations(t)
	})

	t.Run("nil connection", func(t *testing.T) {
		builder := NewMessageBuilder(nil)

		assert.False(t, builder.IsReady())
	})
}

func TestMessageBuilder_PublishMeetingEvent(t *testing.T) {
	ctx := context.Background()
	transitionAt := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	meeting := &models.Meeting{
		UID:          "meeting-123",
		RoomUID:      "room-abc",
		VolunteerUID: "vol-1",
		StudentUID:   "student-1",
		EventSeq:     3,
	}

	t.Run("publishes the envelope on the events subject", func(t *testing.T) {
		event := models.NewMeetingEvent(models.MeetingEventStarted, meeting, transitionAt)

		mockConn := new(MockNATSConn)
		mockConn.On("Publish", models.MeetingEventsSubject, mock.MatchedBy(func(data []byte) bool {
			var decoded models.MeetingEvent
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Errorf("failed to unmarshal event: %v", err)
				return false
			}
			return decoded.Type == models.MeetingEventStarted &&
				decoded.Data.MeetingUID == "meeting-123" &&
				decoded.Data.RoomUID == "room-abc" &&
				decoded.Data.Seq == uint64(3) &&
				decoded.Data.TransitionAt.Equal(transitionAt)
		})).Return(nil)

		builder := NewMessageBuilder(mockConn)

		err := builder.PublishMeetingEvent(ctx, &event)

		assert.NoError(t, err)
		mockConn.AssertExpectations(t)
	})

	t.Run("publish error surfaces to the caller", func(t *testing.T) {
		event := models.NewMeetingEvent(models.MeetingEventMissed, meeting, transitionAt)

		mockConn := new(MockNATSConn)
		mockConn.On("Publish", models.MeetingEventsSubject, mock.Anything).
			Return(errors.New("publish failed"))

		builder := NewMessageBuilder(mockConn)

		err := builder.PublishMeetingEvent(ctx, &event)

		assert.Error(t, err)
		mockConn.AssertExpectations(t)
	})
}

// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package messaging

import (
	"context"
	"log/slog"

	"github.com/talktime/meeting-engine/internal/domain/models"
	"github.com/talktime/meeting-engine/internal/logging"
)

// INatsConn is a NATS connection interface needed for the [MessageBuilder].
type INatsConn interface {
	IsConnected() bool
	Publish(subj string, data []byte) error
}

// MessageBuilder publishes the engine's outbound messages to the NATS server.
type MessageBuilder struct {
	NatsConn INatsConn
}

// NewMessageBuilder creates a new MessageBuilder.
func NewMessageBuilder(natsConn INatsConn) *MessageBuilder {
	return &MessageBuilder{
		NatsConn: natsConn,
	}
}

// IsReady reports whether the underlying NATS connection can publish.
func (m *MessageBuilder) IsReady() bool {
	return m.NatsConn != nil && m.NatsConn.IsConnected()
}

// sendMessage sends the message to the NATS server.
func (m *MessageBuilder) sendMessage(ctx context.Context, subject string, data []byte) error {
	err := m.NatsConn.Publish(subject, data)
	if err != nil {
		slog.ErrorContext(ctx, "error sending message to NATS", logging.ErrKey, err, "subject", subject)
		return err
	}
	slog.DebugContext(ctx, "sent message to NATS", "subject", subject)
	return nil
}

// PublishMeetingEvent publishes one lifecycle event envelope on the meeting
// events subject. Events for one meeting are published in seq order by the
// flusher; consumers deduplicate on (meeting_uid, type, seq).
func (m *MessageBuilder) PublishMeetingEvent(ctx context.Context, event *models.MeetingEvent) error {
	messageBytes, err := event.MarshalPayload()
	if err != nil {
		slog.ErrorContext(ctx, "error marshalling meeting event into JSON", logging.ErrKey, err,
			"event_type", event.Type,
			"meeting_uid", event.Data.MeetingUID,
		)
		return err
	}

	slog.DebugContext(ctx, "publishing meeting event to NATS",
		"subject", models.MeetingEventsSubject,
		"event_type", event.Type,
		"meeting_uid", event.Data.MeetingUID,
		"event_seq", event.Data.Seq,
	)

	return m.sendMessage(ctx, models.MeetingEventsSubject, messageBytes)
}

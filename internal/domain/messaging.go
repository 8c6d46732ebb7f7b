// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import (
	"context"

	"github.com/talktime/meeting-engine/internal/domain/models"
)

// Message represents a domain message interface
type Message interface {
	Subject() string
	Data() []byte
	Respond(data []byte) error
	HasReply() bool
}

// MessageHandler defines how the service handles incoming messages
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg Message)
	HandlerReady() bool
}

// MeetingEventPublisher delivers lifecycle events to the shared fan-out
// subject. Only the outbox flusher publishes; services queue events on the
// meeting record instead.
type MeetingEventPublisher interface {
	PublishMeetingEvent(ctx context.Context, event *models.MeetingEvent) error
}

// EventFlushKicker wakes the outbox flusher for a meeting whose record just
// committed pending events. Kicks are advisory; the periodic sweep picks up
// anything a lost kick leaves behind.
type EventFlushKicker interface {
	KickFlush(meetingUID string)
}

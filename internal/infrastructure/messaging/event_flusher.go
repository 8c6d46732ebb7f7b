// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/talktime/meeting-engine/internal/domain"
	"github.com/talktime/meeting-engine/internal/domain/models"
	"github.com/talktime/meeting-engine/internal/logging"
	"github.com/talktime/meeting-engine/pkg/concurrent"
)

const (
	// DefaultSweepInterval is how often the flusher scans for outbox entries
	// whose kick was lost.
	DefaultSweepInterval = 15 * time.Second

	flushQueueSize  = 256
	flushWorkers    = 4
	publishMaxTries = 3
	clearMaxTries   = 3
)

// EventFlusher drains the transactional outbox. Transitions commit their
// lifecycle events on the meeting record; the flusher publishes them in
// sequence order and clears the published prefix with a revision-checked
// write. Delivery is at-least-once: a clear lost to a concurrent transition
// republishes, and consumers deduplicate on (meeting_uid, type, seq).
type EventFlusher struct {
	MeetingRepository domain.MeetingRepository
	Publisher         domain.MeetingEventPublisher
	Clock             domain.Clock
	SweepInterval     time.Duration

	locks concurrent.KeyedMutex
	pool  *concurrent.WorkerPool
	kicks chan string
}

// NewEventFlusher creates a new EventFlusher with the default sweep interval.
func NewEventFlusher(meetingRepository domain.MeetingRepository, publisher domain.MeetingEventPublisher, clock domain.Clock) *EventFlusher {
	return &EventFlusher{
		MeetingRepository: meetingRepository,
		Publisher:         publisher,
		Clock:             clock,
		SweepInterval:     DefaultSweepInterval,
		pool:              concurrent.NewWorkerPool(flushWorkers),
		kicks:             make(chan string, flushQueueSize),
	}
}

// ServiceReady checks if the flusher is ready for use.
func (f *EventFlusher) ServiceReady() bool {
	return f.MeetingRepository != nil && f.Publisher != nil && f.Clock != nil
}

// KickFlush wakes the flusher for one meeting. It never blocks: with the
// queue full the kick is dropped and the periodic sweep delivers instead.
func (f *EventFlusher) KickFlush(meetingUID string) {
	select {
	case f.kicks <- meetingUID:
	default:
	}
}

// Run services kicks and runs the periodic sweep until the context is
// canceled. Callers run it on a dedicated goroutine.
func (f *EventFlusher) Run(ctx context.Context) {
	sweep := f.Clock.NewTimer(f.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case meetingUID := <-f.kicks:
			f.FlushMeeting(ctx, meetingUID)
		case <-sweep.C():
			f.sweepOnce(ctx)
			sweep.Reset(f.SweepInterval)
		}
	}
}

// sweepOnce flushes every meeting still carrying pending events.
func (f *EventFlusher) sweepOnce(ctx context.Context) {
	meetings, err := f.MeetingRepository.ListAllMeetings(ctx)
	if err != nil {
		slog.WarnContext(ctx, "outbox sweep cannot list meetings", logging.ErrKey, err)
		return
	}

	var jobs []func() error
	for _, meeting := range meetings {
		if len(meeting.PendingEvents) == 0 {
			continue
		}
		meetingUID := meeting.UID
		jobs = append(jobs, func() error {
			f.FlushMeeting(ctx, meetingUID)
			return nil
		})
	}
	if len(jobs) == 0 {
		return
	}

	slog.DebugContext(ctx, "outbox sweep found pending events", "meetings", len(jobs))
	if err := f.pool.RunAll(ctx, jobs...); err != nil {
		// Flush jobs report through their own logs; this only fires when the
		// context is canceled mid-sweep.
		slog.DebugContext(ctx, "outbox sweep interrupted", logging.ErrKey, err)
	}
}

// FlushMeeting publishes the meeting's pending events oldest first and clears
// what went out. Flushes of the same meeting are serialized so a kick racing
// the sweep cannot reorder the stream.
func (f *EventFlusher) FlushMeeting(ctx context.Context, meetingUID string) {
	release := f.locks.Lock(meetingUID)
	defer release()

	meeting, _, err := f.MeetingRepository.GetMeetingWithRevision(ctx, meetingUID)
	if err != nil {
		if domain.GetErrorType(err) != domain.ErrorTypeNotFound {
			slog.WarnContext(ctx, "cannot read meeting for event flush",
				logging.ErrKey, err, "meeting_uid", meetingUID)
		}
		return
	}
	if len(meeting.PendingEvents) == 0 {
		return
	}

	var flushedTo uint64
	for i := range meeting.PendingEvents {
		event := &meeting.PendingEvents[i]
		if _, err := event.MarshalPayload(); err != nil {
			// An event that cannot serialize would wedge the meeting's whole
			// stream behind it. Drop it and move on.
			slog.ErrorContext(ctx, "dropping unpublishable meeting event",
				logging.ErrKey, err, logging.PriorityCritical(),
				"meeting_uid", meetingUID,
				"event_type", event.Type,
				"event_seq", event.Data.Seq,
			)
			flushedTo = event.Data.Seq
			continue
		}
		if err := f.publishWithRetry(ctx, event); err != nil {
			slog.WarnContext(ctx, "meeting event publish failed, leaving the tail pending",
				logging.ErrKey, err,
				"meeting_uid", meetingUID,
				"event_seq", event.Data.Seq,
			)
			break
		}
		flushedTo = event.Data.Seq
	}
	if flushedTo == 0 {
		return
	}

	if err := f.clearFlushed(ctx, meetingUID, flushedTo); err != nil {
		// The events were delivered; a failed clear means a future flush
		// republishes them and consumers deduplicate.
		slog.WarnContext(ctx, "failed to clear flushed events",
			logging.ErrKey, err,
			"meeting_uid", meetingUID,
			"flushed_to", flushedTo,
		)
	}
}

func (f *EventFlusher) publishWithRetry(ctx context.Context, event *models.MeetingEvent) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.RandomizationFactor = 0
	policy.Multiplier = 4

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, f.Publisher.PublishMeetingEvent(ctx, event)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(publishMaxTries))
	return err
}

// clearFlushed removes events with seq <= upTo from the record. A conflict
// means a transition queued more events meanwhile; the re-read keeps those.
func (f *EventFlusher) clearFlushed(ctx context.Context, meetingUID string, upTo uint64) error {
	for attempt := 0; ; attempt++ {
		meeting, revision, err := f.MeetingRepository.GetMeetingWithRevision(ctx, meetingUID)
		if err != nil {
			if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
				return nil
			}
			return err
		}

		var kept []models.MeetingEvent
		for _, event := range meeting.PendingEvents {
			if event.Data.Seq > upTo {
				kept = append(kept, event)
			}
		}
		if len(kept) == len(meeting.PendingEvents) {
			return nil
		}
		meeting.PendingEvents = kept

		err = f.MeetingRepository.UpdateMeeting(ctx, meeting, revision)
		if err == nil {
			return nil
		}
		if domain.GetErrorType(err) != domain.ErrorTypeConflict || attempt >= clearMaxTries {
			return err
		}
	}
}

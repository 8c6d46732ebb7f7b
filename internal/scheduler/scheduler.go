// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package scheduler owns the wall-clock deadlines of live meetings: call
// timer expiry and its warnings, instant-invitation expiry, and reconnection
// grace. Deadlines live in an in-memory heap consumed by one run loop;
// because every dispatch re-validates against the stored record, a crash
// loses nothing that the boot restore and the periodic sweeps cannot rebuild.
package scheduler

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/talktime/meeting-engine/internal/domain"
	"github.com/talktime/meeting-engine/internal/domain/models"
	"github.com/talktime/meeting-engine/internal/logging"
)

const (
	// DefaultTickInterval is how often the periodic sweeps run.
	DefaultTickInterval = time.Minute

	// retryDelay is how long a failed expiry or disconnect dispatch waits
	// before it is tried again.
	retryDelay = 15 * time.Second

	// pendingExpirySlack pushes the invitation-expiry deadline just past the
	// sweep's strict cutoff comparison.
	pendingExpirySlack = time.Second
)

// Lifecycle is the slice of the meeting service the scheduler drives when a
// deadline fires.
type Lifecycle interface {
	CompleteMeetingByTimer(ctx context.Context, meetingUID string) error
	EndMeetingAfterDisconnect(ctx context.Context, meetingUID string) error
	EmitExpiryWarning(ctx context.Context, meetingUID string, minutesRemaining int) error
	SweepOverdueScheduled(ctx context.Context) ([]*models.Meeting, error)
	SweepStalePending(ctx context.Context) ([]*models.Meeting, error)
	ListOpenMeetings(ctx context.Context) ([]*models.Meeting, error)
}

// SettingsSource provides the engine settings snapshot deadlines are computed
// from.
type SettingsSource interface {
	Snapshot(ctx context.Context) models.EngineSettings
}

type deadlineKind uint8

const (
	kindWarning1 deadlineKind = iota
	kindWarning2
	kindExpiry
	kindDisconnect
	kindPendingExpiry
)

func (k deadlineKind) String() string {
	switch k {
	case kindWarning1:
		return "warning_1"
	case kindWarning2:
		return "warning_2"
	case kindExpiry:
		return "expiry"
	case kindDisconnect:
		return "disconnect"
	case kindPendingExpiry:
		return "pending_expiry"
	}
	return "unknown"
}

// deadline is one heap entry. seq ties the entry to its arming: re-arming or
// canceling a meeting leaves old entries in the heap, and the seq mismatch
// discards them when they surface.
type deadline struct {
	due        time.Time
	meetingUID string
	kind       deadlineKind
	seq        uint64
	minutes    int
}

type armKey struct {
	meetingUID string
	kind       deadlineKind
}

// Scheduler implements domain.MeetingTimerScheduler on a deadline heap and a
// single run loop.
type Scheduler struct {
	Lifecycle    Lifecycle
	Settings     SettingsSource
	Clock        domain.Clock
	TickInterval time.Duration

	mu       sync.Mutex
	entries  deadlineHeap
	armed    map[armKey]uint64
	nextSeq  uint64
	wake     chan struct{}
	restored bool
}

var _ domain.MeetingTimerScheduler = (*Scheduler)(nil)

// NewScheduler creates a new Scheduler with the default tick interval.
func NewScheduler(lifecycle Lifecycle, settings SettingsSource, clock domain.Clock) *Scheduler {
	return &Scheduler{
		Lifecycle:    lifecycle,
		Settings:     settings,
		Clock:        clock,
		TickInterval: DefaultTickInterval,
		armed:        make(map[armKey]uint64),
		wake:         make(chan struct{}, 1),
	}
}

// ServiceReady checks if the scheduler is ready for use.
func (s *Scheduler) ServiceReady() bool {
	return s.Lifecycle != nil && s.Settings != nil && s.Clock != nil
}

// ScheduleMeetingTimers reconciles the meeting's deadlines with its state:
// pending gets the invitation expiry, active gets the call timer and its
// warnings, everything else only cancels. Re-arming an active meeting also
// drops a pending disconnect deadline, which is how a rejoin within the grace
// keeps the call alive.
func (s *Scheduler) ScheduleMeetingTimers(meeting *models.Meeting) {
	now := s.Clock.Now().UTC()
	settings := s.Settings.Snapshot(context.Background())

	s.mu.Lock()
	s.invalidateLocked(meeting.UID)

	switch meeting.Status {
	case models.MeetingStatusPending:
		s.pushLocked(deadline{
			due:        meeting.ScheduledStart.Add(settings.InstantResponseTimeout() + pendingExpirySlack),
			meetingUID: meeting.UID,
			kind:       kindPendingExpiry,
		})
	case models.MeetingStatusActive:
		expiry, ok := meeting.ExpiryAt()
		if !ok {
			break
		}
		s.pushLocked(deadline{due: expiry, meetingUID: meeting.UID, kind: kindExpiry})
		warnings := []struct {
			kind    deadlineKind
			lead    time.Duration
			minutes int
		}{
			{kindWarning1, settings.Warning1Lead(), settings.Warning1Minutes},
			{kindWarning2, settings.Warning2Lead(), settings.Warning2Minutes},
		}
		for _, w := range warnings {
			at := expiry.Add(-w.lead)
			if at.After(now) {
				s.pushLocked(deadline{
					due:        at,
					meetingUID: meeting.UID,
					kind:       w.kind,
					minutes:    w.minutes,
				})
			}
		}
	}
	s.mu.Unlock()
	s.wakeRunLoop()
}

// ScheduleDisconnectTimer arms the reconnection grace deadline.
func (s *Scheduler) ScheduleDisconnectTimer(meetingUID string, due time.Time) {
	s.mu.Lock()
	s.pushLocked(deadline{due: due, meetingUID: meetingUID, kind: kindDisconnect})
	s.mu.Unlock()
	s.wakeRunLoop()
}

// CancelMeetingTimers drops every deadline of the meeting.
func (s *Scheduler) CancelMeetingTimers(meetingUID string) {
	s.mu.Lock()
	s.invalidateLocked(meetingUID)
	s.mu.Unlock()
}

// Run restores deadlines for the meetings already open, then services the
// heap and the periodic sweeps until the context is canceled. Callers run it
// on a dedicated goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	s.restore(ctx)

	next := s.Clock.NewTimer(s.untilNext())
	tick := s.Clock.NewTimer(s.TickInterval)
	defer next.Stop()
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			next.Reset(s.untilNext())
		case <-next.C():
			s.dispatchDue(ctx)
			next.Reset(s.untilNext())
		case <-tick.C():
			if !s.restored {
				s.restore(ctx)
			}
			s.runSweeps(ctx)
			tick.Reset(s.TickInterval)
		}
	}
}

// restore rebuilds the heap from the open meetings in the store. Deadlines
// already in the past fire on the first loop iteration.
func (s *Scheduler) restore(ctx context.Context) {
	open, err := s.Lifecycle.ListOpenMeetings(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "cannot restore meeting deadlines, retrying on the next tick",
			logging.ErrKey, err, logging.PriorityCritical())
		return
	}
	for _, meeting := range open {
		s.ScheduleMeetingTimers(meeting)
	}
	s.restored = true
	slog.InfoContext(ctx, "restored meeting deadlines", "open_meetings", len(open))
}

func (s *Scheduler) runSweeps(ctx context.Context) {
	if _, err := s.Lifecycle.SweepOverdueScheduled(ctx); err != nil {
		slog.WarnContext(ctx, "overdue meeting sweep failed", logging.ErrKey, err)
	}
	if _, err := s.Lifecycle.SweepStalePending(ctx); err != nil {
		slog.WarnContext(ctx, "stale invitation sweep failed", logging.ErrKey, err)
	}
}

// untilNext is the wait until the earliest live deadline, or a full tick when
// the heap is empty.
func (s *Scheduler) untilNext() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return s.TickInterval
	}
	return s.entries[0].due.Sub(s.Clock.Now())
}

// dispatchDue pops every deadline at or past now and dispatches the ones
// still current.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	now := s.Clock.Now()

	s.mu.Lock()
	var due []deadline
	for len(s.entries) > 0 && !s.entries[0].due.After(now) {
		entry := heap.Pop(&s.entries).(deadline)
		key := armKey{entry.meetingUID, entry.kind}
		if s.armed[key] != entry.seq {
			continue
		}
		delete(s.armed, key)
		due = append(due, entry)
	}
	s.mu.Unlock()

	for _, entry := range due {
		s.dispatch(ctx, entry)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, entry deadline) {
	var err error
	switch entry.kind {
	case kindExpiry:
		err = s.Lifecycle.CompleteMeetingByTimer(ctx, entry.meetingUID)
	case kindDisconnect:
		err = s.Lifecycle.EndMeetingAfterDisconnect(ctx, entry.meetingUID)
	case kindPendingExpiry:
		_, err = s.Lifecycle.SweepStalePending(ctx)
	case kindWarning1, kindWarning2:
		// Warnings are best effort; a failed one is not worth a retry that
		// might land after the call ended.
		if err := s.Lifecycle.EmitExpiryWarning(ctx, entry.meetingUID, entry.minutes); err != nil {
			slog.WarnContext(ctx, "expiry warning failed",
				logging.ErrKey, err, "meeting_uid", entry.meetingUID)
		}
		return
	}
	if err == nil {
		return
	}

	slog.WarnContext(ctx, "deadline dispatch failed, retrying shortly",
		logging.ErrKey, err,
		"meeting_uid", entry.meetingUID,
		"kind", entry.kind.String(),
	)
	s.mu.Lock()
	entry.due = s.Clock.Now().Add(retryDelay)
	s.pushLocked(entry)
	s.mu.Unlock()
	s.wakeRunLoop()
}

// pushLocked arms an entry and records it as the meeting's current deadline
// of that kind, superseding any earlier one.
func (s *Scheduler) pushLocked(entry deadline) {
	s.nextSeq++
	entry.seq = s.nextSeq
	s.armed[armKey{entry.meetingUID, entry.kind}] = entry.seq
	heap.Push(&s.entries, entry)
}

func (s *Scheduler) invalidateLocked(meetingUID string) {
	for kind := kindWarning1; kind <= kindPendingExpiry; kind++ {
		delete(s.armed, armKey{meetingUID, kind})
	}
}

func (s *Scheduler) wakeRunLoop() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// deadlineHeap is a min-heap ordered by due time.
type deadlineHeap []deadline

func (h deadlineHeap) Len() int           { return len(h) }
func (h deadlineHeap) Less(i, j int) bool { return h[i].due.Before(h[j].due) }
func (h deadlineHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *deadlineHeap) Push(x any) { *h = append(*h, x.(deadline)) }
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

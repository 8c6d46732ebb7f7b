// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mocks

import (
	"sync"
	"time"

	"github.com/talktime/meeting-engine/internal/domain"
)

// FakeClock is a manually advanced Clock for timer tests. Timers fire inside
// Advance, so tests decide exactly when a deadline passes and never sleep.
type FakeClock struct {
	mu     sync.Mutex
	cond   *sync.Cond
	now    time.Time
	timers []*fakeTimer
}

// NewFakeClock creates a clock frozen at the given instant.
func NewFakeClock(start time.Time) *FakeClock {
	c := &FakeClock{now: start}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Now returns the clock's current instant.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewTimer arms a timer d from the clock's current instant. A non-positive
// duration fires immediately, matching time.NewTimer.
func (c *FakeClock) NewTimer(d time.Duration) domain.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, ch: make(chan time.Time, 1)}
	t.armLocked(d)
	c.timers = append(c.timers, t)
	c.cond.Broadcast()
	return t
}

// Advance moves the clock forward and fires every armed timer whose deadline
// has passed.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for _, t := range c.timers {
		if t.active && !t.deadline.After(c.now) {
			t.fireLocked(c.now)
		}
	}
	c.cond.Broadcast()
}

// BlockUntil waits until at least n timers are armed. Tests use it to let a
// scheduler goroutine finish arming before the clock advances.
func (c *FakeClock) BlockUntil(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.armedLocked() < n {
		c.cond.Wait()
	}
}

func (c *FakeClock) armedLocked() int {
	count := 0
	for _, t := range c.timers {
		if t.active {
			count++
		}
	}
	return count
}

type fakeTimer struct {
	clock    *FakeClock
	ch       chan time.Time
	deadline time.Time
	active   bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.active
	t.active = false
	t.clock.cond.Broadcast()
	return was
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.active
	t.armLocked(d)
	t.clock.cond.Broadcast()
	return was
}

func (t *fakeTimer) armLocked(d time.Duration) {
	t.deadline = t.clock.now.Add(d)
	if d <= 0 {
		t.fireLocked(t.clock.now)
		return
	}
	t.active = true
}

func (t *fakeTimer) fireLocked(now time.Time) {
	t.active = false
	select {
	case t.ch <- now:
	default:
	}
}

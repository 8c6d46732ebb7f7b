// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package concurrent

import "sync"

// KeyedMutex provides mutual exclusion per string key. Goroutines locking the
// same key serialize; distinct keys do not contend. Entries are created on
// first use and removed when the last holder releases them, so the map stays
// bounded by the keys currently in use.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// Lock acquires the mutex for key, blocking while another goroutine holds it.
// The returned release function is idempotent, so it is safe to both defer it
// and call it early.
func (k *KeyedMutex) Lock(key string) (release func()) {
	k.mu.Lock()
	if k.entries == nil {
		k.entries = make(map[string]*keyedLock)
	}
	lock := k.entries[key]
	if lock == nil {
		lock = &keyedLock{}
		k.entries[key] = lock
	}
	lock.refs++
	k.mu.Unlock()

	lock.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			lock.mu.Unlock()
			k.mu.Lock()
			lock.refs--
			if lock.refs == 0 {
				delete(k.entries, key)
			}
			k.mu.Unlock()
		})
	}
}

// size reports the number of live entries, for tests.
func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

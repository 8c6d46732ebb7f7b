// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package constants

import "time"

// Meeting lifecycle constants
const (
	// SystemActorUID is recorded as the acting user on transitions the engine
	// performs on its own: timer expiries, sweeps and disconnect timeouts.
	SystemActorUID = "system"

	// DisconnectGrace is the reconnection window after a room empties before
	// the engine ends the call on behalf of the participants.
	DisconnectGrace = 30 * time.Second

	// MaxMeetingDurationMinutes caps the planned duration a caller may request.
	MaxMeetingDurationMinutes = 600
)

// Listing constants
const (
	// DefaultListLimit caps upcoming/past listings when the caller does not
	// ask for a specific page size.
	DefaultListLimit = 50
)

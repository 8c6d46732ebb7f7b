// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package service implements the meeting engine's use cases: scheduling
// admission, the meeting lifecycle state machine, and the cached engine
// settings. Services receive their collaborators as injected dependencies
// and return domain errors; transport concerns live in the handlers.
package service

type Service interface {
	ServiceReady() bool
}

// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/talktime/meeting-engine/internal/domain"
)

// storeRetryTries bounds how many times a transiently unavailable store call
// runs before the error surfaces to the caller.
const storeRetryTries = 3

// retryTransient runs op, retrying while it fails as unavailable with waits
// of 50ms then 200ms between tries. Every other error is permanent and
// returns immediately.
func retryTransient[T any](ctx context.Context, op func() (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.RandomizationFactor = 0
	policy.Multiplier = 4

	return backoff.Retry(ctx, func() (T, error) {
		value, err := op()
		if err != nil && domain.GetErrorType(err) != domain.ErrorTypeUnavailable {
			return value, backoff.Permanent(err)
		}
		return value, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(storeRetryTries))
}

// retryTransientErr is retryTransient for operations without a result.
func retryTransientErr(ctx context.Context, op func() error) error {
	_, err := retryTransient(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

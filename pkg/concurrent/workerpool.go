// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package concurrent

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// WorkerPool runs batches of independent jobs under a fixed concurrency
// bound.
type WorkerPool struct {
	workerCount int
}

// NewWorkerPool creates a pool that runs at most workerCount jobs at once.
func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &WorkerPool{
		workerCount: workerCount,
	}
}

// RunAll executes every job even when some fail, and returns the failures
// joined. A canceled context skips the jobs that have not started yet; jobs
// already running finish on their own.
func (wp *WorkerPool) RunAll(ctx context.Context, jobs ...func() error) error {
	if len(jobs) == 0 {
		return nil
	}

	errs := make([]error, len(jobs))
	g := new(errgroup.Group)
	g.SetLimit(wp.workerCount)
	for i, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = job()
			return nil
		})
	}

	// Jobs report through errs; the group itself never fails.
	_ = g.Wait()
	return errors.Join(errs...)
}

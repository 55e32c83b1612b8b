package simulation

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/commodity-pathsim/model"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrent runs one task at a time on one engine session.
const DefaultMaxConcurrent = 1

// Runner executes tasks on their own goroutines, at most MaxConcurrent at
// a time.
type Runner struct {
	sem *semaphore.Weighted
}

// NewRunner returns a runner bounded to maxConcurrent tasks; values below 1
// use DefaultMaxConcurrent.
func NewRunner(maxConcurrent int64) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Runner{sem: semaphore.NewWeighted(maxConcurrent)}
}

// Submit starts t once a slot is free. Cancelling ctx, or the returned
// future, abandons the wait for a slot or cancels the running task. An
// abandoned task ends in StateFailed without touching the engine.
func (r *Runner) Submit(ctx context.Context, t *Task) *Future {
	ctx, cancel := context.WithCancel(ctx)
	f := &Future{done: make(chan struct{}), cancel: cancel}

	go func() {
		defer close(f.done)
		defer cancel()

		if err := r.sem.Acquire(ctx, 1); err != nil {
			f.err = fmt.Errorf("waiting for a runner slot: %w", err)
			t.abandon(f.err)
			return
		}
		defer r.sem.Release(1)
		f.path, f.err = t.Run(ctx)
	}()
	return f
}

// Future is the pending outcome of a submitted task.
type Future struct {
	done   chan struct{}
	cancel context.CancelFunc

	path *model.SimulatedPath
	err  error
}

// Done is closed once the task has finished or was abandoned.
func (f *Future) Done() <-chan struct{} { return f.done }

// Cancel stops the task. Wait then reports the cancellation.
func (f *Future) Cancel() { f.cancel() }

// Wait blocks until the task finishes or ctx is done. Giving up on ctx does
// not cancel the task.
func (f *Future) Wait(ctx context.Context) (*model.SimulatedPath, error) {
	select {
	case <-f.done:
		return f.path, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

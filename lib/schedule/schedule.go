// Package schedule runs periodic tasks whose callbacks are delivered to a
// single event loop instead of being executed on timer goroutines.
package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Func is a callback executed by the event loop that owns the Scheduler.
// A non-nil error is treated by the loop as fatal.
type Func func() error

type Scheduler struct {
	ctx  context.Context
	fire chan<- Func
}

// New creates a scheduler that posts due callbacks onto fire. All tasks stop
// once ctx is done.
func New(ctx context.Context, fire chan<- Func) *Scheduler {
	return &Scheduler{
		ctx:  ctx,
		fire: fire,
	}
}

// Task is a cancellable periodic callback.
type Task struct {
	stop      chan struct{}
	once      sync.Once
	cancelled atomic.Bool
}

// Every posts fn to the loop every interval until the task is cancelled.
func (s *Scheduler) Every(interval time.Duration, fn Func) *Task {
	t := &Task{stop: make(chan struct{})}

	guarded := func() error {
		if t.cancelled.Load() {
			return nil
		}
		return fn()
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				select {
				case s.fire <- guarded:
				case <-t.stop:
					return
				case <-s.ctx.Done():
					return
				}
			case <-t.stop:
				return
			case <-s.ctx.Done():
				return
			}
		}
	}()

	return t
}

// Cancel stops the task. A callback already queued on the loop is skipped.
// Cancel is safe to call on a nil task and more than once.
func (t *Task) Cancel() {
	if t == nil {
		return
	}

	t.cancelled.Store(true)
	t.once.Do(func() {
		close(t.stop)
	})
}

func (t *Task) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

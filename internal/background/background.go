// Package background runs best-effort side effects detached from the request
// that triggered them. Failures are logged and counted, never returned.
package background

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTimeout bounds a single task.
const DefaultTimeout = 10 * time.Second

// Runner executes named tasks on their own goroutines.
type Runner struct {
	timeout  time.Duration
	wg       sync.WaitGroup
	failures atomic.Int64
	closed   atomic.Bool
	onError  func(name string, err error)
}

// NewRunner creates a Runner whose tasks each get timeout.
func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{timeout: timeout}
}

// OnError installs an extra sink for task failures.
func (r *Runner) OnError(fn func(name string, err error)) {
	r.onError = fn
}

// Go runs fn in the background and reports whether it was accepted. The
// task context is not derived from any request, so it survives the caller
// returning.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) bool {
	if r.closed.Load() {
		log.Printf("[Background] Dropping task %s: runner closed", name)
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		r.run(ctx, name, fn)
	}()
	return true
}

func (r *Runner) run(ctx context.Context, name string, fn func(ctx context.Context) error) {
	defer func() {
		if p := recover(); p != nil {
			r.failures.Add(1)
			log.Printf("[Background] Task %s panicked: %v", name, p)
		}
	}()
	if err := fn(ctx); err != nil {
		r.failures.Add(1)
		log.Printf("[Background] Task %s failed: %v", name, err)
		if r.onError != nil {
			r.onError(name, err)
		}
	}
}

// Failures returns the number of failed tasks since start.
func (r *Runner) Failures() int64 {
	return r.failures.Load()
}

// Wait blocks until every scheduled task has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close stops accepting tasks and waits for in-flight ones, up to ctx.
func (r *Runner) Close(ctx context.Context) error {
	r.closed.Store(true)
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

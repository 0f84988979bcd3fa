// Package ioexec provides the bounded worker-thread pool that the scheduler
// offloads blocking filesystem and object-store calls to, so the
// cooperative per-sheep loops never stall (spec.md §5). Sized by default to
// 2x the number of sheep.
package ioexec

import (
	"context"

	"github.com/gammazero/workerpool"
)

// Pool runs blocking work off the scheduler's cooperative loops.
type Pool struct {
	wp *workerpool.WorkerPool
}

// New constructs a Pool with the given number of worker threads.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{wp: workerpool.New(size)}
}

// Do submits fn and blocks until it completes, fn's error, or ctx is
// cancelled first (in which case fn's result is discarded once it
// eventually runs).
func Do(ctx context.Context, p *Pool, fn func() error) error {
	resultCh := make(chan error, 1)
	p.wp.Submit(func() {
		resultCh <- fn()
	})

	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop waits for queued work to finish and shuts the pool down.
func (p *Pool) Stop() {
	p.wp.StopWait()
}

// Size reports the configured number of worker goroutines.
func (p *Pool) Size() int {
	return p.wp.Size()
}

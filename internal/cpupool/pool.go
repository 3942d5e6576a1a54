// Package cpupool is a small bounded concurrency gate for CPU-bound work
// (PDF page-text extraction, recursive token-count splitting) that would
// otherwise scale with asynq's task concurrency rather than with the
// machine's actual core count. asynq.Config.Concurrency bounds how many
// tasks run at once; cpupool bounds, within that, how many of them are
// allowed to burn CPU on a splitting pass simultaneously.
package cpupool

import "context"

// Pool is a fixed-size semaphore: Run blocks until a slot is free (or
// ctx is done), then executes fn synchronously in the caller's own
// goroutine — it schedules work, it does not spawn it.
type Pool struct {
	sem chan struct{}
}

func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Run acquires a slot, executes fn, and releases the slot, returning
// ctx.Err() without running fn if the context is cancelled first.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.sem }()
	return fn()
}

// InUse reports how many slots are currently held, for metrics/health.
func (p *Pool) InUse() int { return len(p.sem) }

// Size reports the pool's capacity.
func (p *Pool) Size() int { return cap(p.sem) }

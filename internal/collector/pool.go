package collector

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"system_bridge/internal/models"
)

// Pool runs collector invocations on their own goroutines, at most `workers`
// at a time. A panicking collector is turned into an error; a hung one is
// abandoned after `timeout` so it cannot stall the Observer forever.
type Pool struct {
	next    Runner
	sem     *semaphore.Weighted
	timeout time.Duration
}

// NewPool wraps next. timeout <= 0 disables the per-invocation limit.
func NewPool(next Runner, workers int, timeout time.Duration) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		next:    next,
		sem:     semaphore.NewWeighted(int64(workers)),
		timeout: timeout,
	}
}

type result struct {
	data any
	err  error
}

func (p *Pool) RunService(ctx context.Context, job models.JobSpec) (any, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire worker for %s.%s: %w", job.Service, job.Method, err)
	}

	// buffered so an abandoned worker can still finish and exit
	done := make(chan result, 1)
	go func() {
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("collector %s.%s panicked: %v", job.Service, job.Method, r)}
			}
		}()
		data, err := p.next.RunService(ctx, job)
		done <- result{data: data, err: err}
	}()

	select {
	case res := <-done:
		return res.data, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("collector %s.%s: %w", job.Service, job.Method, ctx.Err())
	}
}

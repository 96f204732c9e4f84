// Package collector maps (service, method) pairs onto telemetry functions and
// runs them through a bounded, crash-contained worker pool.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"system_bridge/internal/models"
)

var ErrUnknownService = errors.New("unknown service")

// Runner is the contract every consumer of telemetry depends on.
type Runner interface {
	RunService(ctx context.Context, job models.JobSpec) (any, error)
}

// Func returns the current value for one service/method pair.
type Func func(ctx context.Context) (any, error)

type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register binds fn to (service, method), replacing any previous binding.
func (r *Registry) Register(service, method string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[models.JobSpec{Service: service, Method: method}.Key()] = fn
}

// RunService invokes the collector directly on the caller's goroutine.
func (r *Registry) RunService(ctx context.Context, job models.JobSpec) (any, error) {
	r.mu.RLock()
	fn, ok := r.funcs[job.Key()]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", job.Service, job.Method, ErrUnknownService)
	}
	return fn(ctx)
}

// Services lists registered keys in service/method form, sorted.
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.funcs))
	for k := range r.funcs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

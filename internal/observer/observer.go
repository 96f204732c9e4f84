// Package observer polls registered collector jobs on a fixed interval and
// emits a result only when it differs from the last one seen for that job.
//
// One goroutine drives all jobs. Each tick walks the job list in order and
// waits for every collector before moving on; the next tick is scheduled
// only after the current one finished, so ticks never overlap.
//
// There is no pause: Stop is terminal for an Observer and returns its job set,
// so pausing means Stop followed by a new Observer fed the same jobs.
package observer

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"system_bridge/internal/collector"
	"system_bridge/internal/logger"
	"system_bridge/internal/models"
)

// MinInterval is the polling floor; shorter intervals are raised to it.
const MinInterval = 20 * time.Second

// StatusService is the service name of the terminal event emitted by Stop.
const StatusService = "status"

var ErrStopped = errors.New("observer stopped")

type State int

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// EmitFunc receives changed results.
type EmitFunc func(models.ObserverEvent)

type Observer struct {
	runner collector.Runner
	emit   EmitFunc
	log    *logger.Logger

	mu       sync.Mutex
	interval time.Duration
	jobs     []models.JobSpec
	last     map[string]any
	state    State
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(runner collector.Runner, emit EmitFunc, log *logger.Logger) *Observer {
	return &Observer{
		runner:   runner,
		emit:     emit,
		log:      log,
		interval: MinInterval,
		last:     make(map[string]any),
	}
}

// Configure sets the polling interval, clamped to MinInterval.
func (o *Observer) Configure(interval time.Duration) time.Duration {
	if interval < MinInterval {
		interval = MinInterval
	}
	o.mu.Lock()
	o.interval = interval
	o.mu.Unlock()
	return interval
}

func (o *Observer) Interval() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.interval
}

// AddJob registers a job; a job with the same (service, method) is kept as is.
func (o *Observer) AddJob(job models.JobSpec) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == Stopped {
		return ErrStopped
	}
	for _, j := range o.jobs {
		if j.Key() == job.Key() {
			return nil
		}
	}
	o.jobs = append(o.jobs, job)
	return nil
}

// Jobs returns a copy of the registered jobs in registration order.
func (o *Observer) Jobs() []models.JobSpec {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.JobSpec(nil), o.jobs...)
}

func (o *Observer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Fetch runs the collector once outside the schedule and records the result
// as the job's last known value, so the next tick only emits on change.
func (o *Observer) Fetch(ctx context.Context, job models.JobSpec) (any, error) {
	data, err := o.runner.RunService(ctx, job)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.last[job.Key()] = data
	o.mu.Unlock()
	return data, nil
}

// Start launches the recurring task. Calling it twice is a no-op.
func (o *Observer) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == Stopped {
		return ErrStopped
	}
	if o.started {
		return nil
	}
	ctx, o.cancel = context.WithCancel(ctx)
	o.done = make(chan struct{})
	o.started = true
	go o.loop(ctx, o.done)
	return nil
}

func (o *Observer) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(o.Interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			o.Tick(ctx)
			timer.Reset(o.Interval())
		}
	}
}

// Tick performs one sequential pass over all jobs.
func (o *Observer) Tick(ctx context.Context) {
	o.mu.Lock()
	if o.state == Stopped {
		o.mu.Unlock()
		return
	}
	o.state = Running
	jobs := append([]models.JobSpec(nil), o.jobs...)
	o.mu.Unlock()

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		o.poll(ctx, job)
	}

	o.mu.Lock()
	if o.state == Running {
		o.state = Idle
	}
	o.mu.Unlock()
}

func (o *Observer) poll(ctx context.Context, job models.JobSpec) {
	data, err := o.runner.RunService(ctx, job)
	if err != nil {
		o.log.Warnw("observer_job_failed", "service", job.Service, "method", job.Method, "err", err)
		return
	}

	key := job.Key()
	o.mu.Lock()
	prev, seen := o.last[key]
	changed := !seen || !reflect.DeepEqual(prev, data)
	if changed {
		o.last[key] = data
	}
	o.mu.Unlock()

	if changed {
		o.emit(models.ObserverEvent{Service: job.Service, Method: job.Method, Data: data})
	}
}

// Stop cancels the schedule, waits for an in-flight tick, emits the terminal
// status event and returns the job set. Further calls return nil.
func (o *Observer) Stop() []models.JobSpec {
	o.mu.Lock()
	if o.state == Stopped {
		o.mu.Unlock()
		return nil
	}
	o.state = Stopped
	cancel, done := o.cancel, o.done
	jobs := o.jobs
	o.jobs = nil
	o.last = make(map[string]any)
	o.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	o.emit(models.ObserverEvent{Service: StatusService, Data: 0})
	o.log.Infow("observer_stopped", "jobs", len(jobs))
	return jobs
}

package observer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"system_bridge/internal/logger"
	"system_bridge/internal/models"
)

// scriptedRunner returns queued results per job key; the last result repeats.
type scriptedRunner struct {
	mu      sync.Mutex
	results map[string][]any
	errs    map[string]error
	calls   map[string]int
}

func newScriptedRunner() *scriptedRunner {
	return &scriptedRunner{
		results: make(map[string][]any),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (r *scriptedRunner) script(job models.JobSpec, values ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[job.Key()] = values
}

func (r *scriptedRunner) fail(job models.JobSpec, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[job.Key()] = err
}

func (r *scriptedRunner) callCount(job models.JobSpec) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[job.Key()]
}

func (r *scriptedRunner) RunService(_ context.Context, job models.JobSpec) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[job.Key()]++
	if err := r.errs[job.Key()]; err != nil {
		return nil, err
	}
	vals := r.results[job.Key()]
	if len(vals) == 0 {
		return nil, nil
	}
	v := vals[0]
	if len(vals) > 1 {
		r.results[job.Key()] = vals[1:]
	}
	return v, nil
}

type recorder struct {
	mu     sync.Mutex
	events []models.ObserverEvent
}

func (r *recorder) emit(ev models.ObserverEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []models.ObserverEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ObserverEvent(nil), r.events...)
}

var cpuJob = models.JobSpec{Service: "cpu", Method: models.DefaultMethod, Observe: true}

func newTestObserver(r *scriptedRunner, rec *recorder) *Observer {
	return New(r, rec.emit, logger.Nop())
}

func TestConfigure_ClampsToFloor(t *testing.T) {
	o := newTestObserver(newScriptedRunner(), &recorder{})
	cases := []struct {
		in, want time.Duration
	}{
		{0, MinInterval},
		{5 * time.Second, MinInterval},
		{MinInterval, MinInterval},
		{45 * time.Second, 45 * time.Second},
	}
	for _, tc := range cases {
		if got := o.Configure(tc.in); got != tc.want {
			t.Errorf("Configure(%v) = %v, want %v", tc.in, got, tc.want)
		}
		if o.Interval() != tc.want {
			t.Errorf("Interval() after Configure(%v) = %v", tc.in, o.Interval())
		}
	}
}

func TestAddJob_Idempotent(t *testing.T) {
	runner := newScriptedRunner()
	runner.script(cpuJob, map[string]any{"load": 10})
	o := newTestObserver(runner, &recorder{})

	for i := 0; i < 3; i++ {
		if err := o.AddJob(cpuJob); err != nil {
			t.Fatalf("AddJob: %v", err)
		}
	}
	// same key, different observe flag, still the same job
	_ = o.AddJob(models.JobSpec{Service: "cpu", Method: models.DefaultMethod})

	if n := len(o.Jobs()); n != 1 {
		t.Fatalf("expected 1 job, got %d", n)
	}
	o.Tick(context.Background())
	if c := runner.callCount(cpuJob); c != 1 {
		t.Fatalf("expected 1 poll per tick, got %d", c)
	}
}

func TestTick_EmitsOnlyOnChange(t *testing.T) {
	runner := newScriptedRunner()
	runner.script(cpuJob,
		map[string]any{"load": 10, "temp": 40},
		map[string]any{"temp": 40, "load": 10},
		map[string]any{"load": 55, "temp": 40},
	)
	rec := &recorder{}
	o := newTestObserver(runner, rec)
	_ = o.AddJob(cpuJob)

	ctx := context.Background()
	o.Tick(ctx)
	o.Tick(ctx)
	o.Tick(ctx)

	got := rec.all()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(got), got)
	}
	if got[1].Data.(map[string]any)["load"] != 55 {
		t.Fatalf("second event should carry load=55: %+v", got[1])
	}

	// cache holds the new value: an identical fourth result emits nothing
	o.Tick(ctx)
	if len(rec.all()) != 2 {
		t.Fatal("unchanged value after update emitted an event")
	}
}

// get-data primes the cache through Fetch; the observer then only reports changes.
func TestFetchPrimesCache_EndToEndSequence(t *testing.T) {
	runner := newScriptedRunner()
	runner.script(cpuJob, map[string]any{"load": 10}, map[string]any{"load": 10}, map[string]any{"load": 55})
	rec := &recorder{}
	o := newTestObserver(runner, rec)
	o.Configure(20 * time.Second)

	initial, err := o.Fetch(context.Background(), cpuJob)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if initial.(map[string]any)["load"] != 10 {
		t.Fatalf("initial = %v", initial)
	}
	_ = o.AddJob(cpuJob)

	o.Tick(context.Background())
	if len(rec.all()) != 0 {
		t.Fatalf("unchanged tick emitted: %+v", rec.all())
	}
	o.Tick(context.Background())
	got := rec.all()
	if len(got) != 1 || got[0].Data.(map[string]any)["load"] != 55 {
		t.Fatalf("expected exactly one load=55 event, got %+v", got)
	}
	if got[0].Event().Name != "data-cpu" {
		t.Fatalf("event name = %q", got[0].Event().Name)
	}
}

func TestTick_FailingJobDoesNotAbortTick(t *testing.T) {
	runner := newScriptedRunner()
	broken := models.JobSpec{Service: "battery", Method: models.DefaultMethod}
	runner.fail(broken, errors.New("no battery"))
	runner.script(cpuJob, 1)

	rec := &recorder{}
	o := newTestObserver(runner, rec)
	_ = o.AddJob(broken)
	_ = o.AddJob(cpuJob)

	o.Tick(context.Background())
	got := rec.all()
	if len(got) != 1 || got[0].Service != "cpu" {
		t.Fatalf("expected only the cpu event, got %+v", got)
	}

	// failing job retried on the next natural tick
	o.Tick(context.Background())
	if c := runner.callCount(broken); c != 2 {
		t.Fatalf("broken job polled %d times, want 2", c)
	}
}

func TestStop_EmitsStatusAndReturnsJobs(t *testing.T) {
	runner := newScriptedRunner()
	rec := &recorder{}
	o := newTestObserver(runner, rec)
	_ = o.AddJob(cpuJob)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	jobs := o.Stop()
	if len(jobs) != 1 || jobs[0].Key() != cpuJob.Key() {
		t.Fatalf("Stop returned %+v", jobs)
	}
	got := rec.all()
	if len(got) != 1 || got[0].Service != StatusService || got[0].Data != 0 {
		t.Fatalf("expected terminal status event, got %+v", got)
	}
	if o.State() != Stopped {
		t.Fatalf("state = %v", o.State())
	}

	if err := o.AddJob(cpuJob); !errors.Is(err, ErrStopped) {
		t.Fatalf("AddJob after Stop: %v", err)
	}
	if err := o.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("Start after Stop: %v", err)
	}
	if again := o.Stop(); again != nil {
		t.Fatal("second Stop should be a no-op")
	}
	if len(rec.all()) != 1 {
		t.Fatal("second Stop emitted again")
	}
}

// blockingRunner tracks how many invocations are in flight at once.
type blockingRunner struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (b *blockingRunner) RunService(ctx context.Context, _ models.JobSpec) (any, error) {
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		old := b.peak.Load()
		if n <= old || b.peak.CompareAndSwap(old, n) {
			break
		}
	}
	b.calls.Add(1)
	select {
	case <-time.After(15 * time.Millisecond):
	case <-ctx.Done():
	}
	return int(b.calls.Load()), nil
}

func TestLoop_TicksNeverOverlap(t *testing.T) {
	runner := &blockingRunner{}
	o := New(runner, func(models.ObserverEvent) {}, logger.Nop())
	// bypass the floor so the loop runs quickly in tests
	o.interval = time.Millisecond
	for _, s := range []string{"cpu", "memory", "disk"} {
		_ = o.AddJob(models.JobSpec{Service: s, Method: models.DefaultMethod})
	}

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for runner.calls.Load() < 9 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	o.Stop()

	if runner.calls.Load() < 9 {
		t.Fatalf("loop made only %d calls", runner.calls.Load())
	}
	if runner.peak.Load() != 1 {
		t.Fatalf("collector calls overlapped: peak=%d", runner.peak.Load())
	}
}

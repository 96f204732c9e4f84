package collector

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"system_bridge/internal/models"
)

func TestRegistry_RunService(t *testing.T) {
	r := NewRegistry()
	r.Register("battery", models.DefaultMethod, func(context.Context) (any, error) {
		return map[string]any{"percent": 80}, nil
	})

	got, err := r.RunService(context.Background(), models.JobSpec{Service: "battery", Method: models.DefaultMethod})
	if err != nil {
		t.Fatalf("RunService: %v", err)
	}
	if got.(map[string]any)["percent"] != 80 {
		t.Fatalf("unexpected data: %v", got)
	}

	_, err = r.RunService(context.Background(), models.JobSpec{Service: "battery", Method: "status"})
	if !errors.Is(err, ErrUnknownService) {
		t.Fatalf("expected ErrUnknownService, got %v", err)
	}
}

func TestRegisterDefaults_Services(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r)
	joined := strings.Join(r.Services(), ",")
	for _, want := range []string{"cpu/findAll", "cpu/load", "memory/findAll", "disk/findAll", "system/findAll", "system/uptime", "network/findAll"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %s in %s", want, joined)
		}
	}
}

func TestRound1(t *testing.T) {
	if got := round1(12.345); got != 12.3 {
		t.Fatalf("round1 = %v", got)
	}
}

func TestPool_PanicIsContained(t *testing.T) {
	r := NewRegistry()
	r.Register("bad", models.DefaultMethod, func(context.Context) (any, error) {
		panic("driver crashed")
	})
	p := NewPool(r, 1, time.Second)

	_, err := p.RunService(context.Background(), models.JobSpec{Service: "bad", Method: models.DefaultMethod})
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("expected panic error, got %v", err)
	}

	// the worker slot is released after a panic
	r.Register("good", models.DefaultMethod, func(context.Context) (any, error) { return 1, nil })
	if _, err := p.RunService(context.Background(), models.JobSpec{Service: "good", Method: models.DefaultMethod}); err != nil {
		t.Fatalf("pool unusable after panic: %v", err)
	}
}

func TestPool_TimeoutAbandonsHungCollector(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	r := NewRegistry()
	r.Register("hung", models.DefaultMethod, func(context.Context) (any, error) {
		<-release
		return nil, nil
	})
	p := NewPool(r, 2, 50*time.Millisecond)

	start := time.Now()
	_, err := p.RunService(context.Background(), models.JobSpec{Service: "hung", Method: models.DefaultMethod})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("timeout not enforced")
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	r := NewRegistry()
	r.Register("slow", models.DefaultMethod, func(context.Context) (any, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	})
	p := NewPool(r, 2, time.Second)

	done := make(chan struct{})
	for i := 0; i < 6; i++ {
		go func() {
			_, _ = p.RunService(context.Background(), models.JobSpec{Service: "slow", Method: models.DefaultMethod})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 6; i++ {
		<-done
	}
	if peak.Load() > 2 {
		t.Fatalf("peak concurrency %d exceeds pool size", peak.Load())
	}
}

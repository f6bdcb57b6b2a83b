package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harvestnet/reharvest/internal/infra/autoscale"
	"github.com/harvestnet/reharvest/internal/infra/observability"
)

type countingRunner struct {
	mu       sync.Mutex
	runs     map[string]int
	reqDelay time.Duration
	quarant  map[string]bool
}

func newCountingRunner() *countingRunner {
	return &countingRunner{runs: make(map[string]int), reqDelay: 5 * time.Millisecond, quarant: map[string]bool{}}
}

func (r *countingRunner) Run(_ context.Context, url string) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[url]++
	if r.quarant[url] {
		return 0, false
	}
	return r.reqDelay, true
}

func (r *countingRunner) count(url string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[url]
}

func TestScheduler_DispatchesAndReschedules(t *testing.T) {
	runner := newCountingRunner()
	s := New(Config{MaxConcurrent: 2}, runner)
	s.Enqueue("https://a.example/", time.Now(), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if got := runner.count("https://a.example/"); got < 2 {
		t.Errorf("expected at least 2 dispatches, got %d", got)
	}
}

func TestScheduler_PropagatesTraceIDToRunner(t *testing.T) {
	seen := make(chan string, 1)
	runner := runnerFunc(func(ctx context.Context, _ string) (time.Duration, bool) {
		seen <- observability.TraceIDFromContext(ctx)
		return time.Hour, true
	})

	s := New(Config{MaxConcurrent: 1}, runner)
	s.Enqueue("https://a.example/", time.Now(), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	select {
	case traceID := <-seen:
		if traceID == "" {
			t.Error("runner's context carried no trace ID")
		}
	default:
		t.Fatal("runner was never dispatched")
	}
}

func TestScheduler_QuarantineStopsRescheduling(t *testing.T) {
	runner := newCountingRunner()
	runner.quarant["https://bad.example/"] = true
	s := New(Config{MaxConcurrent: 2}, runner)
	s.Enqueue("https://bad.example/", time.Now(), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if got := runner.count("https://bad.example/"); got != 1 {
		t.Errorf("expected exactly 1 dispatch before quarantine, got %d", got)
	}
}

type panicRunner struct {
	calls atomic.Int32
}

func (r *panicRunner) Run(_ context.Context, url string) (time.Duration, bool) {
	r.calls.Add(1)
	panic("boom: " + url)
}

func TestScheduler_IsolatesPanickingTask(t *testing.T) {
	runner := &panicRunner{}
	s := New(Config{MaxConcurrent: 1}, runner)
	s.Enqueue("https://panics.example/", time.Now(), 0)
	s.Enqueue("https://other.example/", time.Now(), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler.Run did not return after context cancellation")
	}

	if runner.calls.Load() < 2 {
		t.Errorf("expected both URLs dispatched despite panic, calls=%d", runner.calls.Load())
	}
}

func TestScheduler_RespectsConcurrencyBound(t *testing.T) {
	var concurrent atomic.Int32
	var maxSeen atomic.Int32
	blocking := runnerFunc(func(_ context.Context, _ string) (time.Duration, bool) {
		n := concurrent.Add(1)
		for {
			cur := maxSeen.Load()
			if n <= cur || maxSeen.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		concurrent.Add(-1)
		return time.Hour, true
	})

	s := New(Config{MaxConcurrent: 2}, blocking)
	for i := 0; i < 6; i++ {
		s.Enqueue(urlFor(i), time.Now(), 0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if maxSeen.Load() > 2 {
		t.Errorf("max concurrent dispatches = %d, want <= 2", maxSeen.Load())
	}
}

func TestScheduler_AutoscalerResizesWorkerPool(t *testing.T) {
	runner := newCountingRunner()
	scaler := autoscale.NewScaler(autoscale.Config{MinCapacity: 1, MaxCapacity: 4})

	s := New(Config{
		MaxConcurrent:     4,
		MinConcurrent:     1,
		Autoscaler:        scaler,
		AutoscaleInterval: 10 * time.Millisecond,
	}, runner)

	if got := s.sem.capacity(); got != 4 {
		t.Fatalf("initial capacity = %d, want 4", got)
	}

	s.Enqueue("https://a.example/", time.Now(), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	// The scaler should have evaluated at least once and kept capacity
	// within the configured bounds.
	if got := s.sem.capacity(); got < 1 || got > 4 {
		t.Errorf("capacity after autoscale ticks = %d, want within [1,4]", got)
	}
}

type runnerFunc func(ctx context.Context, url string) (time.Duration, bool)

func (f runnerFunc) Run(ctx context.Context, url string) (time.Duration, bool) { return f(ctx, url) }

func urlFor(i int) string {
	return "https://example.test/" + string(rune('a'+i))
}

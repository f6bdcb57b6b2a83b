// Package scheduler dispatches per-URL fetch tasks at their scheduled
// absolute fire time, bounded by a worker semaphore: receive → bound
// concurrency → execute → report, driven by a time-ordered re-harvest
// loop instead of an on-demand job queue.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/harvestnet/reharvest/internal/infra/autoscale"
	"github.com/harvestnet/reharvest/internal/infra/dsa"
	"github.com/harvestnet/reharvest/internal/infra/observability"
)

// Runner executes one fetch task for url. It returns the delay until the
// URL's next fetch and ok=true to reschedule, or ok=false if the URL
// should be quarantined (no further scheduling) — the fetch-failure
// policy the task itself enforces.
type Runner interface {
	Run(ctx context.Context, url string) (next time.Duration, ok bool)
}

// Config controls scheduler concurrency. Autoscaler is optional: when set,
// the scheduler periodically feeds it the queue's length (every queued
// task, due or not) as a demand sample and resizes the worker pool to its recommendation,
// clamped within [MinConcurrent, MaxConcurrent].
type Config struct {
	MaxConcurrent     int // bound on simultaneously running fetch tasks
	MinConcurrent     int // floor the autoscaler will not shrink below
	Autoscaler        *autoscale.Scaler
	AutoscaleInterval time.Duration
}

// DefaultConfig returns a conservative concurrency bound.
func DefaultConfig() Config {
	return Config{MaxConcurrent: 8, MinConcurrent: 1, AutoscaleInterval: time.Minute}
}

// Scheduler owns the absolute-time queue and worker pool. A URL's next
// task is only enqueued after its current task's Runner.Run returns, so
// no two goroutines ever touch the same URL's Strategy concurrently.
type Scheduler struct {
	cfg    Config
	queue  *dsa.TimeQueue
	runner Runner
	sem    *resizableSem

	wg   sync.WaitGroup
	wake chan struct{} // signals the dispatch loop that the queue changed
}

// New creates a Scheduler that will dispatch to runner.
func New(cfg Config, runner Runner) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.MinConcurrent <= 0 {
		cfg.MinConcurrent = 1
	}
	if cfg.AutoscaleInterval <= 0 {
		cfg.AutoscaleInterval = time.Minute
	}
	return &Scheduler{
		cfg:    cfg,
		queue:  dsa.NewTimeQueue(),
		runner: runner,
		sem:    newResizableSem(cfg.MaxConcurrent),
		wake:   make(chan struct{}, 1),
	}
}

// Enqueue schedules url to fire at t.
func (s *Scheduler) Enqueue(url string, t time.Time, priority int) {
	s.queue.Push(dsa.TimeItem{URL: url, FireAt: t, Priority: priority})
	observability.SchedulerQueueDepth.Set(float64(s.queue.Len()))
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drives the dispatch loop until ctx is cancelled. It returns once
// every in-flight task has finished, per the scheduler's fatal-error
// policy: in-flight work is always allowed to complete.
func (s *Scheduler) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.sem.shutdown()
	}()
	if s.cfg.Autoscaler != nil {
		go s.runAutoscale(ctx)
	}

	for {
		item, ok := s.queue.Peek()
		if !ok {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return
			case <-s.wake:
				continue
			}
		}

		wait := time.Until(item.FireAt)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				s.wg.Wait()
				return
			case <-s.wake:
				timer.Stop()
				continue
			case <-timer.C:
			}
		}

		if !s.sem.acquire() {
			s.wg.Wait()
			return
		}

		due, _ := s.queue.Pop()
		observability.SchedulerQueueDepth.Set(float64(s.queue.Len()))
		s.wg.Add(1)
		go s.dispatch(ctx, due)
	}
}

// runAutoscale periodically feeds the queue depth to the configured
// autoscale.Scaler as a demand sample and resizes the worker pool to its
// recommendation, clamped to [MinConcurrent, MaxConcurrent]. Purely
// advisory capacity management — it never touches the scheduling
// semantics, only how many fetch tasks may run at once.
func (s *Scheduler) runAutoscale(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.AutoscaleInterval)
	defer ticker.Stop()

	scaler := s.cfg.Autoscaler
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			scaler.RecordDemand(autoscale.Sample{
				Demand:    float64(s.queue.Len()),
				Timestamp: now,
			})
			decision := scaler.Evaluate()
			target := decision.TargetCapacity
			if target < s.cfg.MinConcurrent {
				target = s.cfg.MinConcurrent
			}
			if target > s.cfg.MaxConcurrent {
				target = s.cfg.MaxConcurrent
			}
			s.sem.resize(target)
			observability.SchedulerWorkerCapacity.Set(float64(target))
		}
	}
}

// dispatch runs one fetch task and reschedules its URL on success.
func (s *Scheduler) dispatch(ctx context.Context, item dsa.TimeItem) {
	defer s.wg.Done()
	defer s.sem.release()

	observability.SchedulerWorkersActive.Inc()
	defer observability.SchedulerWorkersActive.Dec()

	next, ok := s.runSafely(ctx, item.URL)
	if !ok {
		log.Printf("scheduler: %s quarantined, no further fetches scheduled", item.URL)
		return
	}
	s.Enqueue(item.URL, time.Now().Add(next), item.Priority)
}

// runSafely isolates a single URL's panic from the rest of the
// scheduler — a defect in one fetch task must never bring down another
// URL's schedule.
func (s *Scheduler) runSafely(ctx context.Context, url string) (next time.Duration, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: task for %s panicked: %v", url, r)
			ok = false
		}
	}()
	ctx = observability.WithTraceID(ctx, observability.NewTraceID())
	return s.runner.Run(ctx, url)
}

// Len reports the number of queued (not yet dispatched) tasks.
func (s *Scheduler) Len() int {
	return s.queue.Len()
}

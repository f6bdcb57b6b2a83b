// Package harvester wires together the fingerprinting, strategy,
// scheduling, and persistence components into the re-harvest run the
// daemon and CLI drive.
package harvester

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/harvestnet/reharvest/internal/daemon"
	"github.com/harvestnet/reharvest/internal/domain"
	"github.com/harvestnet/reharvest/internal/fetcher"
	"github.com/harvestnet/reharvest/internal/infra/autoscale"
	"github.com/harvestnet/reharvest/internal/infra/store"
	"github.com/harvestnet/reharvest/internal/infra/strategy"
	"github.com/harvestnet/reharvest/internal/infra/warcsink"
	"github.com/harvestnet/reharvest/internal/scheduler"
)

// initialStaggerStart is how long after startup the first URL of a fresh
// list fires; Start spreads the rest across the default delay from there.
const initialStaggerStart = 10 * time.Second

// Harvester owns every component needed to run a re-harvest: the WARC
// sink, the optional history log, and the scheduler driving one fetch
// task per URL.
type Harvester struct {
	sink      *warcsink.Sink
	history   *store.DB
	scheduler *scheduler.Scheduler
	cfg       daemon.Config
}

// New constructs a Harvester from cfg, opening its WARC output and
// (if configured) its history database.
func New(cfg daemon.Config) (*Harvester, error) {
	sink, err := warcsink.Open(cfg.Output.WARCPath)
	if err != nil {
		return nil, fmt.Errorf("harvester: %w", err)
	}

	var hist *store.DB
	if cfg.Output.HistoryDBPath != "" {
		hist, err = store.Open(cfg.Output.HistoryDBPath)
		if err != nil {
			sink.Close()
			return nil, fmt.Errorf("harvester: %w", err)
		}
	}

	factory, err := strategy.Factory(cfg.Strategy.Selector)
	if err != nil {
		sink.Close()
		if hist != nil {
			hist.Close()
		}
		return nil, fmt.Errorf("harvester: %s: %w", cfg.Strategy.Selector, err)
	}

	h := &Harvester{sink: sink, history: hist, cfg: cfg}

	schedCfg := scheduler.Config{
		MaxConcurrent:     cfg.Scheduler.MaxConcurrent,
		MinConcurrent:     cfg.Scheduler.Autoscale.MinWorkers,
		AutoscaleInterval: cfg.AutoscaleIntervalDuration(),
	}
	if cfg.Scheduler.Autoscale.Enabled {
		ascfg := autoscale.DefaultConfig()
		ascfg.MinCapacity = cfg.Scheduler.Autoscale.MinWorkers
		ascfg.MaxCapacity = cfg.Scheduler.MaxConcurrent
		schedCfg.Autoscaler = autoscale.NewScaler(ascfg)
	}

	h.scheduler = scheduler.New(schedCfg, &dispatchTable{
		harvester: h,
		factory:   factory,
		tasks:     make(map[string]*fetcher.Task),
	})
	return h, nil
}

// Close releases the sink and history database.
func (h *Harvester) Close() error {
	var firstErr error
	if err := h.sink.Close(); err != nil {
		firstErr = err
	}
	if h.history != nil {
		if err := h.history.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// History returns the fetch-history log, or nil if the run was
// configured without one.
func (h *Harvester) History() *store.DB {
	return h.history
}

// LoadURLs reads one URL per non-blank, non-comment line from path.
func LoadURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("harvester: read url list: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}

// Start enqueues every url, staggering their first fetch evenly across
// the configured default delay starting initialStaggerStart from now, so
// a freshly seeded list doesn't burst every request simultaneously.
func (h *Harvester) Start(urls []string) {
	if len(urls) == 0 {
		return
	}
	spread := h.cfg.DefaultDelayDuration()
	step := spread / time.Duration(len(urls))
	for i, url := range urls {
		fireAt := time.Now().Add(initialStaggerStart + time.Duration(i)*step)
		h.scheduler.Enqueue(url, fireAt, 0)
	}
}

// Run drives the scheduler until ctx is cancelled.
func (h *Harvester) Run(ctx context.Context) {
	h.scheduler.Run(ctx)
}

// QueueDepth reports the number of URLs awaiting their next fetch.
func (h *Harvester) QueueDepth() int {
	return h.scheduler.Len()
}

// dispatchTable implements scheduler.Runner, lazily constructing one
// fetcher.Task (and its dedicated Strategy instance) per URL the first
// time it is dispatched. Different URLs' first dispatches can race each
// other on the scheduler's worker pool, so the lazy-construction path
// guards the shared map with a mutex, taken on every lookup; once a URL's
// Task exists, the Task itself needs no lock, since the scheduler runs at
// most one task per URL at a time.
type dispatchTable struct {
	harvester *Harvester
	factory   domain.StrategyFactory

	mu    sync.Mutex
	tasks map[string]*fetcher.Task
}

func (d *dispatchTable) Run(ctx context.Context, url string) (time.Duration, bool) {
	task, err := d.taskFor(url)
	if err != nil {
		slog.Default().Error("strategy construction failed", "url", url, "error", err)
		return 0, false
	}
	return task.Run(ctx, url)
}

func (d *dispatchTable) taskFor(url string) (*fetcher.Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if task, ok := d.tasks[url]; ok {
		return task, nil
	}
	strat, err := d.factory(d.harvester.cfg.DefaultDelayDuration(), d.harvester.cfg.General.Target)
	if err != nil {
		return nil, err
	}
	task := fetcher.New(url, d.harvester.sink, strat)
	task.Clamp = d.harvester.cfg.Clamp()
	task.History = d.harvester.history
	task.Client = &http.Client{Timeout: 30 * time.Second}
	d.tasks[url] = task
	return task, nil
}

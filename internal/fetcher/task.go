// Package fetcher implements the per-URL fetch task (Architecture
// component E): issue the request, persist the response, extract its
// fingerprint, feed the URL's strategy, and compute the next delay.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/harvestnet/reharvest/internal/domain"
	"github.com/harvestnet/reharvest/internal/infra/fingerprint"
	"github.com/harvestnet/reharvest/internal/infra/observability"
	"github.com/harvestnet/reharvest/internal/infra/store"
)

// Clamp bounds the delay a strategy may produce. Defaults: never faster
// than a minute, never slower than a day.
type Clamp struct {
	Min time.Duration
	Max time.Duration
}

// DefaultClamp returns the [60s, 86400s] bound.
func DefaultClamp() Clamp {
	return Clamp{Min: 60 * time.Second, Max: 86400 * time.Second}
}

// DefaultUserAgent identifies the harvester as an ordinary desktop browser
// so sites that special-case unrecognized clients serve their normal page.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

func (c Clamp) apply(d time.Duration) time.Duration {
	if d < c.Min {
		return c.Min
	}
	if d > c.Max {
		return c.Max
	}
	return d
}

// Task performs repeated captures of a single URL. Exactly one goroutine
// calls Run at a time for a given Task — the scheduler only enqueues a
// URL's next run after the previous one returns — so Strategy and lastFp
// need no internal locking.
type Task struct {
	URL      string
	Client   *http.Client
	Sink     domain.Sink
	Strategy domain.Strategy
	Clamp    Clamp
	History  *store.DB // optional; nil disables fetch-history logging
	Log      *slog.Logger

	lastFp   domain.Fingerprint
	lastTime time.Time
	hasLast  bool
}

// New builds a Task with sane defaults for an unset HTTP client, clamp,
// or logger.
func New(url string, sink domain.Sink, strat domain.Strategy) *Task {
	return &Task{
		URL:      url,
		Client:   &http.Client{Timeout: 30 * time.Second},
		Sink:     sink,
		Strategy: strat,
		Clamp:    DefaultClamp(),
		Log:      slog.Default(),
	}
}

// Run implements scheduler.Runner: fetch, persist, extract, adapt. It
// records one trace span covering the whole lifecycle the package doc
// comment promises — fetch, write, extract, estimate — under the trace
// ID the scheduler minted for this dispatch.
//
// A fetch, write, or non-2xx/3xx-status failure returns ok=false — the
// task is not rescheduled and the error never propagates past this URL.
func (t *Task) Run(ctx context.Context, url string) (next time.Duration, ok bool) {
	span := observability.DefaultTracer.StartSpan(ctx, "fetch_task", map[string]string{"url": url})
	var spanErr error
	defer func() { observability.DefaultTracer.EndSpan(span, spanErr) }()

	start := time.Now()
	resp, body, err := t.doFetch(ctx)
	if err != nil {
		spanErr = err
		t.recordFailure(start, 0, err)
		return 0, false
	}
	end := time.Now()
	timestamp := start.Add(end.Sub(start) / 2)

	delaySinceLast := 0.0
	if t.hasLast {
		delaySinceLast = timestamp.Sub(t.lastTime).Seconds()
	}

	statusLine := fmt.Sprintf("HTTP/%d.%d %s", resp.ProtoMajor, resp.ProtoMinor, resp.Status)
	if err := t.Sink.WriteResponse(url, statusLine, resp.Header, body); err != nil {
		spanErr = fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
		t.recordFailure(start, len(body), spanErr)
		return 0, false
	}
	observability.WARCBytesWritten.Add(float64(len(body)))
	observability.FetchBodyBytes.Observe(float64(len(body)))

	fp := fingerprint.Extract(body)

	var sim float64 = 1
	if t.hasLast {
		sim = fp.Similarity(t.lastFp)
		observability.FetchSimilarity.Observe(sim)
	}
	t.lastFp = fp
	t.lastTime = timestamp
	t.hasLast = true

	t.Strategy.AddCase(timestamp, fp)
	estimate := t.Strategy.GetDelay()
	rawDelay := time.Duration(estimate * float64(time.Second))
	clamped := t.Clamp.apply(rawDelay)
	switch {
	case rawDelay < t.Clamp.Min:
		observability.DelayClampedTotal.WithLabelValues("min").Inc()
	case rawDelay > t.Clamp.Max:
		observability.DelayClampedTotal.WithLabelValues("max").Inc()
	}
	observability.DelayEstimateSeconds.Observe(estimate)
	observability.FetchesTotal.WithLabelValues("success").Inc()

	t.Log.Info("fetch complete",
		"url", url,
		"status", resp.StatusCode,
		"bytes", len(body),
		"delay_sec", delaySinceLast,
		"similarity", sim,
		"estimate_sec", estimate,
		"next_delay_sec", clamped.Seconds(),
	)

	t.record(domain.FetchRecord{
		URL:        url,
		Timestamp:  timestamp,
		DelaySec:   delaySinceLast,
		Similarity: sim,
		Estimate:   estimate,
		Clamped:    clamped.Seconds(),
		BodyBytes:  len(body),
	})

	return clamped, true
}

func (t *Task) doFetch(ctx context.Context) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, nil, fmt.Errorf("%w: status %d", domain.ErrFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading body: %v", domain.ErrFetchFailed, err)
	}
	return resp, body, nil
}

func (t *Task) recordFailure(at time.Time, bodyBytes int, err error) {
	observability.FetchesTotal.WithLabelValues("failure").Inc()
	t.Log.Warn("fetch failed", "url", t.URL, "error", err)
	t.record(domain.FetchRecord{
		URL:       t.URL,
		Timestamp: at,
		BodyBytes: bodyBytes,
		Failed:    true,
		Reason:    err.Error(),
	})
}

func (t *Task) record(r domain.FetchRecord) {
	if t.History == nil {
		return
	}
	if err := t.History.Record(r); err != nil {
		t.Log.Warn("fetch history write failed", "url", r.URL, "error", err)
	}
}

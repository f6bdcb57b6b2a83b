// Package observability provides lightweight in-process tracing and the
// Prometheus metrics the scheduler and fetch tasks emit.
//
// This provides:
//   - Trace spans for a fetch task's lifecycle (fetch → write → extract → estimate)
//   - Trace-context propagation without pulling in a full OTel SDK
//   - Prometheus gauges/counters/histograms for queue depth, fetch outcomes, and delay estimates
package observability

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ═══════════════════════════════════════════════════════════════════════════
// Trace Spans — Lightweight span tracking without external OTel SDK dependency
// ═══════════════════════════════════════════════════════════════════════════

// SpanKind classifies a span.
type SpanKind int

const (
	SpanInternal SpanKind = iota
	SpanServer
	SpanClient
)

// Span represents a unit of work within a distributed trace.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	Kind      SpanKind          `json:"kind"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

// ─── Tracer ─────────────────────────────────────────────────────────────────

// Tracer provides lightweight distributed tracing.
// In production, this would wrap OpenTelemetry SDK.
// Phase 3 implementation stores spans in-memory for inspection and export.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool
	MaxSpans int // ring buffer size (default 10_000)
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		Enabled:  true,
		MaxSpans: 10_000,
	}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
	}
}

// DefaultTracer is the process-wide tracer the fetch task lifecycle
// records spans to (fetch → write → extract → estimate). The scheduler mints a trace ID per dispatch and threads it
// through the context passed to Runner.Run, so every span recorded for
// one fetch task shares a TraceID.
var DefaultTracer = NewTracer(DefaultTracerConfig())

// NewTraceID mints a fresh trace identifier for one dispatch. The
// scheduler calls this once per dispatched task and carries the result
// through the task's context via WithTraceID.
func NewTraceID() string {
	return generateID()
}

// StartSpan begins a new span with the given operation name.
// Returns the span (caller must call EndSpan when done).
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) *Span {
	if !t.enabled {
		return &Span{Operation: operation}
	}

	span := &Span{
		TraceID:   traceIDFromContext(ctx),
		SpanID:    generateID(),
		ParentID:  spanIDFromContext(ctx),
		Operation: operation,
		Kind:      SpanInternal,
		StartTime: time.Now(),
		Status:    SpanOK,
		Attrs:     attrs,
	}

	return span
}

// EndSpan completes a span and records it.
func (t *Tracer) EndSpan(span *Span, err error) {
	if !t.enabled || span == nil {
		return
	}

	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Status = SpanError
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
		TraceErrors.Inc()
	}
	TracesRecorded.Inc()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Ring buffer: overwrite oldest if at capacity
	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns a copy of the recent spans.
func (t *Tracer) Spans(limit int) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}

	// Return most recent spans
	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// Reset clears all recorded spans.
func (t *Tracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = t.spans[:0]
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const (
	traceIDKey contextKey = "reharvest-trace-id"
	spanIDKey  contextKey = "reharvest-span-id"
)

// WithTraceID returns a context with the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithSpanID returns a context with the given span ID.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

func traceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return generateID()
}

// TraceIDFromContext returns the trace ID carried by ctx (set via
// WithTraceID), or "" if none is present.
func TraceIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

func spanIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(spanIDKey).(string); ok {
		return v
	}
	return ""
}

// generateID creates a short unique ID (not cryptographically secure — fine for tracing).
var spanCounter atomic.Int64

func generateID() string {
	n := spanCounter.Add(1)
	return fmt.Sprintf("%s-%d", time.Now().Format("20060102150405"), n)
}

// ═══════════════════════════════════════════════════════════════════════════
// Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

// ─── Scheduler Metrics ──────────────────────────────────────────────────────

// SchedulerQueueDepth tracks the number of pending tasks in the
// scheduler's time queue.
var SchedulerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "reharvest",
	Subsystem: "scheduler",
	Name:      "queue_depth",
	Help:      "Current number of tasks in the scheduler queue.",
})

// SchedulerWorkersActive tracks the number of fetch tasks currently
// running.
var SchedulerWorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "reharvest",
	Subsystem: "scheduler",
	Name:      "workers_active",
	Help:      "Current number of in-flight fetch tasks.",
})

// SchedulerWorkerCapacity tracks the worker pool's current size, which
// drifts from the configured maximum only when autoscaling is enabled.
var SchedulerWorkerCapacity = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "reharvest",
	Subsystem: "scheduler",
	Name:      "worker_capacity",
	Help:      "Current worker pool capacity (may be autoscaled).",
})

// ─── Fetch Metrics ──────────────────────────────────────────────────────────

// FetchesTotal tracks fetch task outcomes by URL status.
var FetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "reharvest",
	Subsystem: "fetch",
	Name:      "total",
	Help:      "Total fetch tasks completed, by outcome.",
}, []string{"outcome"})

// FetchBodyBytes tracks the distribution of fetched response body sizes.
var FetchBodyBytes = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "reharvest",
	Subsystem: "fetch",
	Name:      "body_bytes",
	Help:      "Size in bytes of fetched response bodies.",
	Buckets:   prometheus.ExponentialBuckets(256, 4, 10),
})

// FetchSimilarity tracks the observed similarity between consecutive
// captures of the same URL.
var FetchSimilarity = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "reharvest",
	Subsystem: "fetch",
	Name:      "similarity",
	Help:      "Observed similarity between consecutive captures of a URL.",
	Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
})

// ─── Delay Estimation Metrics ───────────────────────────────────────────────

// DelayEstimateSeconds tracks the raw, pre-clamp delay estimate a
// strategy produced.
var DelayEstimateSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "reharvest",
	Subsystem: "delay",
	Name:      "estimate_seconds",
	Help:      "Raw delay estimate from a strategy, before clamping.",
	Buckets:   prometheus.ExponentialBuckets(10, 2, 14),
})

// DelayClampedTotal counts how often a raw estimate fell outside the
// configured clamp bounds and had to be adjusted.
var DelayClampedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "reharvest",
	Subsystem: "delay",
	Name:      "clamped_total",
	Help:      "Total delay estimates clamped to a configured bound.",
}, []string{"bound"})

// ─── WARC Sink Metrics ──────────────────────────────────────────────────────

// WARCBytesWritten tracks total bytes appended to the WARC output.
var WARCBytesWritten = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "reharvest",
	Subsystem: "warc",
	Name:      "bytes_written_total",
	Help:      "Total bytes appended to the WARC output file.",
})

// ─── Trace Metrics ──────────────────────────────────────────────────────────

// TracesRecorded tracks total spans recorded.
var TracesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "reharvest",
	Subsystem: "traces",
	Name:      "spans_recorded_total",
	Help:      "Total trace spans recorded.",
})

// TraceErrors tracks error spans.
var TraceErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "reharvest",
	Subsystem: "traces",
	Name:      "error_spans_total",
	Help:      "Total trace spans with error status.",
})

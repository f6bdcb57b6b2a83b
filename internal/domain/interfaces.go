package domain

import (
	"net/http"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// Strategy is a delay-estimation policy. Exactly one instance is owned per
// URL, mutated only by that URL's fetch task, and never accessed by more
// than one goroutine at a time (enforced by the scheduler: a URL's next
// task is enqueued only after its current task finishes).
type Strategy interface {
	// AddCase records an observation. Must be called at least once before
	// GetDelay in the fetch task flow, in strict timestamp order.
	AddCase(timestamp time.Time, fp Fingerprint)

	// GetDelay returns the next-delay estimate in seconds, before clamping.
	GetDelay() float64
}

// StrategyFactory constructs a fresh Strategy instance for one URL.
type StrategyFactory func(defaultDelay time.Duration, target float64) (Strategy, error)

// Sink persists one WARC response record per successful fetch. A single
// Sink is shared by every fetch task and must serialize concurrent writes.
type Sink interface {
	WriteResponse(url string, statusLine string, header http.Header, body []byte) error
}

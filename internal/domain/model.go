// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import "time"

// ─── Fingerprint ─────────────────────────────────────────────────────────

// Fingerprint is a four-channel multiset summary of a single fetched page.
// It is built once from an HTTP response body and never mutated afterward.
type Fingerprint struct {
	Word map[string]int // tokens from visible text
	Tag  map[string]int // whitespace-collapsed visible text fragments
	Link map[string]int // anchor href values
	Img  map[string]int // image src values
}

// NewFingerprint returns an empty fingerprint with all four channels
// initialized, ready for a caller to populate during extraction.
func NewFingerprint() Fingerprint {
	return Fingerprint{
		Word: make(map[string]int),
		Tag:  make(map[string]int),
		Link: make(map[string]int),
		Img:  make(map[string]int),
	}
}

// Similarity is the arithmetic mean of the per-channel Jaccard coefficients
// between two fingerprints. Reflexive (Similarity(x,x)=1), symmetric, and
// ranges into [0,1].
func (f Fingerprint) Similarity(other Fingerprint) float64 {
	return (jaccard(f.Word, other.Word) +
		jaccard(f.Tag, other.Tag) +
		jaccard(f.Link, other.Link) +
		jaccard(f.Img, other.Img)) / 4
}

// jaccard computes |A∩B| / |A∪B| over two multisets, with the convention
// that two empty multisets are fully similar (J(∅,∅)=1).
func jaccard(a, b map[string]int) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}

	var inter, union int
	for k, av := range a {
		union += maxInt(av, b[k])
		bv := b[k]
		if av < bv {
			inter += av
		} else {
			inter += bv
		}
	}
	for k, bv := range b {
		if _, ok := a[k]; !ok {
			union += bv
		}
	}
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ─── Pending task ───────────────────────────────────────────────────────

// PendingTask is one entry in the scheduler's absolute-time priority queue.
// It is created at enqueue, consumed exactly once at dispatch, and replaced
// by a new PendingTask once the corresponding fetch completes.
type PendingTask struct {
	FireAt   time.Time
	Priority int
	URL      string
}

// ─── Fetch history row (ambient — operational visibility only) ─────────

// FetchRecord is a single logged fetch outcome, persisted purely for
// operator dashboards. The core scheduling algorithm never reads it back.
type FetchRecord struct {
	URL        string
	Timestamp  time.Time
	DelaySec   float64 // observed delay since the prior capture, 0 if none
	Similarity float64 // observed similarity since the prior capture
	Estimate   float64 // raw strategy estimate before clamping, in seconds
	Clamped    float64 // next delay after clamping, in seconds
	BodyBytes  int
	Failed     bool
	Reason     string
}

package strategy

import (
	"time"

	"github.com/harvestnet/reharvest/internal/domain"
)

// Simple adjusts the delay multiplicatively around a single fixed point:
// similarity exactly at target leaves the delay unchanged; similarity above
// target (page barely changed) stretches the delay out; similarity below
// target (page changed a lot) compresses it.
//
// GetDelay returns the configured default only when no prior observation
// exists yet — not when one does. Once a first observation has been
// recorded, GetDelay always reflects the adapted estimate, even if that
// estimate happens to still equal the default.
type Simple struct {
	base
	curDelay float64
	lastTime time.Time
	lastFp   domain.Fingerprint
	hasLast  bool
}

// NewSimple constructs a Simple strategy. Returns domain.ErrInvalidDelay or
// domain.ErrInvalidTarget if the constructor contract (default_delay > 0,
// 0 < target < 1) is violated.
func NewSimple(defaultDelay time.Duration, target float64) (*Simple, error) {
	b, err := newBase(defaultDelay, target)
	if err != nil {
		return nil, err
	}
	return &Simple{base: b, curDelay: b.defaultDelay}, nil
}

// AddCase compares the new observation against the previous one (if any).
// cur_delay is the actual wall-clock gap between the two most recent
// observations (t1-t0) — not an accumulated estimate — so a fetch that
// actually lands early or late is reflected honestly.
func (s *Simple) AddCase(timestamp time.Time, fp domain.Fingerprint) {
	if s.hasLast {
		curDelay := timestamp.Sub(s.lastTime).Seconds()
		sim := fp.Similarity(s.lastFp)
		s.curDelay = simpleFallback(curDelay, sim, s.target)
	}
	s.lastTime = timestamp
	s.lastFp = fp
	s.hasLast = true
}

// GetDelay returns default_delay until a prior observation exists, after
// which it returns the adapted estimate.
func (s *Simple) GetDelay() float64 {
	if !s.hasLast {
		return s.defaultDelay
	}
	return s.curDelay
}

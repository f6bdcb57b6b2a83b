package strategy

import (
	"time"

	"github.com/harvestnet/reharvest/internal/domain"
)

// Reciprocal models similarity as a function of elapsed seconds x:
//
//	f(x) = (1-a)*b/(x+b) + a,   a in [0, T),  b > 0
//
// f(0)=1, f(x)->a as x->infinity, and f is strictly decreasing — a page
// settles toward a floor similarity a as time passes, starting from a
// perfect match at x=0. With one observation a is fixed at 0 and b is
// solved directly; with two or more, the two most recent (x, sim) pairs
// are solved in closed form. A fit that falls outside the valid parameter
// domain (or a degenerate two-point system) falls back to the Simple-style
// multiplicative correction.
type Reciprocal struct {
	base
	curDelay float64
	lastTime time.Time
	lastFp   domain.Fingerprint
	hasLast  bool

	xs []float64 // elapsed seconds between consecutive observations
	ys []float64 // observed similarity for that gap
}

// NewReciprocal constructs a Reciprocal strategy.
func NewReciprocal(defaultDelay time.Duration, target float64) (*Reciprocal, error) {
	b, err := newBase(defaultDelay, target)
	if err != nil {
		return nil, err
	}
	return &Reciprocal{base: b, curDelay: b.defaultDelay}, nil
}

// AddCase records the (elapsed, similarity) pair observed since the
// previous case and re-fits the model.
func (s *Reciprocal) AddCase(timestamp time.Time, fp domain.Fingerprint) {
	if s.hasLast {
		x := timestamp.Sub(s.lastTime).Seconds()
		y := fp.Similarity(s.lastFp)
		if x > 0 {
			s.xs = append(s.xs, x)
			s.ys = append(s.ys, y)
		}
		s.curDelay = s.fit(x, y)
	}
	s.lastTime = timestamp
	s.lastFp = fp
	s.hasLast = true
}

// GetDelay returns default_delay before any pair has been observed.
func (s *Reciprocal) GetDelay() float64 {
	if !s.hasLast {
		return s.defaultDelay
	}
	return s.curDelay
}

// fit solves for (a, b) and returns x* = b*(1-T)/(T-a), the elapsed time at
// which the model predicts similarity == target. curX/curY (the latest
// elapsed gap and similarity) feed the Simple fallback when no valid fit
// is available.
func (s *Reciprocal) fit(curX, curY float64) float64 {
	n := len(s.xs)
	switch {
	case n == 0:
		return simpleFallback(curX, curY, s.target)
	case n == 1:
		a, b := 0.0, 0.0
		x, y := s.xs[0], s.ys[0]
		if y < 1 {
			b = x * y / (1 - y)
		}
		return s.solveOrFallback(a, b, curX, curY)
	default:
		// Most recent two observations: the closed-form solution of the
		// 2-equation system. Older points have already informed curDelay
		// through prior calls; a full weighted non-linear fit over every
		// point is a richer alternative but isn't required when the closed
		// form plus Simple fallback already covers every case.
		x1, y1 := s.xs[n-2], s.ys[n-2]
		x2, y2 := s.xs[n-1], s.ys[n-1]
		a, b, ok := solveReciprocalPair(x1, y1, x2, y2)
		if !ok {
			return simpleFallback(curX, curY, s.target)
		}
		return s.solveOrFallback(a, b, curX, curY)
	}
}

// solveReciprocalPair solves f(x1)=y1, f(x2)=y2 for (a, b) in closed form.
// Returns ok=false if the system is degenerate (common denominator zero,
// or y1==1 which makes the derivation's division undefined).
func solveReciprocalPair(x1, y1, x2, y2 float64) (a, b float64, ok bool) {
	if y1 == 1 || y2 == 1 {
		return 0, 0, false
	}
	denom := x1*(y2-1) - x2*(y1-1)
	if denom == 0 {
		return 0, 0, false
	}
	a = (x1*y1*(y2-1) - x2*y2*(y1-1)) / denom
	b = x1 * (a - y1) / (y1 - 1)
	return a, b, true
}

// solveOrFallback validates (a, b) against the model's domain (a in [0,T),
// b > 0) and, if valid, returns x* = b*(1-T)/(T-a); otherwise falls back.
func (s *Reciprocal) solveOrFallback(a, b, curX, curY float64) float64 {
	if b <= 0 || a < 0 || a >= s.target {
		return simpleFallback(curX, curY, s.target)
	}
	x := b * (1 - s.target) / (s.target - a)
	if x <= 0 {
		return simpleFallback(curX, curY, s.target)
	}
	return x
}

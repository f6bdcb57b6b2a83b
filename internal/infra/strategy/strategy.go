// Package strategy implements the delay-estimation policies that drive the
// adaptive re-harvester: given a per-URL history of (timestamp, fingerprint)
// observations, estimate the next fetch delay so that similarity between
// consecutive captures tracks a target T.
//
// Five variants are provided — Constant, Simple, Bisection, Reciprocal, and
// Average — registered under string selectors in Registry so the harvester
// facade can pick one from configuration.
package strategy

import (
	"math"
	"time"

	"github.com/harvestnet/reharvest/internal/domain"
)

// base holds the fields every strategy needs and the validation every
// constructor must perform: 0 < target < 1, default_delay > 0.
type base struct {
	defaultDelay float64 // seconds
	target       float64
}

// newBase validates the common constructor preconditions shared by every
// strategy except Constant, which has no target and validates nothing.
func newBase(defaultDelay time.Duration, target float64) (base, error) {
	if defaultDelay <= 0 {
		return base{}, domain.ErrInvalidDelay
	}
	if !(target > 0 && target < 1) {
		return base{}, domain.ErrInvalidTarget
	}
	return base{defaultDelay: defaultDelay.Seconds(), target: target}, nil
}

// simpleFallback is the multiplicative correction shared by every
// degenerate-fit fallback path: Simple's own formula, Bisection's
// degenerate-fit branch, and Reciprocal's invalid-parameter branch.
func simpleFallback(curDelay, sim, target float64) float64 {
	return curDelay * math.Pow(1+1/(1-target), sim-target)
}

// ─── Registry ───────────────────────────────────────────────────────────

// Registry maps a configuration selector string to a domain.StrategyFactory.
var Registry = map[string]domain.StrategyFactory{
	"constant": func(defaultDelay time.Duration, _ float64) (domain.Strategy, error) {
		return NewConstant(defaultDelay), nil
	},
	"simple": func(defaultDelay time.Duration, target float64) (domain.Strategy, error) {
		return NewSimple(defaultDelay, target)
	},
	"bisection": func(defaultDelay time.Duration, target float64) (domain.Strategy, error) {
		return NewBisection(defaultDelay, target)
	},
	"reciprocal": func(defaultDelay time.Duration, target float64) (domain.Strategy, error) {
		return NewReciprocal(defaultDelay, target)
	},
	"average": func(defaultDelay time.Duration, target float64) (domain.Strategy, error) {
		return NewAverage(defaultDelay, target, 0.8)
	},
}

// Factory looks up a registered strategy factory by selector name.
func Factory(name string) (domain.StrategyFactory, error) {
	f, ok := Registry[name]
	if !ok {
		return nil, domain.ErrUnknownStrategy
	}
	return f, nil
}

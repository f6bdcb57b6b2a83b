package strategy

import (
	"math"
	"time"

	"github.com/harvestnet/reharvest/internal/domain"
)

// observation is one recorded (timestamp, fingerprint) pair.
type observation struct {
	t  time.Time
	fp domain.Fingerprint
}

// pairSim is a memoized channel-mean similarity between two observations,
// keyed implicitly by their position in Average.pairs.
type pairSim struct {
	ti, tj time.Time
	sim    float64
}

// Average keeps the full observation history plus a memo table of every
// pairwise similarity, then estimates the next delay as a decaying
// weighted average over all pairs, inverted through an exponential-decay
// model: similarity is assumed to behave like v^(elapsed/D), so the delay
// at which similarity reaches target is D*log(T)/log(est). Recent pairs
// are weighted more heavily than old ones, and pairs spanning a wide gap
// more heavily than pairs spanning a short one.
type Average struct {
	base
	decay float64 // rho, default 0.8

	obs   []observation
	pairs []pairSim
}

// NewAverage constructs an Average strategy. decay (rho) is expected in
// (0,1); any other value is replaced by the default of 0.8, which weights
// roughly the last several observations most heavily.
func NewAverage(defaultDelay time.Duration, target float64, decay float64) (*Average, error) {
	b, err := newBase(defaultDelay, target)
	if err != nil {
		return nil, err
	}
	if !(decay > 0 && decay < 1) {
		decay = 0.8
	}
	return &Average{base: b, decay: decay}, nil
}

// AddCase appends the new observation and memoizes its similarity against
// every prior observation.
func (s *Average) AddCase(timestamp time.Time, fp domain.Fingerprint) {
	for _, prior := range s.obs {
		sim := fp.Similarity(prior.fp)
		s.pairs = append(s.pairs, pairSim{ti: prior.t, tj: timestamp, sim: sim})
	}
	s.obs = append(s.obs, observation{t: timestamp, fp: fp})
}

// GetDelay computes the decay-weighted average over all recorded pairs
// and inverts it through the exponential-decay model. Falls back to
// default_delay when there is no history yet, or when the averaged
// estimate is degenerate (<=0, >=1, or equal to target — all of which
// make the inversion undefined or meaningless).
func (s *Average) GetDelay() float64 {
	if len(s.obs) == 0 {
		return s.defaultDelay
	}
	now := s.obs[len(s.obs)-1].t

	d := s.defaultDelay
	n := float64(len(s.pairs))

	tot := s.target
	cnt := 1.0

	for _, p := range s.pairs {
		diff := p.tj.Sub(p.ti).Seconds() / d
		if diff == 0 {
			continue
		}
		mid := p.ti.Add(p.tj.Sub(p.ti) / 2)
		age := now.Sub(mid).Seconds() / d
		w := n*math.Pow(s.decay, age+1/diff) + 1
		tot += w * math.Pow(p.sim, 1/diff)
		cnt += w
	}

	est := tot / cnt
	if est <= 0 || est >= 1 || est == s.target {
		return d
	}
	return d * math.Log(s.target) / math.Log(est)
}

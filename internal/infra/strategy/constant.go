package strategy

import (
	"time"

	"github.com/harvestnet/reharvest/internal/domain"
)

// Constant never adapts: every GetDelay call returns the configured
// default delay, regardless of observed similarity. Useful as a control
// group and as the degenerate baseline the other strategies fall back
// towards when they lack enough history to fit anything smarter.
type Constant struct {
	delay float64
}

// NewConstant builds a Constant strategy. defaultDelay is not validated:
// Constant has no target and returns no error, so whatever delay it is
// given is what GetDelay returns.
func NewConstant(defaultDelay time.Duration) *Constant {
	return &Constant{delay: defaultDelay.Seconds()}
}

// AddCase is a no-op: Constant never looks at history.
func (c *Constant) AddCase(_ time.Time, _ domain.Fingerprint) {}

// GetDelay always returns the fixed configured delay.
func (c *Constant) GetDelay() float64 {
	return c.delay
}

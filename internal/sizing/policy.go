// Package sizing maps signal strength and current exposure to a target position size.
package sizing

import (
	"errors"
	"fmt"

	"github.com/changmen007/ethsim/internal/signal"
)

// Action is the direction of a position adjustment.
type Action string

const (
	Hold Action = "hold"
	Buy  Action = "buy"
	Sell Action = "sell"
)

// Epsilon is the tolerance used for all "reached target" and "reached zero"
// comparisons on unit quantities. Exact float equality is never used.
const Epsilon = 1e-6

// ErrBadLimits marks invalid policy construction parameters.
var ErrBadLimits = errors.New("unit size and max units must be positive")

// targets maps each signal category to the exposure (in units) the portfolio
// should converge to while that signal holds.
var targets = map[signal.Category]float64{
	signal.StrongBullish:   5.0,
	signal.ModerateBullish: 2.0,
	signal.WeakBullish:     1.0,
	signal.Neutral:         0.5,
	signal.WeakBearish:     0.1,
	signal.ModerateBearish: 0.0,
	signal.StrongBearish:   0.0,
}

// Policy converts (current exposure, signal category) into a single
// buy/sell/hold decision. One unit equals UnitSize of notional.
type Policy struct {
	UnitSize float64
	MaxUnits float64
}

// Decision is the outcome of one policy evaluation.
type Decision struct {
	Action      Action
	Units       float64
	TargetUnits float64
}

// NewPolicy validates the configured sizing parameters.
func NewPolicy(unitSize, maxUnits float64) (*Policy, error) {
	if unitSize <= 0 || maxUnits <= 0 {
		return nil, fmt.Errorf("%w: unit_size=%.2f max_units=%.2f", ErrBadLimits, unitSize, maxUnits)
	}
	return &Policy{UnitSize: unitSize, MaxUnits: maxUnits}, nil
}

// TargetFor returns the desired exposure for a category, clamped to [0, MaxUnits].
func (p *Policy) TargetFor(category signal.Category) float64 {
	target := targets[category]
	if target > p.MaxUnits {
		target = p.MaxUnits
	}
	if target < 0 {
		target = 0
	}
	return target
}

// Decide computes the adjustment needed to move currentUnits toward the
// category target. Exposure within Epsilon of target is held; anything beyond
// that band is trimmed down or bought up to the target, with buys capped by
// the remaining headroom under MaxUnits.
func (p *Policy) Decide(currentUnits float64, category signal.Category) Decision {
	target := p.TargetFor(category)

	if currentUnits >= target-Epsilon {
		if currentUnits > target+Epsilon {
			return Decision{Action: Sell, Units: currentUnits - target, TargetUnits: target}
		}
		return Decision{Action: Hold, Units: 0, TargetUnits: target}
	}

	units := target - currentUnits
	if room := p.MaxUnits - currentUnits; units > room {
		units = room
	}
	if units <= Epsilon {
		return Decision{Action: Hold, Units: 0, TargetUnits: target}
	}
	return Decision{Action: Buy, Units: units, TargetUnits: target}
}

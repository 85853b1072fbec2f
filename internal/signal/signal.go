// Package signal standardizes the prediction payloads shared between the feed and engine layers.
package signal

import (
	"errors"
	"fmt"
	"time"
)

// Category is the ordinal strength bucket a prediction falls into.
type Category string

const (
	StrongBearish   Category = "strong_bearish"
	ModerateBearish Category = "moderate_bearish"
	WeakBearish     Category = "weak_bearish"
	Neutral         Category = "neutral"
	WeakBullish     Category = "weak_bullish"
	ModerateBullish Category = "moderate_bullish"
	StrongBullish   Category = "strong_bullish"
)

// Categories lists every valid category, most bearish first.
var Categories = []Category{
	StrongBearish, ModerateBearish, WeakBearish,
	Neutral,
	WeakBullish, ModerateBullish, StrongBullish,
}

// Valid reports whether the category is one of the seven known buckets.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

var (
	// ErrBadProbabilities marks a malformed probability vector.
	ErrBadProbabilities = errors.New("malformed probability vector")
	// ErrBadPrice marks a non-positive price.
	ErrBadPrice = errors.New("price must be positive")
	// ErrBadCategory marks an unknown signal category.
	ErrBadCategory = errors.New("unknown signal category")
)

// Probabilities holds the upstream model's mass over six mutually exclusive
// price-change buckets. Buckets need not sum to exactly 1; the remainder is
// the model's undecided mass.
type Probabilities struct {
	UpWithin5   float64 `json:"up_within_5"`
	Up5To10     float64 `json:"up_5_to_10"`
	UpAbove10   float64 `json:"up_above_10"`
	DownWithin5 float64 `json:"down_within_5"`
	Down5To10   float64 `json:"down_5_to_10"`
	DownAbove10 float64 `json:"down_above_10"`
}

const sumTolerance = 1e-9

// Validate checks that every bucket is non-negative and total mass does not exceed 1.
func (p Probabilities) Validate() error {
	buckets := []float64{p.UpWithin5, p.Up5To10, p.UpAbove10, p.DownWithin5, p.Down5To10, p.DownAbove10}
	sum := 0.0
	for _, b := range buckets {
		if b < 0 {
			return fmt.Errorf("%w: negative bucket %.6f", ErrBadProbabilities, b)
		}
		sum += b
	}
	if sum > 1+sumTolerance {
		return fmt.Errorf("%w: total mass %.6f exceeds 1", ErrBadProbabilities, sum)
	}
	return nil
}

// Classify maps a probability vector to its category. Rules are evaluated in
// priority order and the first match wins. Classify is pure and total; callers
// validate the vector separately.
func Classify(p Probabilities) Category {
	upTotal := p.UpWithin5 + p.Up5To10 + p.UpAbove10
	downTotal := p.DownWithin5 + p.Down5To10 + p.DownAbove10
	upMediumHigh := p.Up5To10 + p.UpAbove10
	downMediumHigh := p.Down5To10 + p.DownAbove10

	switch {
	case upTotal >= 0.75 && upMediumHigh >= 0.35:
		return StrongBullish
	case upTotal >= 0.65 && upMediumHigh >= 0.20:
		return ModerateBullish
	case upTotal >= 0.55:
		return WeakBullish
	case downTotal >= 0.75 && downMediumHigh >= 0.35:
		return StrongBearish
	case downTotal >= 0.65 && downMediumHigh >= 0.20:
		return ModerateBearish
	case downTotal >= 0.55:
		return WeakBearish
	default:
		return Neutral
	}
}

// Signal is one tick of exogenous input: a mark price plus the direction
// bucket the upstream prediction model landed in.
type Signal struct {
	Timestamp    time.Time `json:"timestamp"`
	CurrentPrice float64   `json:"current_price"`
	Category     Category  `json:"category"`
}

// Validate rejects signals the engine must not act on.
func (s Signal) Validate() error {
	if s.CurrentPrice <= 0 {
		return fmt.Errorf("%w: got %.6f", ErrBadPrice, s.CurrentPrice)
	}
	if !s.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrBadCategory, s.Category)
	}
	return nil
}

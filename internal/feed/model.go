package feed

import (
	"github.com/changmen007/ethsim/internal/signal"
)

// ProbabilityModel turns a chronological price history into bucket
// probabilities for the next move. Implementations stand in for the upstream
// prediction model; the engine only ever sees the resulting signal.
type ProbabilityModel interface {
	Probabilities(history []float64) signal.Probabilities
}

// ReturnHistogram estimates bucket probabilities from the empirical
// distribution of horizon-step returns over the observed window.
type ReturnHistogram struct {
	// Horizon is the number of steps ahead each historical return spans.
	Horizon int
}

// NewReturnHistogram builds a histogram model with a sane minimum horizon.
func NewReturnHistogram(horizon int) *ReturnHistogram {
	if horizon <= 0 {
		horizon = 1
	}
	return &ReturnHistogram{Horizon: horizon}
}

// Probabilities counts historical horizon returns into the six price-change
// buckets. Too little history yields the zero vector, which classifies as
// neutral.
func (m *ReturnHistogram) Probabilities(history []float64) signal.Probabilities {
	var p signal.Probabilities
	if len(history) <= m.Horizon {
		return p
	}

	total := 0
	for i := 0; i+m.Horizon < len(history); i++ {
		from := history[i]
		if from <= 0 {
			continue
		}
		r := (history[i+m.Horizon] - from) / from
		switch {
		case r >= 0.10:
			p.UpAbove10++
		case r >= 0.05:
			p.Up5To10++
		case r >= 0:
			p.UpWithin5++
		case r <= -0.10:
			p.DownAbove10++
		case r <= -0.05:
			p.Down5To10++
		default:
			p.DownWithin5++
		}
		total++
	}
	if total == 0 {
		return signal.Probabilities{}
	}

	n := float64(total)
	p.UpWithin5 /= n
	p.Up5To10 /= n
	p.UpAbove10 /= n
	p.DownWithin5 /= n
	p.Down5To10 /= n
	p.DownAbove10 /= n
	return p
}

// priceWindow keeps the most recent prices in arrival order.
type priceWindow struct {
	max    int
	prices []float64
}

func newPriceWindow(max int) *priceWindow {
	if max <= 1 {
		max = 100
	}
	return &priceWindow{max: max}
}

func (w *priceWindow) push(price float64) {
	w.prices = append(w.prices, price)
	if len(w.prices) > w.max {
		w.prices = w.prices[len(w.prices)-w.max:]
	}
}

func (w *priceWindow) snapshot() []float64 {
	out := make([]float64, len(w.prices))
	copy(out, w.prices)
	return out
}

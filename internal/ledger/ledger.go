// Package ledger owns the cash balance and the FIFO lot book that back the
// simulation. It is the only mutable aggregate in the system; every mutation
// goes through Execute under a single mutex.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/changmen007/ethsim/internal/signal"
	"github.com/changmen007/ethsim/internal/sizing"
)

// quantityEpsilon is the tolerance for "position reached zero" checks on
// asset quantities. Exact float equality is never used.
const quantityEpsilon = 1e-6

// minTradeFraction scales the unit size into the smallest buy notional worth
// executing. Smaller clamped buys degrade to a hold.
const minTradeFraction = 0.01

var (
	// ErrBadCapital marks invalid construction parameters.
	ErrBadCapital = errors.New("initial capital and unit size must be positive")
	// ErrBadMagnitude marks a negative adjustment magnitude.
	ErrBadMagnitude = errors.New("magnitude must not be negative")
	// ErrBadAction marks an action the ledger does not understand.
	ErrBadAction = errors.New("unknown action")
	// ErrInconsistent marks an internal bookkeeping violation. State is left
	// untouched; continuing past it would corrupt every downstream statistic.
	ErrInconsistent = errors.New("ledger internal inconsistency")
)

// Lot is a single buy fill, tracked independently until fully sold. ExitPrice
// is the running weighted average across partial exits.
type Lot struct {
	ID            string
	EntryPrice    float64
	EntrySize     float64
	EntryTime     time.Time
	RemainingSize float64
	ExitPrice     float64
	ExitSize      float64
	LastExitTime  time.Time
	RealizedPnL   float64
	Closed        bool
}

// Ledger tracks cash and open lots for one simulation session. All exported
// methods are safe for concurrent use, though the tick driver is expected to
// be the single writer.
type Ledger struct {
	mu             sync.Mutex
	initialCapital float64
	unitSize       float64
	cash           float64
	openLots       []*Lot // oldest first; appended on buy, consumed from the head on sell
	allLots        []*Lot // append-only history, retained after close
	closedLots     int
	profitableLots int
	realizedPnL    float64
	peakValue      float64
	maxDrawdownPct float64
}

// Fill reports what one Execute call actually did. Degraded no-ops come back
// as a hold with the Reason set; they are informational, not failures.
type Fill struct {
	Action      sizing.Action
	Reason      string
	Quantity    float64
	Notional    float64
	RealizedPnL float64
	LotsClosed  int
}

// New builds an empty ledger holding the full initial capital in cash.
func New(initialCapital, unitSize float64) (*Ledger, error) {
	if initialCapital <= 0 || unitSize <= 0 {
		return nil, fmt.Errorf("%w: capital=%.2f unit_size=%.2f", ErrBadCapital, initialCapital, unitSize)
	}
	return &Ledger{
		initialCapital: initialCapital,
		unitSize:       unitSize,
		cash:           initialCapital,
		peakValue:      initialCapital,
	}, nil
}

// Cash returns the free cash balance.
func (l *Ledger) Cash() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// InitialCapital returns the immutable starting bankroll.
func (l *Ledger) InitialCapital() float64 { return l.initialCapital }

// RealizedPnL returns cumulative profit locked in by sell fills.
func (l *Ledger) RealizedPnL() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.realizedPnL
}

// OpenQuantity returns the total asset quantity across open lots.
func (l *Ledger) OpenQuantity() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openQuantityLocked()
}

// AvgEntryCost returns the remaining-size-weighted average entry price over
// open lots, or 0 when flat. This is the only average-cost figure the ledger
// maintains; it is always derived from the lot book.
func (l *Ledger) AvgEntryCost() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.avgEntryCostLocked()
}

// CurrentUnits expresses open exposure in sizing units: open notional at
// entry cost divided by the unit size.
func (l *Ledger) CurrentUnits() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	qty := l.openQuantityLocked()
	if qty <= quantityEpsilon {
		return 0
	}
	return qty * l.avgEntryCostLocked() / l.unitSize
}

func (l *Ledger) openQuantityLocked() float64 {
	total := 0.0
	for _, lot := range l.openLots {
		total += lot.RemainingSize
	}
	return total
}

func (l *Ledger) avgEntryCostLocked() float64 {
	qty := 0.0
	cost := 0.0
	for _, lot := range l.openLots {
		qty += lot.RemainingSize
		cost += lot.RemainingSize * lot.EntryPrice
	}
	if qty <= quantityEpsilon {
		return 0
	}
	return cost / qty
}

// Execute applies one sizing decision at the signal's price. Fills are
// applied in memory and become visible only once Execute returns; invalid
// input fails fast without mutating state.
func (l *Ledger) Execute(dec sizing.Decision, sig signal.Signal) (Fill, error) {
	if err := sig.Validate(); err != nil {
		return Fill{}, err
	}
	if dec.Units < 0 {
		return Fill{}, fmt.Errorf("%w: %.6f", ErrBadMagnitude, dec.Units)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if dec.Action == sizing.Hold || dec.Units <= sizing.Epsilon {
		return Fill{Action: sizing.Hold, Reason: "target already met"}, nil
	}

	switch dec.Action {
	case sizing.Buy:
		return l.buyLocked(dec.Units, sig)
	case sizing.Sell:
		return l.sellLocked(dec.Units, sig)
	default:
		return Fill{}, fmt.Errorf("%w: %q", ErrBadAction, dec.Action)
	}
}

func (l *Ledger) buyLocked(units float64, sig signal.Signal) (Fill, error) {
	notional := units * l.unitSize
	if notional > l.cash {
		notional = l.cash
	}
	if notional < minTradeFraction*l.unitSize {
		return Fill{Action: sizing.Hold, Reason: "insufficient cash for minimum trade"}, nil
	}

	newCash := l.cash - notional
	if newCash < -quantityEpsilon {
		return Fill{}, fmt.Errorf("%w: buy would leave cash %.6f", ErrInconsistent, newCash)
	}

	quantity := notional / sig.CurrentPrice
	lot := &Lot{
		ID:            uuid.NewString(),
		EntryPrice:    sig.CurrentPrice,
		EntrySize:     quantity,
		EntryTime:     sig.Timestamp,
		RemainingSize: quantity,
	}
	l.openLots = append(l.openLots, lot)
	l.allLots = append(l.allLots, lot)
	l.cash = newCash

	return Fill{Action: sizing.Buy, Quantity: quantity, Notional: notional}, nil
}

func (l *Ledger) sellLocked(units float64, sig signal.Signal) (Fill, error) {
	if len(l.openLots) == 0 {
		return Fill{Action: sizing.Hold, Reason: "no open position"}, nil
	}

	desired := units * l.unitSize / sig.CurrentPrice
	if held := l.openQuantityLocked(); desired > held {
		desired = held
	}
	if desired <= quantityEpsilon {
		return Fill{Action: sizing.Hold, Reason: "no open position"}, nil
	}

	remaining := desired
	sold := 0.0
	pnl := 0.0
	closed := 0

	for len(l.openLots) > 0 && remaining > quantityEpsilon {
		lot := l.openLots[0]
		fill := remaining
		if lot.RemainingSize < fill {
			fill = lot.RemainingSize
		}

		fillPnL := fill * (sig.CurrentPrice - lot.EntryPrice)
		lot.RealizedPnL += fillPnL
		pnl += fillPnL

		if lot.ExitSize <= quantityEpsilon {
			lot.ExitPrice = sig.CurrentPrice
		} else {
			lot.ExitPrice = (lot.ExitPrice*lot.ExitSize + sig.CurrentPrice*fill) / (lot.ExitSize + fill)
		}
		lot.ExitSize += fill
		lot.LastExitTime = sig.Timestamp
		lot.RemainingSize -= fill

		if lot.RemainingSize <= quantityEpsilon {
			lot.RemainingSize = 0
			lot.Closed = true
			l.openLots = l.openLots[1:]
			l.closedLots++
			if lot.RealizedPnL > 0 {
				l.profitableLots++
			}
			closed++
		}

		l.cash += fill * sig.CurrentPrice
		sold += fill
		remaining -= fill
	}

	l.realizedPnL += pnl

	return Fill{
		Action:      sizing.Sell,
		Quantity:    sold,
		Notional:    sold * sig.CurrentPrice,
		RealizedPnL: pnl,
		LotsClosed:  closed,
	}, nil
}

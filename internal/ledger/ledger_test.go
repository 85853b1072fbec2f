package ledger

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/changmen007/ethsim/internal/signal"
	"github.com/changmen007/ethsim/internal/sizing"
)

var baseTime = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func sig(price float64, hour int) signal.Signal {
	return signal.Signal{
		Timestamp:    baseTime.Add(time.Duration(hour) * time.Hour),
		CurrentPrice: price,
		Category:     signal.Neutral,
	}
}

func buy(units float64) sizing.Decision  { return sizing.Decision{Action: sizing.Buy, Units: units} }
func sell(units float64) sizing.Decision { return sizing.Decision{Action: sizing.Sell, Units: units} }

func mustLedger(t *testing.T, capital, unitSize float64) *Ledger {
	t.Helper()
	l, err := New(capital, unitSize)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return l
}

func within(t *testing.T, got, want, tol float64, what string) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Fatalf("%s: expected %.6f, got %.6f", what, want, got)
	}
}

func TestNewRejectsBadCapital(t *testing.T) {
	if _, err := New(0, 2500); !errors.Is(err, ErrBadCapital) {
		t.Fatalf("expected ErrBadCapital, got %v", err)
	}
	if _, err := New(20000, -1); !errors.Is(err, ErrBadCapital) {
		t.Fatalf("expected ErrBadCapital, got %v", err)
	}
}

func TestBuyThenSellScenario(t *testing.T) {
	// initial_capital=20000, unit_size=2500, max_units=5.
	l := mustLedger(t, 20000, 2500)

	fill, err := l.Execute(buy(5), sig(2000, 0))
	if err != nil {
		t.Fatalf("buy returned error: %v", err)
	}
	within(t, fill.Notional, 12500, 1e-9, "buy notional")
	within(t, fill.Quantity, 6.25, 1e-9, "buy quantity")
	within(t, l.Cash(), 7500, 1e-9, "cash after buy")
	within(t, l.CurrentUnits(), 5.0, 1e-9, "units after buy")

	fill, err = l.Execute(sell(5), sig(2200, 1))
	if err != nil {
		t.Fatalf("sell returned error: %v", err)
	}
	// desired qty = 5*2500/2200 ≈ 5.6818, all from the single lot
	within(t, fill.Quantity, 5*2500.0/2200.0, 1e-9, "sell quantity")
	within(t, fill.RealizedPnL, 5*2500.0/2200.0*200, 1e-6, "sell pnl")
	within(t, l.Cash(), 20000, 1e-6, "cash after sell")
	within(t, l.OpenQuantity(), 6.25-5*2500.0/2200.0, 1e-9, "remaining quantity")
	if fill.LotsClosed != 0 {
		t.Fatalf("lot should remain partially open, closed %d", fill.LotsClosed)
	}
}

func TestBuyClampsToAvailableCash(t *testing.T) {
	l := mustLedger(t, 10000, 2500)

	fill, err := l.Execute(buy(5), sig(2000, 0))
	if err != nil {
		t.Fatalf("buy returned error: %v", err)
	}
	within(t, fill.Notional, 10000, 1e-9, "clamped notional")
	within(t, fill.Quantity, 5.0, 1e-9, "clamped quantity")
	within(t, l.Cash(), 0, 1e-9, "cash exhausted")
}

func TestBuyBelowMinimumIsNoOp(t *testing.T) {
	l := mustLedger(t, 10, 2500)

	fill, err := l.Execute(buy(1), sig(2000, 0))
	if err != nil {
		t.Fatalf("buy returned error: %v", err)
	}
	if fill.Action != sizing.Hold || fill.Reason == "" {
		t.Fatalf("expected degraded hold, got %+v", fill)
	}
	within(t, l.Cash(), 10, 1e-12, "cash untouched")
	if l.OpenQuantity() != 0 {
		t.Fatalf("no lot should exist")
	}
}

func TestSellWithNoOpenLotsIsNoOp(t *testing.T) {
	l := mustLedger(t, 20000, 2500)

	fill, err := l.Execute(sell(2), sig(2000, 0))
	if err != nil {
		t.Fatalf("sell returned error: %v", err)
	}
	if fill.Action != sizing.Hold {
		t.Fatalf("expected hold, got %s", fill.Action)
	}
	within(t, l.Cash(), 20000, 1e-12, "cash untouched")
	if len(l.TradeHistory()) != 0 {
		t.Fatalf("no trade records expected")
	}
}

func TestSellWalksLotsFIFO(t *testing.T) {
	l := mustLedger(t, 30000, 2500)

	if _, err := l.Execute(buy(2), sig(1000, 0)); err != nil { // 5.0 qty @1000
		t.Fatalf("first buy: %v", err)
	}
	if _, err := l.Execute(buy(2), sig(1250, 1)); err != nil { // 4.0 qty @1250
		t.Fatalf("second buy: %v", err)
	}
	if _, err := l.Execute(buy(2), sig(2000, 2)); err != nil { // 2.5 qty @2000
		t.Fatalf("third buy: %v", err)
	}
	within(t, l.OpenQuantity(), 11.5, 1e-9, "open quantity")

	// Sell 6 qty worth: consumes the whole 5.0 lot plus 1.0 from the second.
	fill, err := l.Execute(sell(6*1500/2500.0), sig(1500, 3))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	within(t, fill.Quantity, 6.0, 1e-9, "sold quantity")
	if fill.LotsClosed != 1 {
		t.Fatalf("expected exactly one lot closed, got %d", fill.LotsClosed)
	}
	// PnL: 5.0*(1500-1000) + 1.0*(1500-1250) = 2750
	within(t, fill.RealizedPnL, 2750, 1e-6, "fifo pnl")

	history := l.TradeHistory()
	if len(history) != 3 {
		t.Fatalf("expected 3 lots in history, got %d", len(history))
	}
	if !history[0].Closed || history[0].RemainingSize != 0 {
		t.Fatalf("oldest lot should be fully closed: %+v", history[0])
	}
	within(t, history[1].RemainingSize, 3.0, 1e-9, "second lot partially consumed")
	if history[2].ExitSize != 0 || history[2].Closed {
		t.Fatalf("newest lot must be untouched: %+v", history[2])
	}
	// A later sell keeps draining the oldest unclosed lot first.
	if _, err := l.Execute(sell(2*1500/2500.0), sig(1500, 4)); err != nil {
		t.Fatalf("second sell: %v", err)
	}
	history = l.TradeHistory()
	within(t, history[1].RemainingSize, 1.0, 1e-9, "second lot drained before third")
	if history[2].ExitSize != 0 {
		t.Fatalf("third lot touched before second was exhausted")
	}
}

func TestPartialExitsAverageExitPrice(t *testing.T) {
	l := mustLedger(t, 20000, 2500)

	if _, err := l.Execute(buy(4), sig(1000, 0)); err != nil { // 10.0 qty
		t.Fatalf("buy: %v", err)
	}
	if _, err := l.Execute(sell(4*1200/2500.0), sig(1200, 1)); err != nil { // 4.0 qty @1200
		t.Fatalf("first sell: %v", err)
	}
	if _, err := l.Execute(sell(4*1500/2500.0), sig(1500, 2)); err != nil { // 4.0 qty @1500
		t.Fatalf("second sell: %v", err)
	}

	history := l.TradeHistory()
	if len(history) != 1 {
		t.Fatalf("expected single lot, got %d", len(history))
	}
	rec := history[0]
	within(t, rec.ExitSize, 8.0, 1e-9, "cumulative exit size")
	within(t, rec.ExitPrice, (1200*4.0+1500*4.0)/8.0, 1e-9, "weighted exit price")
	within(t, rec.RemainingSize, 2.0, 1e-9, "remaining size")
	within(t, rec.RealizedPnL, 4*200.0+4*500.0, 1e-6, "accumulated lot pnl")
	if rec.Closed {
		t.Fatalf("lot must stay open until remaining reaches zero")
	}
	if rec.LastExitTime == nil || !rec.LastExitTime.Equal(baseTime.Add(2*time.Hour)) {
		t.Fatalf("last exit time not tracked: %+v", rec.LastExitTime)
	}
	if rec.HoldingHours != 2 {
		t.Fatalf("expected 2 holding hours, got %d", rec.HoldingHours)
	}
}

func TestLotClosesExactlyOnce(t *testing.T) {
	l := mustLedger(t, 20000, 2500)

	if _, err := l.Execute(buy(1), sig(2500, 0)); err != nil { // 1.0 qty
		t.Fatalf("buy: %v", err)
	}

	// Two sells; the second finishes the lot within float tolerance.
	if _, err := l.Execute(sell(0.7), sig(2500, 1)); err != nil {
		t.Fatalf("first sell: %v", err)
	}
	fill, err := l.Execute(sell(5), sig(2500, 2)) // clamped to the remainder
	if err != nil {
		t.Fatalf("second sell: %v", err)
	}
	if fill.LotsClosed != 1 {
		t.Fatalf("expected exactly one close, got %d", fill.LotsClosed)
	}

	snap := l.Snapshot(2500, baseTime.Add(3*time.Hour))
	if snap.ClosedLots != 1 {
		t.Fatalf("closed count must increment exactly once, got %d", snap.ClosedLots)
	}
	if snap.OpenQuantity != 0 {
		t.Fatalf("closed lot must leave the open set, qty %.9f", snap.OpenQuantity)
	}

	// Nothing left to sell: degraded no-op, counters untouched.
	fill, err = l.Execute(sell(1), sig(2500, 4))
	if err != nil {
		t.Fatalf("third sell: %v", err)
	}
	if fill.Action != sizing.Hold {
		t.Fatalf("expected hold on empty book, got %s", fill.Action)
	}
	if got := l.Snapshot(2500, baseTime.Add(5*time.Hour)).ClosedLots; got != 1 {
		t.Fatalf("closed count changed without a close: %d", got)
	}
}

func TestProfitableLotCounting(t *testing.T) {
	l := mustLedger(t, 20000, 2500)

	if _, err := l.Execute(buy(1), sig(2000, 0)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := l.Execute(sell(5), sig(2200, 1)); err != nil { // winner
		t.Fatalf("sell: %v", err)
	}
	if _, err := l.Execute(buy(1), sig(2200, 2)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := l.Execute(sell(5), sig(2000, 3)); err != nil { // loser
		t.Fatalf("sell: %v", err)
	}

	snap := l.Snapshot(2000, baseTime.Add(4*time.Hour))
	if snap.ClosedLots != 2 || snap.ProfitableLots != 1 {
		t.Fatalf("expected 2 closed / 1 profitable, got %d / %d", snap.ClosedLots, snap.ProfitableLots)
	}
	within(t, snap.WinRatePct, 50, 1e-9, "win rate")
}

func TestExecuteRejectsInvalidInput(t *testing.T) {
	l := mustLedger(t, 20000, 2500)

	if _, err := l.Execute(buy(1), signal.Signal{Timestamp: baseTime, CurrentPrice: 0, Category: signal.Neutral}); !errors.Is(err, signal.ErrBadPrice) {
		t.Fatalf("expected ErrBadPrice, got %v", err)
	}
	if _, err := l.Execute(sizing.Decision{Action: sizing.Buy, Units: -1}, sig(2000, 0)); !errors.Is(err, ErrBadMagnitude) {
		t.Fatalf("expected ErrBadMagnitude, got %v", err)
	}
	if _, err := l.Execute(sizing.Decision{Action: "short", Units: 1}, sig(2000, 0)); !errors.Is(err, ErrBadAction) {
		t.Fatalf("expected ErrBadAction, got %v", err)
	}
	// None of the rejected calls may have touched state.
	within(t, l.Cash(), 20000, 1e-12, "cash untouched")
	if l.OpenQuantity() != 0 || len(l.TradeHistory()) != 0 {
		t.Fatalf("rejected input mutated the ledger")
	}
}

func TestConservationUnderRandomSequence(t *testing.T) {
	l := mustLedger(t, 20000, 2500)
	rng := rand.New(rand.NewSource(7))

	price := 2000.0
	lastMaxDD := 0.0
	lastPeak := l.PeakValue()

	for i := 0; i < 500; i++ {
		price *= 1 + (rng.Float64()-0.5)*0.08
		s := sig(price, i)

		var dec sizing.Decision
		switch rng.Intn(3) {
		case 0:
			dec = buy(rng.Float64() * 3)
		case 1:
			dec = sell(rng.Float64() * 3)
		default:
			dec = sizing.Decision{Action: sizing.Hold}
		}
		if _, err := l.Execute(dec, s); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		snap := l.Snapshot(price, s.Timestamp)

		if snap.Cash < -1e-9 {
			t.Fatalf("tick %d: negative cash %.9f", i, snap.Cash)
		}
		// portfolio_value == initial + realized + unrealized
		within(t, snap.PortfolioValue, snap.InitialCapital+snap.RealizedPnL+snap.UnrealizedPnL, 1e-6,
			"conservation")
		// open quantity equals the sum over open lots in the history
		sum := 0.0
		for _, rec := range l.TradeHistory() {
			if !rec.Closed {
				sum += rec.RemainingSize
			}
		}
		within(t, snap.OpenQuantity, sum, 1e-9, "open quantity matches lot book")

		if snap.MaxDrawdownPct < lastMaxDD-1e-12 {
			t.Fatalf("tick %d: max drawdown regressed %.9f -> %.9f", i, lastMaxDD, snap.MaxDrawdownPct)
		}
		lastMaxDD = snap.MaxDrawdownPct
		if peak := l.PeakValue(); peak < lastPeak-1e-12 {
			t.Fatalf("tick %d: peak regressed %.9f -> %.9f", i, lastPeak, peak)
		} else {
			lastPeak = peak
		}
	}
}

package ledger

import (
	"testing"
	"time"
)

func TestSnapshotWhenFlat(t *testing.T) {
	l := mustLedger(t, 20000, 2500)

	snap := l.Snapshot(2000, baseTime)
	if snap.PortfolioValue != 20000 || snap.Cash != 20000 {
		t.Fatalf("flat snapshot should equal initial capital: %+v", snap)
	}
	if snap.UnrealizedPnL != 0 || snap.AvgEntryCost != 0 {
		t.Fatalf("flat snapshot must carry no position figures: %+v", snap)
	}
	if snap.WinRatePct != 0 {
		t.Fatalf("win rate must be 0 with no closed lots, got %.2f", snap.WinRatePct)
	}
	if snap.TotalReturnPct != 0 {
		t.Fatalf("expected 0%% return, got %.4f", snap.TotalReturnPct)
	}
}

func TestSnapshotMarksToMarket(t *testing.T) {
	l := mustLedger(t, 20000, 2500)
	if _, err := l.Execute(buy(4), sig(2000, 0)); err != nil { // 10000 notional, 5 qty
		t.Fatalf("buy: %v", err)
	}

	snap := l.Snapshot(2400, baseTime.Add(time.Hour))
	within(t, snap.OpenQuantity, 5, 1e-9, "open quantity")
	within(t, snap.AvgEntryCost, 2000, 1e-9, "avg entry cost")
	within(t, snap.PositionCost, 10000, 1e-9, "position cost")
	within(t, snap.PositionValue, 12000, 1e-9, "position value")
	within(t, snap.UnrealizedPnL, 2000, 1e-9, "unrealized pnl")
	within(t, snap.PortfolioValue, 22000, 1e-9, "portfolio value")
	within(t, snap.TotalReturnPct, 10, 1e-9, "total return pct")
}

func TestDrawdownPeakOrdering(t *testing.T) {
	l := mustLedger(t, 20000, 2500)
	if _, err := l.Execute(buy(4), sig(2000, 0)); err != nil { // 5 qty
		t.Fatalf("buy: %v", err)
	}

	// Rally first: the peak must absorb the new high before any drawdown is
	// measured against it.
	snap := l.Snapshot(2400, baseTime.Add(1*time.Hour)) // value 22000
	if snap.CurrentDrawdownPct != 0 || snap.MaxDrawdownPct != 0 {
		t.Fatalf("new high must not register drawdown: %+v", snap)
	}
	within(t, l.PeakValue(), 22000, 1e-9, "peak after rally")

	snap = l.Snapshot(2000, baseTime.Add(2*time.Hour)) // value 20000
	within(t, snap.CurrentDrawdownPct, (22000.0-20000.0)/22000.0*100, 1e-9, "current drawdown")
	within(t, snap.MaxDrawdownPct, snap.CurrentDrawdownPct, 1e-9, "max drawdown follows")

	// Recovery clears the current drawdown but never the max.
	maxSoFar := snap.MaxDrawdownPct
	snap = l.Snapshot(2600, baseTime.Add(3*time.Hour)) // value 23000, new peak
	if snap.CurrentDrawdownPct != 0 {
		t.Fatalf("expected zero current drawdown at new peak, got %.6f", snap.CurrentDrawdownPct)
	}
	within(t, snap.MaxDrawdownPct, maxSoFar, 1e-9, "max drawdown retained")
	within(t, l.PeakValue(), 23000, 1e-9, "peak advanced")
}

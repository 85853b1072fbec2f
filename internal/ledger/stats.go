package ledger

import "time"

// PortfolioSnapshot is the complete derived state after one tick. It is the
// sole artifact handed to persistence; recorders never reach back into the
// ledger.
type PortfolioSnapshot struct {
	Timestamp          time.Time `json:"timestamp"`
	InitialCapital     float64   `json:"initial_capital"`
	Cash               float64   `json:"cash"`
	OpenQuantity       float64   `json:"open_quantity"`
	AvgEntryCost       float64   `json:"avg_entry_cost"`
	CurrentPrice       float64   `json:"current_price"`
	PositionCost       float64   `json:"position_cost"`
	PositionValue      float64   `json:"position_value"`
	UnrealizedPnL      float64   `json:"unrealized_pnl"`
	PortfolioValue     float64   `json:"portfolio_value"`
	TotalReturnPct     float64   `json:"total_return_pct"`
	CurrentDrawdownPct float64   `json:"current_drawdown_pct"`
	MaxDrawdownPct     float64   `json:"max_drawdown_pct"`
	ClosedLots         int       `json:"closed_lots"`
	ProfitableLots     int       `json:"profitable_lots"`
	WinRatePct         float64   `json:"win_rate_pct"`
	RealizedPnL        float64   `json:"realized_pnl"`
}

// Snapshot marks the book to the given price and rolls the running peak and
// max drawdown forward. The peak is updated before the drawdown is computed
// from it, which keeps both monotonically non-decreasing.
func (l *Ledger) Snapshot(price float64, ts time.Time) PortfolioSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	qty := l.openQuantityLocked()
	avgCost := l.avgEntryCostLocked()

	positionCost := qty * avgCost
	positionValue := qty * price
	unrealized := 0.0
	if qty > quantityEpsilon {
		unrealized = qty * (price - avgCost)
	}
	portfolioValue := l.cash + positionValue

	if portfolioValue > l.peakValue {
		l.peakValue = portfolioValue
	}
	currentDrawdown := (l.peakValue - portfolioValue) / l.peakValue * 100
	if currentDrawdown > l.maxDrawdownPct {
		l.maxDrawdownPct = currentDrawdown
	}

	winRate := 0.0
	if l.closedLots > 0 {
		winRate = float64(l.profitableLots) / float64(l.closedLots) * 100
	}

	return PortfolioSnapshot{
		Timestamp:          ts,
		InitialCapital:     l.initialCapital,
		Cash:               l.cash,
		OpenQuantity:       qty,
		AvgEntryCost:       avgCost,
		CurrentPrice:       price,
		PositionCost:       positionCost,
		PositionValue:      positionValue,
		UnrealizedPnL:      unrealized,
		PortfolioValue:     portfolioValue,
		TotalReturnPct:     (portfolioValue/l.initialCapital - 1) * 100,
		CurrentDrawdownPct: currentDrawdown,
		MaxDrawdownPct:     l.maxDrawdownPct,
		ClosedLots:         l.closedLots,
		ProfitableLots:     l.profitableLots,
		WinRatePct:         winRate,
		RealizedPnL:        l.realizedPnL,
	}
}

// PeakValue returns the highest portfolio value seen so far.
func (l *Ledger) PeakValue() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peakValue
}

// MaxDrawdownPct returns the worst peak-to-trough decline seen so far.
func (l *Ledger) MaxDrawdownPct() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxDrawdownPct
}

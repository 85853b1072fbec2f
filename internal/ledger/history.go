package ledger

import "time"

// TradeRecord is the export form of one lot, open or closed. Exit fields are
// zero until the first sell fill touches the lot.
type TradeRecord struct {
	LotID         string     `json:"lot_id"`
	EntryPrice    float64    `json:"entry_price"`
	EntrySize     float64    `json:"entry_size"`
	EntryTime     time.Time  `json:"entry_time"`
	RemainingSize float64    `json:"remaining_size"`
	ExitPrice     float64    `json:"exit_price"`
	ExitSize      float64    `json:"exit_size"`
	LastExitTime  *time.Time `json:"last_exit_time"`
	RealizedPnL   float64    `json:"realized_pnl"`
	ReturnRatePct float64    `json:"return_rate_pct"`
	HoldingHours  int        `json:"holding_hours"`
	Closed        bool       `json:"closed"`
}

// TradeHistory exports the full append-only lot log as plain records. The
// caller owns the returned slice; serialization format is its concern.
func (l *Ledger) TradeHistory() []TradeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]TradeRecord, 0, len(l.allLots))
	for _, lot := range l.allLots {
		rec := TradeRecord{
			LotID:         lot.ID,
			EntryPrice:    lot.EntryPrice,
			EntrySize:     lot.EntrySize,
			EntryTime:     lot.EntryTime,
			RemainingSize: lot.RemainingSize,
			ExitPrice:     lot.ExitPrice,
			ExitSize:      lot.ExitSize,
			RealizedPnL:   lot.RealizedPnL,
			Closed:        lot.Closed,
		}
		if lot.ExitSize > quantityEpsilon {
			exit := lot.LastExitTime
			rec.LastExitTime = &exit
			rec.ReturnRatePct = (lot.ExitPrice - lot.EntryPrice) / lot.EntryPrice * 100
			rec.HoldingHours = int(lot.LastExitTime.Sub(lot.EntryTime).Hours())
		}
		out = append(out, rec)
	}
	return out
}

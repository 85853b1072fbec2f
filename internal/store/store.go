// Package store persists portfolio snapshots and trade records to SQLite.
// The simulation core never touches it directly; it hangs off the tick driver
// as one more snapshot recorder.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/changmen007/ethsim/internal/ledger"
)

const schema = `
CREATE TABLE IF NOT EXISTS trading_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TIMESTAMP NOT NULL,
	initial_capital REAL NOT NULL,
	cash REAL NOT NULL,
	open_quantity REAL NOT NULL,
	avg_entry_cost REAL NOT NULL,
	current_price REAL NOT NULL,
	position_cost REAL NOT NULL,
	position_value REAL NOT NULL,
	unrealized_pnl REAL NOT NULL,
	portfolio_value REAL NOT NULL,
	total_return_pct REAL NOT NULL,
	current_drawdown_pct REAL NOT NULL,
	max_drawdown_pct REAL NOT NULL,
	closed_lots INTEGER NOT NULL,
	profitable_lots INTEGER NOT NULL,
	win_rate_pct REAL NOT NULL,
	realized_pnl REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON trading_snapshots(timestamp);

CREATE TABLE IF NOT EXISTS trades (
	lot_id TEXT PRIMARY KEY,
	entry_price REAL NOT NULL,
	entry_size REAL NOT NULL,
	entry_time TIMESTAMP NOT NULL,
	remaining_size REAL NOT NULL,
	exit_price REAL NOT NULL,
	exit_size REAL NOT NULL,
	last_exit_time TIMESTAMP,
	realized_pnl REAL NOT NULL,
	return_rate_pct REAL NOT NULL,
	holding_hours INTEGER NOT NULL,
	closed INTEGER NOT NULL
);
`

// Store wraps the SQLite database holding simulation output.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The writer is single-threaded; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// RecordSnapshot appends one snapshot row. Implements the tick driver's
// snapshot recorder interface.
func (s *Store) RecordSnapshot(snap ledger.PortfolioSnapshot) error {
	_, err := s.db.Exec(`INSERT INTO trading_snapshots (
		timestamp, initial_capital, cash, open_quantity, avg_entry_cost,
		current_price, position_cost, position_value, unrealized_pnl,
		portfolio_value, total_return_pct, current_drawdown_pct,
		max_drawdown_pct, closed_lots, profitable_lots, win_rate_pct,
		realized_pnl
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Timestamp, snap.InitialCapital, snap.Cash, snap.OpenQuantity,
		snap.AvgEntryCost, snap.CurrentPrice, snap.PositionCost,
		snap.PositionValue, snap.UnrealizedPnL, snap.PortfolioValue,
		snap.TotalReturnPct, snap.CurrentDrawdownPct, snap.MaxDrawdownPct,
		snap.ClosedLots, snap.ProfitableLots, snap.WinRatePct, snap.RealizedPnL,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// SaveTradeHistory upserts the full lot log in one transaction, keyed by lot
// ID so repeated exports converge on the latest state of each lot.
func (s *Store) SaveTradeHistory(records []ledger.TradeRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO trades (
		lot_id, entry_price, entry_size, entry_time, remaining_size,
		exit_price, exit_size, last_exit_time, realized_pnl,
		return_rate_pct, holding_hours, closed
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(lot_id) DO UPDATE SET
		remaining_size = excluded.remaining_size,
		exit_price = excluded.exit_price,
		exit_size = excluded.exit_size,
		last_exit_time = excluded.last_exit_time,
		realized_pnl = excluded.realized_pnl,
		return_rate_pct = excluded.return_rate_pct,
		holding_hours = excluded.holding_hours,
		closed = excluded.closed`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var lastExit any
		if rec.LastExitTime != nil {
			lastExit = *rec.LastExitTime
		}
		if _, err := stmt.Exec(
			rec.LotID, rec.EntryPrice, rec.EntrySize, rec.EntryTime,
			rec.RemainingSize, rec.ExitPrice, rec.ExitSize, lastExit,
			rec.RealizedPnL, rec.ReturnRatePct, rec.HoldingHours, rec.Closed,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert trade %s: %w", rec.LotID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RecentSnapshots returns snapshot rows at or after the given time, oldest first.
func (s *Store) RecentSnapshots(since time.Time) ([]ledger.PortfolioSnapshot, error) {
	rows, err := s.db.Query(`SELECT
		timestamp, initial_capital, cash, open_quantity, avg_entry_cost,
		current_price, position_cost, position_value, unrealized_pnl,
		portfolio_value, total_return_pct, current_drawdown_pct,
		max_drawdown_pct, closed_lots, profitable_lots, win_rate_pct,
		realized_pnl
	FROM trading_snapshots WHERE timestamp >= ? ORDER BY timestamp ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []ledger.PortfolioSnapshot
	for rows.Next() {
		var snap ledger.PortfolioSnapshot
		if err := rows.Scan(
			&snap.Timestamp, &snap.InitialCapital, &snap.Cash,
			&snap.OpenQuantity, &snap.AvgEntryCost, &snap.CurrentPrice,
			&snap.PositionCost, &snap.PositionValue, &snap.UnrealizedPnL,
			&snap.PortfolioValue, &snap.TotalReturnPct, &snap.CurrentDrawdownPct,
			&snap.MaxDrawdownPct, &snap.ClosedLots, &snap.ProfitableLots,
			&snap.WinRatePct, &snap.RealizedPnL,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the most recent snapshot, or sql.ErrNoRows when the
// table is empty.
func (s *Store) LatestSnapshot() (ledger.PortfolioSnapshot, error) {
	row := s.db.QueryRow(`SELECT
		timestamp, initial_capital, cash, open_quantity, avg_entry_cost,
		current_price, position_cost, position_value, unrealized_pnl,
		portfolio_value, total_return_pct, current_drawdown_pct,
		max_drawdown_pct, closed_lots, profitable_lots, win_rate_pct,
		realized_pnl
	FROM trading_snapshots ORDER BY timestamp DESC, id DESC LIMIT 1`)

	var snap ledger.PortfolioSnapshot
	err := row.Scan(
		&snap.Timestamp, &snap.InitialCapital, &snap.Cash,
		&snap.OpenQuantity, &snap.AvgEntryCost, &snap.CurrentPrice,
		&snap.PositionCost, &snap.PositionValue, &snap.UnrealizedPnL,
		&snap.PortfolioValue, &snap.TotalReturnPct, &snap.CurrentDrawdownPct,
		&snap.MaxDrawdownPct, &snap.ClosedLots, &snap.ProfitableLots,
		&snap.WinRatePct, &snap.RealizedPnL,
	)
	return snap, err
}

// Trades returns every persisted trade record, oldest entry first.
func (s *Store) Trades() ([]ledger.TradeRecord, error) {
	rows, err := s.db.Query(`SELECT
		lot_id, entry_price, entry_size, entry_time, remaining_size,
		exit_price, exit_size, last_exit_time, realized_pnl,
		return_rate_pct, holding_hours, closed
	FROM trades ORDER BY entry_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []ledger.TradeRecord
	for rows.Next() {
		var rec ledger.TradeRecord
		var lastExit sql.NullTime
		if err := rows.Scan(
			&rec.LotID, &rec.EntryPrice, &rec.EntrySize, &rec.EntryTime,
			&rec.RemainingSize, &rec.ExitPrice, &rec.ExitSize, &lastExit,
			&rec.RealizedPnL, &rec.ReturnRatePct, &rec.HoldingHours, &rec.Closed,
		); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		if lastExit.Valid {
			t := lastExit.Time
			rec.LastExitTime = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Package engine drives one synchronous simulation cycle per incoming signal.
package engine

import (
	"github.com/rs/zerolog"

	"github.com/changmen007/ethsim/internal/ledger"
	"github.com/changmen007/ethsim/internal/metrics"
	"github.com/changmen007/ethsim/internal/signal"
	"github.com/changmen007/ethsim/internal/sizing"
)

// SnapshotRecorder receives the snapshot emitted after every tick. Recorder
// failures are the driver's concern; they never roll back ledger state.
type SnapshotRecorder interface {
	RecordSnapshot(ledger.PortfolioSnapshot) error
}

// Engine owns the per-tick cycle: decide, execute, recompute, emit. The
// ledger is mutated only from here; signals are processed strictly one at a
// time.
type Engine struct {
	log       zerolog.Logger
	policy    *sizing.Policy
	ledger    *ledger.Ledger
	recorders []SnapshotRecorder
}

// New wires the engine with its policy, ledger, and snapshot sinks.
func New(log zerolog.Logger, policy *sizing.Policy, book *ledger.Ledger, recorders ...SnapshotRecorder) *Engine {
	return &Engine{log: log, policy: policy, ledger: book, recorders: recorders}
}

// Ledger exposes the owned ledger for export at shutdown.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// OnSignal runs one full tick. Degraded no-ops still produce and emit a
// snapshot; only invalid input or an internal inconsistency aborts the tick,
// leaving the ledger untouched.
func (e *Engine) OnSignal(sig signal.Signal) (ledger.PortfolioSnapshot, error) {
	if err := sig.Validate(); err != nil {
		return ledger.PortfolioSnapshot{}, err
	}

	dec := e.policy.Decide(e.ledger.CurrentUnits(), sig.Category)
	fill, err := e.ledger.Execute(dec, sig)
	if err != nil {
		return ledger.PortfolioSnapshot{}, err
	}

	evt := e.log.Info().
		Str("category", string(sig.Category)).
		Float64("price", sig.CurrentPrice).
		Str("action", string(fill.Action)).
		Float64("qty", fill.Quantity).
		Float64("notional", fill.Notional)
	if fill.Reason != "" {
		evt = evt.Str("reason", fill.Reason)
	}
	evt.Msg("tick executed")

	metrics.SignalsTotal.WithLabelValues(string(sig.Category)).Inc()
	metrics.TradesTotal.WithLabelValues(string(fill.Action)).Inc()

	snap := e.ledger.Snapshot(sig.CurrentPrice, sig.Timestamp)
	metrics.PortfolioValue.Set(snap.PortfolioValue)
	metrics.MaxDrawdownPct.Set(snap.MaxDrawdownPct)

	for _, rec := range e.recorders {
		if err := rec.RecordSnapshot(snap); err != nil {
			e.log.Error().Err(err).Msg("snapshot recorder failed")
		}
	}
	return snap, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/changmen007/ethsim/internal/config"
	"github.com/changmen007/ethsim/internal/engine"
	"github.com/changmen007/ethsim/internal/feed"
	"github.com/changmen007/ethsim/internal/ledger"
	"github.com/changmen007/ethsim/internal/metrics"
	sig "github.com/changmen007/ethsim/internal/signal"
	"github.com/changmen007/ethsim/internal/sizing"
	"github.com/changmen007/ethsim/internal/store"
	"github.com/changmen007/ethsim/internal/util"
)

func main() {
	_ = godotenv.Load() // best-effort

	cfgPath := os.Getenv("ETHSIM_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Default()
	}

	// Each run gets its own session directory for logs and exports.
	sessionID := fmt.Sprintf("%s_%s", time.Now().Format("20060102_150405"), uuid.NewString()[:8])
	sessionDir := filepath.Join(cfg.Session.Dir, "session_"+sessionID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create session dir: %v\n", err)
		os.Exit(1)
	}

	log, logCloser, err := util.NewSessionLogger(cfg.App.LogLevel, filepath.Join(sessionDir, "simulator.log"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "open session log: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	log.Info().Str("session", sessionID).Str("config", cfgPath).Msg("simulation session starting")

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	policy, err := sizing.NewPolicy(cfg.Trading.UnitSize, cfg.Trading.MaxUnits)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid sizing config")
	}
	book, err := ledger.New(cfg.Trading.InitialCapital, cfg.Trading.UnitSize)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid ledger config")
	}

	snapshots, err := engine.NewJSONLRecorder(filepath.Join(sessionDir, "snapshots.jsonl"))
	if err != nil {
		log.Fatal().Err(err).Msg("open snapshot recorder")
	}
	defer snapshots.Close()

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer db.Close()

	eng := engine.New(log, policy, book, snapshots, db)

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	src := feed.New(cfg.Feed.Provider, cfg.Feed.Symbol, log,
		feed.WithInterval(time.Duration(cfg.Feed.PollIntervalMs)*time.Millisecond),
		feed.WithBaseURL(cfg.Feed.BaseURL),
		feed.WithHistorySize(cfg.Feed.HistorySize),
		feed.WithModel(feed.NewReturnHistogram(cfg.Feed.HorizonTicks)),
	)
	signals := make(chan sig.Signal, 16)
	go func() {
		if err := src.Run(ctx, signals); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("feed stopped")
			cancel()
		}
	}()

	log.Info().
		Float64("initial_capital", cfg.Trading.InitialCapital).
		Float64("unit_size", cfg.Trading.UnitSize).
		Float64("max_units", cfg.Trading.MaxUnits).
		Msg("simulation engine started")

	for {
		select {
		case <-ctx.Done():
			shutdown(log, eng, db, sessionDir)
			return
		case s := <-signals:
			snap, err := eng.OnSignal(s)
			if err != nil {
				log.Error().Err(err).Msg("tick rejected")
				continue
			}
			log.Info().
				Float64("portfolio_value", snap.PortfolioValue).
				Float64("total_return_pct", snap.TotalReturnPct).
				Float64("max_drawdown_pct", snap.MaxDrawdownPct).
				Float64("win_rate_pct", snap.WinRatePct).
				Msg("portfolio status")
		}
	}
}

// shutdown flushes the trade history to the session directory and the store.
func shutdown(log zerolog.Logger, eng *engine.Engine, db *store.Store, sessionDir string) {
	log.Info().Msg("shutting down")

	history := eng.Ledger().TradeHistory()
	exportPath := filepath.Join(sessionDir, "trade_history.json")
	if err := engine.ExportTradeHistory(exportPath, history); err != nil {
		log.Error().Err(err).Msg("export trade history")
	} else {
		log.Info().Str("path", exportPath).Int("lots", len(history)).Msg("trade history exported")
	}
	if err := db.SaveTradeHistory(history); err != nil {
		log.Error().Err(err).Msg("persist trade history")
	}
}

// Package feed hosts the signal producers that stand in for the upstream
// prediction pipeline: a deterministic stub, a Binance websocket stream, and
// a Binance kline poller.
package feed

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/changmen007/ethsim/internal/metrics"
	"github.com/changmen007/ethsim/internal/signal"
)

const (
	// ProviderStub emits deterministic synthetic signals (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderBinance streams live trades from Binance public websockets.
	ProviderBinance = "binance"
	// ProviderKlines polls the Binance REST kline endpoint.
	ProviderKlines = "klines"
)

const (
	defaultInterval    = time.Hour
	defaultHistorySize = 100
	defaultBaseURL     = "https://api.binance.com"
)

// Feed produces one complete prediction signal per interval on the output channel.
type Feed struct {
	provider string
	symbol   string
	baseURL  string
	interval time.Duration
	log      zerolog.Logger
	model    ProbabilityModel
	window   *priceWindow
}

// Option configures Feed construction parameters.
type Option func(*Feed)

// WithInterval overrides the signal emission cadence.
func WithInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.interval = d
		}
	}
}

// WithBaseURL overrides the REST endpoint for the kline provider.
func WithBaseURL(url string) Option {
	return func(f *Feed) {
		if url != "" {
			f.baseURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithModel swaps the probability model.
func WithModel(m ProbabilityModel) Option {
	return func(f *Feed) {
		if m != nil {
			f.model = m
		}
	}
}

// WithHistorySize bounds the price window fed to the model.
func WithHistorySize(n int) Option {
	return func(f *Feed) {
		if n > 1 {
			f.window = newPriceWindow(n)
		}
	}
}

// New constructs a feed backed by the requested provider.
func New(provider, symbol string, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderStub
	}
	f := &Feed{
		provider: strings.ToLower(provider),
		symbol:   strings.ToUpper(strings.TrimSpace(symbol)),
		log:      log,
		baseURL:  defaultBaseURL,
		interval: defaultInterval,
		model:    NewReturnHistogram(1),
		window:   newPriceWindow(defaultHistorySize),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run pushes signals onto the provided channel until the context is canceled.
func (f *Feed) Run(ctx context.Context, out chan<- signal.Signal) error {
	switch f.provider {
	case ProviderBinance:
		return f.runBinance(ctx, out)
	case ProviderKlines:
		return f.runKlines(ctx, out)
	default:
		return f.runStub(ctx, out)
	}
}

// emit classifies the current window and delivers one signal. Malformed
// model output is dropped with a warning rather than forwarded.
func (f *Feed) emit(ctx context.Context, out chan<- signal.Signal, price float64, ts time.Time) error {
	probs := f.model.Probabilities(f.window.snapshot())
	if err := probs.Validate(); err != nil {
		f.log.Warn().Err(err).Msg("model produced invalid probabilities, dropping tick")
		return nil
	}

	sig := signal.Signal{
		Timestamp:    ts,
		CurrentPrice: price,
		Category:     signal.Classify(probs),
	}
	select {
	case out <- sig:
		metrics.TicksTotal.WithLabelValues(f.provider).Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Feed) runStub(ctx context.Context, out chan<- signal.Signal) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	// Deterministic synthetic walk: a slow sine drift produces stretches of
	// every signal category without any randomness.
	px := 2000.0
	step := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-ticker.C:
			step++
			px *= 1 + 0.03*math.Sin(float64(step)/5)
			f.window.push(px)
			if err := f.emit(ctx, out, px, ts); err != nil {
				return err
			}
		}
	}
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market ticks ingested"},
		[]string{"provider"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Prediction signals emitted by category"},
		[]string{"category"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_total", Help: "Executed position adjustments by action"},
		[]string{"action"},
	)
	PortfolioValue = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "portfolio_value", Help: "Marked portfolio value after the last tick"},
	)
	MaxDrawdownPct = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "max_drawdown_pct", Help: "Worst peak-to-trough decline percentage"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, SignalsTotal, TradesTotal, PortfolioValue, MaxDrawdownPct)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

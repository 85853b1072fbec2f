// Package api serves the persisted simulation output over a read-only HTTP
// surface. It reads from the store only; the live ledger is never exposed.
package api

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/changmen007/ethsim/internal/ledger"
)

// Source is the slice of the store the API needs.
type Source interface {
	RecentSnapshots(since time.Time) ([]ledger.PortfolioSnapshot, error)
	LatestSnapshot() (ledger.PortfolioSnapshot, error)
	Trades() ([]ledger.TradeRecord, error)
}

// Server wraps the gin router serving the trading data endpoints.
type Server struct {
	source       Source
	log          zerolog.Logger
	historyHours int
	router       *gin.Engine
}

// New builds the router. historyHours bounds the default trading-data window.
func New(source Source, log zerolog.Logger, historyHours int) *Server {
	if historyHours <= 0 {
		historyHours = 24
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{source: source, log: log, historyHours: historyHours}
	router := gin.New()
	router.Use(gin.Recovery(), s.cors())

	router.GET("/healthz", s.health)
	apiGroup := router.Group("/api")
	apiGroup.GET("/trading-data", s.tradingData)
	apiGroup.GET("/trade-history", s.tradeHistory)
	apiGroup.GET("/performance", s.performance)

	s.router = router
	return s
}

// Handler exposes the router for mounting in an http.Server or tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run blocks serving HTTP on addr.
func (s *Server) Run(addr string) error { return s.router.Run(addr) }

func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// tradingData returns the snapshots from the last N hours (query param
// "hours", defaulting to the configured window).
func (s *Server) tradingData(c *gin.Context) {
	hours := s.historyHours
	if raw := c.Query("hours"); raw != "" {
		parsed, err := time.ParseDuration(raw + "h")
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be a positive number"})
			return
		}
		hours = int(parsed.Hours())
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	snaps, err := s.source.RecentSnapshots(since)
	if err != nil {
		s.log.Error().Err(err).Msg("query snapshots")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if snaps == nil {
		snaps = []ledger.PortfolioSnapshot{}
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snaps, "hours": hours})
}

func (s *Server) tradeHistory(c *gin.Context) {
	trades, err := s.source.Trades()
	if err != nil {
		s.log.Error().Err(err).Msg("query trades")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if trades == nil {
		trades = []ledger.TradeRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) performance(c *gin.Context) {
	snap, err := s.source.LatestSnapshot()
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshots recorded yet"})
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("query latest snapshot")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/changmen007/ethsim/internal/api"
	"github.com/changmen007/ethsim/internal/config"
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

	log := util.NewLogger(cfg.App.LogLevel)

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("open store")
	}
	defer db.Close()

	server := api.New(db, log, cfg.API.HistoryHours)
	log.Info().Str("addr", cfg.API.Addr).Msg("api listening")
	if err := server.Run(cfg.API.Addr); err != nil {
		log.Fatal().Err(err).Msg("api server stopped")
	}
}

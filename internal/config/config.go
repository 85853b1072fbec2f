// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Trading holds the simulator's capital and sizing parameters.
type Trading struct {
	InitialCapital float64 `yaml:"initial_capital"`
	UnitSize       float64 `yaml:"unit_size"`
	MaxUnits       float64 `yaml:"max_units"`
}

// Feed configures where prediction signals come from.
type Feed struct {
	Provider       string `yaml:"provider"` // stub | binance | klines
	Symbol         string `yaml:"symbol"`
	BaseURL        string `yaml:"base_url"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`
	HistorySize    int    `yaml:"history_size"`
	HorizonTicks   int    `yaml:"horizon_ticks"`
}

// Store configures the SQLite snapshot/trade database.
type Store struct {
	Path string `yaml:"path"`
}

// Session configures the per-run output directory for logs and exports.
type Session struct {
	Dir string `yaml:"dir"`
}

// API configures the read-only HTTP surface over the store.
type API struct {
	Addr         string `yaml:"addr"`
	HistoryHours int    `yaml:"history_hours"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App     App     `yaml:"app"`
	Trading Trading `yaml:"trading"`
	Feed    Feed    `yaml:"feed"`
	Store   Store   `yaml:"store"`
	Session Session `yaml:"session"`
	API     API     `yaml:"api"`
}

// Default returns the stock configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		App:     App{Name: "ethsim", Env: "dev", MetricsAddr: ":9090", LogLevel: "info"},
		Trading: Trading{InitialCapital: 20000, UnitSize: 2500, MaxUnits: 5},
		Feed:    Feed{Provider: "stub", Symbol: "ETHUSDT", PollIntervalMs: 3_600_000, HistorySize: 100, HorizonTicks: 1},
		Store:   Store{Path: "trading.db"},
		Session: Session{Dir: "log"},
		API:     API{Addr: ":8000", HistoryHours: 24},
	}
}

// Load reads a YAML file from disk and hydrates a Config struct on top of the defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Package config loads backlab's YAML configuration and applies environment
// variable overrides for credentials and paths.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for backlab.
type Config struct {
	Data     Data     `yaml:"data"`
	Backtest Backtest `yaml:"backtest"`
	Storage  Storage  `yaml:"storage"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Fetch    Fetch    `yaml:"fetch"`
	Logging  Logging  `yaml:"logging"`
}

// Data names the bar sources: a one-off CSV file and/or the Parquet cache
// directory populated by the fetch command.
type Data struct {
	CSVPath    string `yaml:"csv_path"`
	ParquetDir string `yaml:"parquet_dir"`
	Symbol     string `yaml:"symbol"`
}

// Backtest holds the run parameters handed to the engine.
type Backtest struct {
	Cash       float64        `yaml:"cash"`
	Commission float64        `yaml:"commission"`
	Strategy   string         `yaml:"strategy"`
	Params     map[string]any `yaml:"params"`
}

// Storage holds paths for result persistence.
type Storage struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Fetch controls the bar download job.
type Fetch struct {
	StartDate       string `yaml:"start_date"`
	EndDate         string `yaml:"end_date"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a Config with the defaults applied before any file or
// environment values.
func Default() *Config {
	return &Config{
		Data: Data{
			ParquetDir: "data",
			Symbol:     "BTC/USD",
		},
		Backtest: Backtest{
			Cash:       10_000,
			Commission: 0.001,
			Strategy:   "sma_cross",
		},
		Fetch: Fetch{
			RateLimitPerMin: 190,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML configuration file at the given path, parses it over
// the defaults, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// Validate reports structural problems that would make a run meaningless.
func (c *Config) Validate() error {
	if c.Backtest.Cash <= 0 {
		return fmt.Errorf("backtest.cash must be positive, got %v", c.Backtest.Cash)
	}
	if c.Backtest.Commission < 0 || c.Backtest.Commission >= 1 {
		return fmt.Errorf("backtest.commission must be in [0, 1), got %v", c.Backtest.Commission)
	}
	if c.Backtest.Strategy == "" {
		return fmt.Errorf("backtest.strategy is required")
	}
	if c.Data.CSVPath == "" && c.Data.ParquetDir == "" {
		return fmt.Errorf("data.csv_path or data.parquet_dir is required")
	}
	return nil
}

// Package config defines the top-level configuration for the evolutionary
// paper-trading engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/evoquant/evobot/internal/evolve"
)

// duration wraps time.Duration so the TOML decoder can parse strings like
// "5m" or "30s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by EVOBOT_* environment
// variables.
type Config struct {
	Market      MarketConfig      `toml:"market"`
	Paper       PaperConfig       `toml:"paper"`
	Executor    ExecutorConfig    `toml:"executor"`
	Performance PerformanceConfig `toml:"performance"`
	Evolution   EvolutionConfig   `toml:"evolution"`
	Oracle      OracleConfig      `toml:"oracle"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Notify      NotifyConfig      `toml:"notify"`
	Seeds       []SeedConfig      `toml:"seeds"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// MarketConfig holds market data feed parameters.
type MarketConfig struct {
	WsURL      string   `toml:"ws_url"`
	Symbols    []string `toml:"symbols"`
	WindowSize int      `toml:"window_size"`
	StaleAfter duration `toml:"stale_after"`
	// TickInterval is the cadence of the analyze/execute loop.
	TickInterval duration `toml:"tick_interval"`
}

// PaperConfig holds the execution simulator parameters.
type PaperConfig struct {
	InitialCapital  float64 `toml:"initial_capital"`
	CommissionRate  float64 `toml:"commission_rate"`
	SlippageRate    float64 `toml:"slippage_rate"`
	MaxPositionSize float64 `toml:"max_position_size"`
	LotSize         float64 `toml:"lot_size"`
}

// ExecutorConfig holds tick execution tuning.
type ExecutorConfig struct {
	AlgoTimeout duration `toml:"algo_timeout"`
	Parallelism int      `toml:"parallelism"`
}

// PerformanceConfig holds metric evaluation parameters.
type PerformanceConfig struct {
	Window         duration `toml:"window"`
	RiskFreeRate   float64  `toml:"risk_free_rate"`
	PeriodsPerYear float64  `toml:"periods_per_year"`
}

// EvolutionConfig holds evolution cycle parameters.
type EvolutionConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	TopN          int      `toml:"top_n"`
	MaxAlgorithms int      `toml:"max_algorithms"`
	OracleTimeout duration `toml:"oracle_timeout"`
	RankChain     []string `toml:"rank_chain"`
}

// OracleConfig holds the strategy-oracle endpoint. With an empty BaseURL the
// engine falls back to the offline parameter mutator.
type OracleConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	// MutatorSeed fixes the offline mutator's perturbation stream.
	MutatorSeed     int64 `toml:"mutator_seed"`
	MutatorPerCycle int   `toml:"mutator_per_cycle"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for ledger
// archives.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	ArchivePrefix  string `toml:"archive_prefix"`
}

// NotifyConfig holds operator notification channels.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// SeedConfig describes one generation-zero algorithm created at startup when
// the pool is empty.
type SeedConfig struct {
	Name   string         `toml:"name"`
	Family string         `toml:"family"`
	Params map[string]any `toml:"params"`
}

// Defaults returns the built-in configuration. Values here match the
// engine's reference deployment; a TOML file and EVOBOT_* env vars layer on
// top.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			Symbols:      []string{"BTC-USD", "ETH-USD"},
			WindowSize:   400,
			StaleAfter:   duration{30 * time.Second},
			TickInterval: duration{1 * time.Minute},
		},
		Paper: PaperConfig{
			InitialCapital:  100.0,
			CommissionRate:  0.001,
			SlippageRate:    0.0005,
			MaxPositionSize: 0.2,
			LotSize:         0.00000001,
		},
		Executor: ExecutorConfig{
			AlgoTimeout: duration{2 * time.Second},
			Parallelism: 8,
		},
		Performance: PerformanceConfig{
			Window:         duration{7 * 24 * time.Hour},
			RiskFreeRate:   0.04,
			PeriodsPerYear: 252,
		},
		Evolution: EvolutionConfig{
			Enabled:       true,
			Interval:      duration{6 * time.Hour},
			TopN:          15,
			MaxAlgorithms: 100,
			OracleTimeout: duration{60 * time.Second},
			RankChain:     append([]string(nil), evolve.DefaultRankChain...),
		},
		Oracle: OracleConfig{
			MutatorSeed:     1,
			MutatorPerCycle: 3,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "evobot",
			User:          "evobot",
			SSLMode:       "disable",
			PoolMaxConns:  8,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 8,
		},
		S3: S3Config{
			Region:        "us-east-1",
			ArchivePrefix: "ledgers",
		},
		Notify: NotifyConfig{
			Events: []string{"cycle_complete", "cycle_aborted", "algorithm_failure"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	// full runs the feed, the tick loop, and the evolution scheduler.
	"full": true,
	// trade runs the feed and tick loop without evolution.
	"trade": true,
	// offline runs against the parameter mutator instead of the oracle.
	"offline": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, trade, offline)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Market
	if c.Market.WsURL == "" {
		errs = append(errs, "market: ws_url must not be empty")
	}
	if len(c.Market.Symbols) == 0 {
		errs = append(errs, "market: at least one symbol is required")
	}
	if c.Market.TickInterval.Duration <= 0 {
		errs = append(errs, "market: tick_interval must be > 0")
	}

	// Paper
	if c.Paper.InitialCapital <= 0 {
		errs = append(errs, "paper: initial_capital must be > 0")
	}
	if c.Paper.CommissionRate < 0 || c.Paper.CommissionRate >= 1 {
		errs = append(errs, "paper: commission_rate must be in [0, 1)")
	}
	if c.Paper.SlippageRate < 0 || c.Paper.SlippageRate >= 1 {
		errs = append(errs, "paper: slippage_rate must be in [0, 1)")
	}
	if c.Paper.MaxPositionSize <= 0 || c.Paper.MaxPositionSize > 1 {
		errs = append(errs, "paper: max_position_size must be in (0, 1]")
	}

	// Executor
	if c.Executor.AlgoTimeout.Duration <= 0 {
		errs = append(errs, "executor: algo_timeout must be > 0")
	}
	if c.Executor.Parallelism < 0 {
		errs = append(errs, "executor: parallelism must be >= 0")
	}

	// Performance
	if c.Performance.Window.Duration <= 0 {
		errs = append(errs, "performance: window must be > 0")
	}
	if c.Performance.RiskFreeRate < 0 {
		errs = append(errs, "performance: risk_free_rate must be >= 0")
	}

	// Evolution
	if c.Evolution.Enabled {
		if c.Evolution.Interval.Duration <= 0 {
			errs = append(errs, "evolution: interval must be > 0 when enabled")
		}
		if c.Evolution.TopN < 1 {
			errs = append(errs, "evolution: top_n must be >= 1")
		}
		if c.Evolution.MaxAlgorithms < 1 {
			errs = append(errs, "evolution: max_algorithms must be >= 1")
		}
		if c.Evolution.OracleTimeout.Duration <= 0 {
			errs = append(errs, "evolution: oracle_timeout must be > 0")
		}
		if err := evolve.ValidateRankChain(c.Evolution.RankChain); err != nil {
			errs = append(errs, fmt.Sprintf("evolution: %v", err))
		}
		if strings.ToLower(c.Mode) != "offline" && c.Oracle.BaseURL == "" {
			errs = append(errs, "oracle: base_url is required unless mode is offline")
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 is optional: with no bucket, retired ledgers are not archived to
	// cold storage. When configured, it must be complete.
	if c.S3.Bucket != "" && c.S3.Region == "" {
		errs = append(errs, "s3: region must not be empty when bucket is set")
	}

	// Seeds
	for i, s := range c.Seeds {
		if s.Family == "" {
			errs = append(errs, fmt.Sprintf("seeds[%d]: family must not be empty", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

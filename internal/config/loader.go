package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies EVOBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known EVOBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// Market
	setStr(&cfg.Market.WsURL, "EVOBOT_MARKET_WS_URL")
	setStringSlice(&cfg.Market.Symbols, "EVOBOT_MARKET_SYMBOLS")
	setInt(&cfg.Market.WindowSize, "EVOBOT_MARKET_WINDOW_SIZE")
	setDuration(&cfg.Market.StaleAfter, "EVOBOT_MARKET_STALE_AFTER")
	setDuration(&cfg.Market.TickInterval, "EVOBOT_MARKET_TICK_INTERVAL")

	// Paper
	setFloat64(&cfg.Paper.InitialCapital, "EVOBOT_PAPER_INITIAL_CAPITAL")
	setFloat64(&cfg.Paper.CommissionRate, "EVOBOT_PAPER_COMMISSION_RATE")
	setFloat64(&cfg.Paper.SlippageRate, "EVOBOT_PAPER_SLIPPAGE_RATE")
	setFloat64(&cfg.Paper.MaxPositionSize, "EVOBOT_PAPER_MAX_POSITION_SIZE")
	setFloat64(&cfg.Paper.LotSize, "EVOBOT_PAPER_LOT_SIZE")

	// Executor
	setDuration(&cfg.Executor.AlgoTimeout, "EVOBOT_EXECUTOR_ALGO_TIMEOUT")
	setInt(&cfg.Executor.Parallelism, "EVOBOT_EXECUTOR_PARALLELISM")

	// Performance
	setDuration(&cfg.Performance.Window, "EVOBOT_PERFORMANCE_WINDOW")
	setFloat64(&cfg.Performance.RiskFreeRate, "EVOBOT_PERFORMANCE_RISK_FREE_RATE")
	setFloat64(&cfg.Performance.PeriodsPerYear, "EVOBOT_PERFORMANCE_PERIODS_PER_YEAR")

	// Evolution
	setBool(&cfg.Evolution.Enabled, "EVOBOT_EVOLUTION_ENABLED")
	setDuration(&cfg.Evolution.Interval, "EVOBOT_EVOLUTION_INTERVAL")
	setInt(&cfg.Evolution.TopN, "EVOBOT_EVOLUTION_TOP_N")
	setInt(&cfg.Evolution.MaxAlgorithms, "EVOBOT_EVOLUTION_MAX_ALGORITHMS")
	setDuration(&cfg.Evolution.OracleTimeout, "EVOBOT_EVOLUTION_ORACLE_TIMEOUT")
	setStringSlice(&cfg.Evolution.RankChain, "EVOBOT_EVOLUTION_RANK_CHAIN")

	// Oracle
	setStr(&cfg.Oracle.BaseURL, "EVOBOT_ORACLE_BASE_URL")
	setStr(&cfg.Oracle.APIKey, "EVOBOT_ORACLE_API_KEY")
	setInt64(&cfg.Oracle.MutatorSeed, "EVOBOT_ORACLE_MUTATOR_SEED")
	setInt(&cfg.Oracle.MutatorPerCycle, "EVOBOT_ORACLE_MUTATOR_PER_CYCLE")

	// Postgres
	setStr(&cfg.Postgres.DSN, "EVOBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "EVOBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "EVOBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "EVOBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "EVOBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "EVOBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "EVOBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "EVOBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "EVOBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "EVOBOT_POSTGRES_RUN_MIGRATIONS")

	// Redis
	setStr(&cfg.Redis.Addr, "EVOBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "EVOBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "EVOBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "EVOBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "EVOBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "EVOBOT_REDIS_TLS_ENABLED")

	// S3
	setStr(&cfg.S3.Endpoint, "EVOBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "EVOBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "EVOBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "EVOBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "EVOBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "EVOBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "EVOBOT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.ArchivePrefix, "EVOBOT_S3_ARCHIVE_PREFIX")

	// Notify
	setStr(&cfg.Notify.TelegramToken, "EVOBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "EVOBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "EVOBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "EVOBOT_NOTIFY_EVENTS")

	// Top-level
	setStr(&cfg.Mode, "EVOBOT_MODE")
	setStr(&cfg.LogLevel, "EVOBOT_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

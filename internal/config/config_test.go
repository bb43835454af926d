package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig is a minimal Config that passes Validate.
func validConfig() Config {
	cfg := Defaults()
	cfg.Market.WsURL = "wss://feed.example.com/v1/stream"
	cfg.Oracle.BaseURL = "https://oracle.example.com"
	return cfg
}

func TestDefaultsValidateWithRequiredFields(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Market.WsURL = ""
	cfg.Paper.InitialCapital = 0
	cfg.Mode = "turbo"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ws_url")
	assert.Contains(t, err.Error(), "initial_capital")
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateRejectsBadRankChain(t *testing.T) {
	cfg := validConfig()
	cfg.Evolution.RankChain = []string{"sharpe", "vibes"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vibes")
}

func TestValidateOracleRequiredUnlessOffline(t *testing.T) {
	cfg := validConfig()
	cfg.Oracle.BaseURL = ""
	require.Error(t, cfg.Validate())

	cfg.Mode = "offline"
	require.NoError(t, cfg.Validate())
}

func TestValidateMaxPositionSizeBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Paper.MaxPositionSize = 1.5
	require.Error(t, cfg.Validate())

	cfg.Paper.MaxPositionSize = 1.0
	require.NoError(t, cfg.Validate())
}

func TestValidateSeedsNeedFamily(t *testing.T) {
	cfg := validConfig()
	cfg.Seeds = []SeedConfig{{Name: "anonymous"}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seeds[0]")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "offline"

[market]
ws_url = "wss://feed.example.com/v1/stream"
symbols = ["SOL-USD"]
tick_interval = "30s"

[paper]
initial_capital = 250.0

[evolution]
top_n = 5
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "offline", cfg.Mode)
	assert.Equal(t, []string{"SOL-USD"}, cfg.Market.Symbols)
	assert.Equal(t, 30*time.Second, cfg.Market.TickInterval.Duration)
	assert.InDelta(t, 250.0, cfg.Paper.InitialCapital, 1e-9)
	assert.Equal(t, 5, cfg.Evolution.TopN)

	// Untouched sections keep their defaults.
	assert.InDelta(t, 0.001, cfg.Paper.CommissionRate, 1e-9)
	assert.Equal(t, 100, cfg.Evolution.MaxAlgorithms)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[market]
ws_url = "wss://feed.example.com/v1/stream"
`), 0o600))

	t.Setenv("EVOBOT_POSTGRES_PASSWORD", "hunter2")
	t.Setenv("EVOBOT_MARKET_SYMBOLS", "BTC-USD, DOGE-USD")
	t.Setenv("EVOBOT_EVOLUTION_ENABLED", "false")
	t.Setenv("EVOBOT_EXECUTOR_ALGO_TIMEOUT", "500ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "hunter2", cfg.Postgres.Password)
	assert.Equal(t, []string{"BTC-USD", "DOGE-USD"}, cfg.Market.Symbols)
	assert.False(t, cfg.Evolution.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Executor.AlgoTimeout.Duration)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

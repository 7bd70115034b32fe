package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/IggyIkenna/basis-strategy-v1-sub010/internal/errors"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/strategy"
)

func validConfigJSON() string {
	return `{
		"run_id": "backtest-1",
		"simulated": true,
		"share_class_currency": "USDT",
		"initial_capital": 10000,
		"start": "2024-01-01T00:00:00Z",
		"end": "2024-01-02T00:00:00Z",
		"tick_every": "1h",
		"cex_venues": ["binance", "bybit"],
		"strategy": {
			"mode": "basis_trade",
			"spot_venue": "binance",
			"perp_venue": "bybit",
			"asset": "BTC",
			"instrument": "BTCUSDT"
		},
		"feed": {
			"kind": "simulated",
			"base_prices": {"BTC": 50000}
		}
	}`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadRunConfig(t *testing.T) {
	cfg, err := LoadRunConfig(writeConfig(t, validConfigJSON()))
	require.NoError(t, err)

	assert.Equal(t, "backtest-1", cfg.RunID)
	assert.Equal(t, strategy.ModeBasisTrade, cfg.Strategy.Mode)
	assert.Equal(t, "USDT", cfg.ShareClassCurrency)

	// defaults fill in what the file omits
	assert.Equal(t, "results", cfg.OutputDir)
	assert.InDelta(t, 0.95, cfg.Risk.LiquidationThreshold, 1e-9)

	timestamps, err := cfg.Timestamps()
	require.NoError(t, err)
	assert.Len(t, timestamps, 25)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), timestamps[0])
}

func TestLoadRunConfigMissingFile(t *testing.T) {
	_, err := LoadRunConfig("/nonexistent/run.json")
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrorCategoryConfig))
}

func TestValidateFailsFast(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RunConfig)
	}{
		{"missing run id", func(c *RunConfig) { c.RunID = "" }},
		{"zero capital", func(c *RunConfig) { c.InitialCapital = 0 }},
		{"missing mode", func(c *RunConfig) { c.Strategy.Mode = "" }},
		{"end before start", func(c *RunConfig) { c.End = c.Start.Add(-time.Hour) }},
		{"bad interval", func(c *RunConfig) { c.TickEvery = "soon" }},
		{"unknown feed", func(c *RunConfig) { c.Feed.Kind = "kafka" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadRunConfig(writeConfig(t, validConfigJSON()))
			require.NoError(t, err)

			tc.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.True(t, perrors.Is(err, perrors.ErrorCategoryConfig))
		})
	}
}

func TestLoadCredentialsFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "BYBIT_API_KEY=key-123\nBYBIT_API_SECRET=secret-456\nBYBIT_TESTNET=false\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0600))

	// godotenv never overrides variables already present, so make sure
	// these are absent (t.Setenv registers the restore, then unset)
	for _, key := range []string{"BYBIT_API_KEY", "BYBIT_API_SECRET", "BYBIT_TESTNET"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	creds, err := LoadCredentials(envFile)
	require.NoError(t, err)
	assert.Equal(t, "key-123", creds.BybitAPIKey)
	assert.Equal(t, "secret-456", creds.BybitAPISecret)
	assert.False(t, creds.BybitTestnet)
	assert.NoError(t, creds.RequireBybit())
}

func TestRequireBybitFailsWithoutSecrets(t *testing.T) {
	creds := &Credentials{}
	err := creds.RequireBybit()
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrorCategoryConfig))
}

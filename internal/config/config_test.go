package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PESAGURU_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8002, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, "NSE20", cfg.MarketIndex)
	assert.Equal(t, 91, cfg.TBillTenorDays)
	assert.Equal(t, 0.25, cfg.MaxAllocation)
	assert.Equal(t, 0.08, cfg.MinTargetReturn)
	assert.Equal(t, 10000, cfg.MonteCarloDraws)
	assert.Equal(t, "0 6 * * *", cfg.OutlookRefreshSpec)
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PESAGURU_DATA_DIR", dir)
	t.Setenv("PESAGURU_PORT", "9090")
	t.Setenv("PESAGURU_MARKET_INDEX", "NASI")
	t.Setenv("PESAGURU_MAX_ALLOCATION", "0.4")
	t.Setenv("PESAGURU_MONTE_CARLO_DRAWS", "2500")
	t.Setenv("DEV_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Clean(dir), filepath.Clean(cfg.DataDir))
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "NASI", cfg.MarketIndex)
	assert.Equal(t, 0.4, cfg.MaxAllocation)
	assert.Equal(t, 2500, cfg.MonteCarloDraws)
	assert.True(t, cfg.DevMode)
}

func TestValidateRejectsBadAllocation(t *testing.T) {
	cfg := &Config{MaxAllocation: 1.5, MonteCarloDraws: 100}
	require.Error(t, cfg.Validate())

	cfg = &Config{MaxAllocation: 0.25, MonteCarloDraws: 0}
	require.Error(t, cfg.Validate())

	cfg = &Config{MaxAllocation: 0.25, MonteCarloDraws: 100}
	require.NoError(t, cfg.Validate())
}

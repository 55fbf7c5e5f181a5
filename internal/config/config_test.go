package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-candle-lab/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "deribit", cfg.Exchange)
	assert.Equal(t, BackendFiles, cfg.Storage.Backend)
	assert.Equal(t, 200*time.Millisecond, cfg.Pipeline.EmissionLatency)
	assert.Equal(t, int64(200_000), cfg.Pipeline.EmissionLatencyUs())
	assert.Equal(t, []string{"15s", "1m"}, cfg.Pipeline.BaseTimeframes)
	assert.Len(t, cfg.Pipeline.AggregateTimeframes, 5)
	assert.Equal(t, []domain.DataType{domain.DataTypeTrades, domain.DataTypeLiquidations, domain.DataTypeDerivativeTicker}, cfg.Pipeline.Feeds())
	assert.Equal(t, int32(8), cfg.Postgres.MaxConns)
	assert.Equal(t, 10*time.Second, cfg.Postgres.ConnectTimeout)

	req := cfg.Pipeline.Requirements()
	assert.Equal(t, []domain.DataType{domain.DataTypeTrades, domain.DataTypeDerivativeTicker}, req[domain.InstrumentPerpetual])
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "candles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
exchange: binance
storage:
  data_dir: /lake
pipeline:
  aggregate_timeframes: ["1h"]
  max_concurrent_units: 8
`), 0o644))

	t.Setenv("CANDLES_PIPELINE_SKIP_COMPLETED", "true")
	t.Setenv("CANDLES_PIPELINE_MAX_CONCURRENT_UNITS", "16")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "binance", cfg.Exchange)
	assert.Equal(t, "/lake", cfg.Storage.DataDir)
	assert.Equal(t, []string{"1h"}, cfg.Pipeline.AggregateTimeframes)
	assert.True(t, cfg.Pipeline.SkipCompleted)
	assert.Equal(t, 16, cfg.Pipeline.MaxConcurrentUnits)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"CANDLES_PIPELINE_AGGREGATE_TIMEFRAMES": "2m",
		"CANDLES_PIPELINE_BASE_TIMEFRAMES":      "15s",
		"CANDLES_PIPELINE_MAX_CONCURRENT_DAYS":  "0",
		"CANDLES_STORAGE_BACKEND":               "clickhouse",
		"CANDLES_LOGGING_LEVEL":                 "loud",
		"CANDLES_PIPELINE_BASE_FEEDS":           "book_snapshot_5",
	}
	for env, val := range cases {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, val)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestParseTimeframes_Dedup(t *testing.T) {
	tfs, err := ParseTimeframes([]string{"1m", " 5m", "1m"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Timeframe{domain.Timeframe1m, domain.Timeframe5m}, tfs)

	_, err = ParseTimeframes([]string{"3m"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedTimeframe)
}

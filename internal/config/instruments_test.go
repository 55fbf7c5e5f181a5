package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-candle-lab/internal/domain"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadInstruments(t *testing.T) {
	path := writeFile(t, "instruments.yaml", `
instruments:
  - key: BTC-PERPETUAL
    type: perpetual
    base_asset: BTC
    quote_asset: USD
  - key: BTC-29MAR24-70000-C
    type: option
    base_asset: BTC
    quote_asset: BTC
    underlying: BTC-29MAR24
`)

	got, err := LoadInstruments(path, "deribit")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.Instrument{
		Key: "BTC-PERPETUAL", Venue: "deribit", Type: domain.InstrumentPerpetual, BaseAsset: "BTC", QuoteAsset: "USD",
	}, got[0])
	assert.Equal(t, "BTC-29MAR24", got[1].GroupKey())
}

func TestLoadInstruments_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", "instruments: []\n"},
		{"missing key", "instruments:\n  - type: spot\n"},
		{"unknown type", "instruments:\n  - key: X\n    type: swap\n"},
		{"duplicate", "instruments:\n  - key: X\n    type: spot\n  - key: X\n    type: spot\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadInstruments(writeFile(t, "i.yaml", tt.body), "deribit")
			assert.Error(t, err)
		})
	}

	_, err := LoadInstruments(filepath.Join(t.TempDir(), "absent.yaml"), "deribit")
	assert.Error(t, err)
}

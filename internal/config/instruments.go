package config

import (
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"market-candle-lab/internal/domain"
)

// InstrumentEntry is one instrument in a registry listing file.
type InstrumentEntry struct {
	Key        string `mapstructure:"key"`
	Type       string `mapstructure:"type"`
	BaseAsset  string `mapstructure:"base_asset"`
	QuoteAsset string `mapstructure:"quote_asset"`
	Underlying string `mapstructure:"underlying"`
}

// LoadInstruments reads the "instruments" list of a YAML or JSON file and
// stamps every entry with venue.
func LoadInstruments(path, venue string) ([]domain.Instrument, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("instruments: read %q: %w", path, err)
	}

	var entries []InstrumentEntry
	if err := mapstructure.Decode(v.Get("instruments"), &entries); err != nil {
		return nil, fmt.Errorf("instruments: decode: %w", err)
	}
	if len(entries) == 0 {
		return nil, errors.New("instruments: file lists no instruments")
	}

	out := make([]domain.Instrument, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.Key == "" {
			return nil, fmt.Errorf("instruments[%d]: key is required", i)
		}
		if seen[e.Key] {
			return nil, fmt.Errorf("instruments[%d]: duplicate key %q", i, e.Key)
		}
		seen[e.Key] = true
		typ := domain.InstrumentType(e.Type)
		if !typ.IsValid() {
			return nil, fmt.Errorf("instruments[%d]: unknown type %q", i, e.Type)
		}
		out = append(out, domain.Instrument{
			Key:        e.Key,
			Venue:      venue,
			Type:       typ,
			BaseAsset:  e.BaseAsset,
			QuoteAsset: e.QuoteAsset,
			Underlying: e.Underlying,
		})
	}
	return out, nil
}

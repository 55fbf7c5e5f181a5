package memory

import (
	"context"
	"sort"
	"sync"

	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/storage"
)

// InstrumentRegistry is an in-memory implementation of storage.InstrumentRegistry.
// An instrument is listed from the day it was upserted onward.
type InstrumentRegistry struct {
	mu     sync.RWMutex
	listed map[string]listing // keyed by venue|key
}

type listing struct {
	fromUs     int64
	instrument domain.Instrument
}

// NewInstrumentRegistry creates an empty registry.
func NewInstrumentRegistry() *InstrumentRegistry {
	return &InstrumentRegistry{listed: make(map[string]listing)}
}

// Upsert adds or replaces instrument metadata valid from dayStartUs.
func (r *InstrumentRegistry) Upsert(_ context.Context, dayStartUs int64, instruments []domain.Instrument) error {
	for _, inst := range instruments {
		if inst.Key == "" || inst.Venue == "" || !inst.Type.IsValid() {
			return storage.ErrInvalidInput
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range instruments {
		r.listed[inst.Venue+"|"+inst.Key] = listing{fromUs: dayStartUs, instrument: inst}
	}
	return nil
}

// ListInstruments returns the instruments listed on exchange for the day, ordered by key.
func (r *InstrumentRegistry) ListInstruments(_ context.Context, exchange string, dayStartUs int64) ([]domain.Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Instrument
	for _, l := range r.listed {
		if l.instrument.Venue == exchange && l.fromUs <= dayStartUs {
			out = append(out, l.instrument)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

var _ storage.InstrumentRegistry = (*InstrumentRegistry)(nil)

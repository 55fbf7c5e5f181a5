package memory

import (
	"context"
	"sort"
	"sync"

	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	days map[storage.DayKey][]domain.Candle
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		days: make(map[storage.DayKey][]domain.Candle),
	}
}

// PutDay writes one day of candles. Returns ErrDuplicateKey if the day exists.
func (s *CandleStore) PutDay(_ context.Context, key storage.DayKey, candles []domain.Candle) error {
	if err := key.Validate(); err != nil {
		return err
	}
	for i := range candles {
		if candles[i].Timeframe != key.Timeframe {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.days[key]; exists {
		return storage.ErrDuplicateKey
	}

	stored := make([]domain.Candle, len(candles))
	copy(stored, candles)
	sort.SliceStable(stored, func(i, j int) bool {
		return stored[i].TimestampUs < stored[j].TimestampUs
	})
	s.days[key] = stored
	return nil
}

// GetRange returns candles with interval start in [startUs, endUs).
func (s *CandleStore) GetRange(_ context.Context, key storage.DayKey, startUs, endUs int64) ([]domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day, ok := s.days[key]
	if !ok {
		return nil, storage.ErrNotFound
	}

	var result []domain.Candle
	for _, c := range day {
		if c.TimestampUs >= startUs && c.TimestampUs < endUs {
			result = append(result, c)
		}
	}
	return result, nil
}

// GetNear returns, per instant, the candles starting in [instant-buffer, instant+buffer).
func (s *CandleStore) GetNear(ctx context.Context, key storage.DayKey, instantsUs []int64, bufferUs int64) ([][]domain.Candle, error) {
	out := make([][]domain.Candle, len(instantsUs))
	for i, at := range instantsUs {
		rows, err := s.GetRange(ctx, key, at-bufferUs, at+bufferUs)
		if err != nil {
			return nil, err
		}
		out[i] = rows
	}
	return out, nil
}

// Exists reports whether the day has been written.
func (s *CandleStore) Exists(_ context.Context, key storage.DayKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.days[key]
	return ok, nil
}

var _ storage.CandleStore = (*CandleStore)(nil)

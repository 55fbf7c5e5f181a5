package memory

import (
	"context"
	"sort"
	"sync"

	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/storage"
)

// BookFeatureStore is an in-memory implementation of storage.BookFeatureStore.
type BookFeatureStore struct {
	mu   sync.RWMutex
	days map[storage.DayKey][]domain.BookSnapshotFeature
}

// NewBookFeatureStore creates a new in-memory book feature store.
func NewBookFeatureStore() *BookFeatureStore {
	return &BookFeatureStore{
		days: make(map[storage.DayKey][]domain.BookSnapshotFeature),
	}
}

// PutDay writes one day of book features. Returns ErrDuplicateKey if the day exists.
func (s *BookFeatureStore) PutDay(_ context.Context, key storage.DayKey, rows []domain.BookSnapshotFeature) error {
	if err := key.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.days[key]; exists {
		return storage.ErrDuplicateKey
	}
	stored := make([]domain.BookSnapshotFeature, len(rows))
	copy(stored, rows)
	sort.SliceStable(stored, func(i, j int) bool {
		return stored[i].TimestampUs < stored[j].TimestampUs
	})
	s.days[key] = stored
	return nil
}

// GetDay returns the whole day ordered by interval start.
func (s *BookFeatureStore) GetDay(_ context.Context, key storage.DayKey) ([]domain.BookSnapshotFeature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day, ok := s.days[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]domain.BookSnapshotFeature, len(day))
	copy(out, day)
	return out, nil
}

var _ storage.BookFeatureStore = (*BookFeatureStore)(nil)

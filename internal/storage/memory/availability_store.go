package memory

import (
	"context"
	"fmt"
	"sync"

	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/storage"
)

// AvailabilityStore is an in-memory implementation of storage.AvailabilityStore.
type AvailabilityStore struct {
	mu      sync.RWMutex
	reports map[string]*domain.AvailabilityReport // keyed by exchange|day
}

// NewAvailabilityStore creates an empty availability store.
func NewAvailabilityStore() *AvailabilityStore {
	return &AvailabilityStore{reports: make(map[string]*domain.AvailabilityReport)}
}

func reportKey(exchange string, dayStartUs int64) string {
	return fmt.Sprintf("%s|%d", exchange, dayStartUs)
}

// GetReport returns a copy of the availability report for the day.
func (s *AvailabilityStore) GetReport(_ context.Context, exchange string, dayStartUs int64) (*domain.AvailabilityReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := domain.NewAvailabilityReport(exchange, dayStartUs)
	if rep, ok := s.reports[reportKey(exchange, dayStartUs)]; ok {
		for _, p := range rep.Pairs() {
			out.Add(p.InstrumentKey, p.DataType)
		}
	}
	return out, nil
}

// MarkAvailable records that a feed was delivered. Feeds with zero rows are not available.
func (s *AvailabilityStore) MarkAvailable(_ context.Context, exchange string, dayStartUs int64, instrumentKey string, dt domain.DataType, rowCount int64) error {
	if instrumentKey == "" || !dt.IsValid() {
		return storage.ErrInvalidInput
	}
	if rowCount <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := reportKey(exchange, dayStartUs)
	rep, ok := s.reports[k]
	if !ok {
		rep = domain.NewAvailabilityReport(exchange, dayStartUs)
		s.reports[k] = rep
	}
	rep.Add(instrumentKey, dt)
	return nil
}

var _ storage.AvailabilityStore = (*AvailabilityStore)(nil)

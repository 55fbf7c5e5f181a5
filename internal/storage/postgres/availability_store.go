package postgres

import (
	"context"

	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/storage"
)

// AvailabilityStore is a PostgreSQL implementation of storage.AvailabilityStore.
type AvailabilityStore struct {
	pool *Pool
}

// NewAvailabilityStore creates a new PostgreSQL availability store.
func NewAvailabilityStore(pool *Pool) *AvailabilityStore {
	return &AvailabilityStore{pool: pool}
}

// MarkAvailable records that a feed was delivered. Feeds with zero rows are not available.
// Re-marking a pair updates its row count.
func (s *AvailabilityStore) MarkAvailable(ctx context.Context, exchange string, dayStartUs int64, instrumentKey string, dt domain.DataType, rowCount int64) error {
	if instrumentKey == "" || !dt.IsValid() {
		return storage.ErrInvalidInput
	}
	if rowCount <= 0 {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO feed_availability (exchange, day_start_us, instrument_key, data_type, row_count, recorded_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (exchange, day_start_us, instrument_key, data_type) DO UPDATE
		SET row_count = EXCLUDED.row_count,
		    recorded_at = NOW()
	`, exchange, dayStartUs, instrumentKey, string(dt), rowCount)
	return err
}

// GetReport returns the availability report for the day.
func (s *AvailabilityStore) GetReport(ctx context.Context, exchange string, dayStartUs int64) (*domain.AvailabilityReport, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT instrument_key, data_type
		FROM feed_availability
		WHERE exchange = $1 AND day_start_us = $2 AND row_count > 0
	`, exchange, dayStartUs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	report := domain.NewAvailabilityReport(exchange, dayStartUs)
	for rows.Next() {
		var key, dt string
		if err := rows.Scan(&key, &dt); err != nil {
			return nil, err
		}
		report.Add(key, domain.DataType(dt))
	}
	return report, rows.Err()
}

var _ storage.AvailabilityStore = (*AvailabilityStore)(nil)

package files

import (
	"context"
	"math"

	"market-candle-lab/internal/boundary"
	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/objectstore"
	"market-candle-lab/internal/storage"
)

// BookFeatureStore implements storage.BookFeatureStore with one parquet object per day.
type BookFeatureStore struct {
	objects *objectstore.Store
	opts    Options
}

// NewBookFeatureStore creates a new BookFeatureStore.
func NewBookFeatureStore(objects *objectstore.Store, opts Options) *BookFeatureStore {
	return &BookFeatureStore{objects: objects, opts: opts}
}

// Compile-time interface check.
var _ storage.BookFeatureStore = (*BookFeatureStore)(nil)

func bookFeatureObjectKey(key storage.DayKey) string {
	return objectstore.BookFeatureKey(key.Exchange, key.Timeframe, boundary.FormatDate(key.DayStartUs), key.InstrumentKey)
}

// PutDay writes one day of book features. Returns ErrDuplicateKey if the object exists.
func (s *BookFeatureStore) PutDay(ctx context.Context, key storage.DayKey, features []domain.BookSnapshotFeature) error {
	if err := key.Validate(); err != nil {
		return err
	}
	rows := make([]BookFeatureRow, len(features))
	for i := range features {
		rows[i] = toBookFeatureRow(&features[i])
	}
	return putRows(ctx, s.objects, bookFeatureObjectKey(key), rows, bookFeatureRowTs, s.opts)
}

// GetDay returns the whole day ordered by interval start.
func (s *BookFeatureStore) GetDay(ctx context.Context, key storage.DayKey) ([]domain.BookSnapshotFeature, error) {
	return readRange(ctx, s.objects, bookFeatureObjectKey(key), "timestamp", bookFeatureRowTs,
		(*BookFeatureRow).toDomain, math.MinInt64, math.MaxInt64, s.opts)
}

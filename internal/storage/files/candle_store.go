package files

import (
	"context"
	"fmt"

	"market-candle-lab/internal/boundary"
	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/objectstore"
	"market-candle-lab/internal/storage"
)

// CandleStore implements storage.CandleStore with one parquet object per day.
type CandleStore struct {
	objects *objectstore.Store
	opts    Options
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(objects *objectstore.Store, opts Options) *CandleStore {
	return &CandleStore{objects: objects, opts: opts}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

func candleObjectKey(key storage.DayKey) string {
	return objectstore.CandleKey(key.Exchange, key.Timeframe, boundary.FormatDate(key.DayStartUs), key.InstrumentKey)
}

// PutDay writes one day of candles. Returns ErrDuplicateKey if the object exists.
func (s *CandleStore) PutDay(ctx context.Context, key storage.DayKey, candles []domain.Candle) error {
	if err := key.Validate(); err != nil {
		return err
	}
	rows := make([]CandleRow, len(candles))
	for i := range candles {
		if candles[i].Timeframe != key.Timeframe {
			return fmt.Errorf("%w: candle timeframe %s in %s day", storage.ErrInvalidInput, candles[i].Timeframe, key.Timeframe)
		}
		rows[i] = toCandleRow(&candles[i])
	}
	return putRows(ctx, s.objects, candleObjectKey(key), rows, candleRowTs, s.opts)
}

// GetRange returns candles with interval start in [startUs, endUs).
func (s *CandleStore) GetRange(ctx context.Context, key storage.DayKey, startUs, endUs int64) ([]domain.Candle, error) {
	return readRange(ctx, s.objects, candleObjectKey(key), "timestamp", candleRowTs,
		(*CandleRow).toDomain, startUs, endUs, s.opts)
}

// GetNear returns, per instant, candles starting in [instant-buffer, instant+buffer).
func (s *CandleStore) GetNear(ctx context.Context, key storage.DayKey, instantsUs []int64, bufferUs int64) ([][]domain.Candle, error) {
	objKey := candleObjectKey(key)
	r, closeFn, err := openRows[CandleRow](ctx, s.objects, objKey, "timestamp", candleRowTs, s.opts)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	hits, err := r.ReadSparse(instantsUs, bufferUs)
	if err != nil {
		return nil, fmt.Errorf("sparse read %s: %w", objKey, err)
	}
	out := make([][]domain.Candle, len(hits))
	for i, rows := range hits {
		for j := range rows {
			out[i] = append(out[i], rows[j].toDomain())
		}
	}
	return out, nil
}

// Exists reports whether the day object exists.
func (s *CandleStore) Exists(ctx context.Context, key storage.DayKey) (bool, error) {
	return s.objects.Exists(ctx, candleObjectKey(key))
}

// Package lookup answers point-in-time questions over persisted candles.
package lookup

import (
	"context"
	"errors"
	"sort"

	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/storage"
)

// ErrNoCandleData is returned when a lookup is given no candles.
var ErrNoCandleData = errors.New("no candle data available")

// CandleAt returns the candle whose interval starts at or before target.
// candles must be sorted by interval start.
// If every candle starts after target, the first one is returned.
// Returns ErrNoCandleData if the slice is empty.
func CandleAt(target int64, candles []domain.Candle) (*domain.Candle, error) {
	if len(candles) == 0 {
		return nil, ErrNoCandleData
	}
	i := sort.Search(len(candles), func(i int) bool { return candles[i].TimestampUs > target })
	if i == 0 {
		return &candles[0], nil
	}
	return &candles[i-1], nil
}

// CloseAt returns the close of the latest non-empty candle starting at or
// before target. Returns (nil, nil) when no trade happened before target.
// Returns ErrNoCandleData if the slice is empty.
func CloseAt(target int64, candles []domain.Candle) (*float64, error) {
	if len(candles) == 0 {
		return nil, ErrNoCandleData
	}
	i := sort.Search(len(candles), func(i int) bool { return candles[i].TimestampUs > target })
	for i--; i >= 0; i-- {
		if !candles[i].IsEmpty() {
			return &candles[i].Close, nil
		}
	}
	return nil, nil
}

// Point is the lookup result for one requested instant.
type Point struct {
	InstantUs int64
	Candle    *domain.Candle // nil when no candle started within the buffer
	Close     *float64       // last traded close within the buffer, nil if none
}

// Near reads only the candles within bufferUs of each instant from store and
// resolves one Point per instant, in request order.
func Near(ctx context.Context, store storage.CandleStore, key storage.DayKey, instantsUs []int64, bufferUs int64) ([]Point, error) {
	near, err := store.GetNear(ctx, key, instantsUs, bufferUs)
	if err != nil {
		return nil, err
	}

	points := make([]Point, len(instantsUs))
	for i, instant := range instantsUs {
		points[i].InstantUs = instant
		if len(near[i]) == 0 {
			continue
		}
		c, _ := CandleAt(instant, near[i])
		points[i].Candle = c
		points[i].Close, _ = CloseAt(instant, near[i])
	}
	return points, nil
}

package clickhouse_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/storage"
	"market-candle-lab/internal/storage/clickhouse"
)

func hourCandles() []domain.Candle {
	hour := int64(3600) * domain.MicrosPerSecond
	out := make([]domain.Candle, 24)
	for i := range out {
		start := testDay + int64(i)*hour
		out[i] = domain.EmptyCandle("BTC-PERPETUAL", "deribit", domain.Timeframe1h, start, start+200_000)
	}
	out[5].Open, out[5].High, out[5].Low, out[5].Close = 100, 110, 95, 105
	out[5].Volume, out[5].TradeCount, out[5].VWAP = 12, 4, 102
	out[5].Features.Sums.BuyVolume = 6
	out[5].Features.Last.MarkPrice = 104.5
	return out
}

func TestCandleStore_PutAndGetRange(t *testing.T) {
	store := clickhouse.NewCandleStore(newTestConn(t))
	ctx := context.Background()

	_, err := store.GetRange(ctx, hourKey(), testDay, testDay+domain.MicrosPerDay)
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.PutDay(ctx, hourKey(), hourCandles()))

	got, err := store.GetRange(ctx, hourKey(), testDay, testDay+domain.MicrosPerDay)
	require.NoError(t, err)
	require.Len(t, got, 24)
	assert.Equal(t, "BTC-PERPETUAL", got[5].Symbol)
	assert.Equal(t, domain.Timeframe1h, got[5].Timeframe)
	assert.Equal(t, 105.0, got[5].Close)
	assert.Equal(t, int64(4), got[5].TradeCount)
	assert.Equal(t, 6.0, got[5].Features.Sums.BuyVolume)
	assert.Equal(t, 104.5, got[5].Features.Last.MarkPrice)
	assert.True(t, math.IsNaN(got[0].Open))
	assert.Equal(t, 0.0, got[0].Features.Sums.SellVolume)
}

func TestCandleStore_PutDay_DuplicateKey(t *testing.T) {
	store := clickhouse.NewCandleStore(newTestConn(t))
	ctx := context.Background()

	require.NoError(t, store.PutDay(ctx, hourKey(), hourCandles()))
	err := store.PutDay(ctx, hourKey(), hourCandles())
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	wrong := hourKey()
	wrong.Timeframe = domain.Timeframe4h
	err = store.PutDay(ctx, wrong, hourCandles())
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestCandleStore_GetNear(t *testing.T) {
	store := clickhouse.NewCandleStore(newTestConn(t))
	ctx := context.Background()
	require.NoError(t, store.PutDay(ctx, hourKey(), hourCandles()))

	hour := int64(3600) * domain.MicrosPerSecond
	got, err := store.GetNear(ctx, hourKey(), []int64{testDay + 5*hour + 10, testDay + 23*hour}, hour)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Len(t, got[0], 2) // 5h and 6h starts
	assert.Len(t, got[1], 2) // 22h and 23h starts
}

package files

import (
	"context"
	"io"
	"math"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/features"
	"market-candle-lab/internal/objectstore"
	"market-candle-lab/internal/storage"
)

const testDay = int64(1_710_028_800_000_000) // 2024-03-10

func newObjects() *objectstore.Store {
	return objectstore.New(afero.NewMemMapFs(), "/lake")
}

func dayKey(tf domain.Timeframe) storage.DayKey {
	return storage.DayKey{Exchange: "deribit", InstrumentKey: "BTC-PERPETUAL", Timeframe: tf, DayStartUs: testDay}
}

func TestCandleRow_FeatureColumnsFollowRuleTable(t *testing.T) {
	schema := parquet.SchemaOf(new(CandleRow))
	var names []string
	for _, f := range schema.Fields() {
		names = append(names, f.Name())
	}
	// 12 candle columns precede the feature block
	require.Len(t, names, 12+len(features.Fields))
	assert.Equal(t, features.FieldNames(), names[12:])
}

func TestCandleStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	var scanned, skipped int
	store := NewCandleStore(newObjects(), Options{
		RowGroupSize: 100,
		Observer:     func(s, k int) { scanned, skipped = s, k },
	})

	candles := make([]domain.Candle, 1440)
	for i := range candles {
		start := testDay + int64(i)*60*domain.MicrosPerSecond
		candles[i] = domain.EmptyCandle("BTC-PERPETUAL", "deribit", domain.Timeframe1m, start, start+200_000)
	}
	candles[3].Open, candles[3].High, candles[3].Low, candles[3].Close = 10, 12, 9, 11
	candles[3].Volume, candles[3].TradeCount, candles[3].VWAP = 5, 2, 10.5
	candles[3].Features.Last.FundingRate = 0.001

	// persist in reverse order; the writer sorts by timestamp
	reversed := make([]domain.Candle, len(candles))
	for i := range candles {
		reversed[len(candles)-1-i] = candles[i]
	}
	require.NoError(t, store.PutDay(ctx, dayKey(domain.Timeframe1m), reversed))

	got, err := store.GetRange(ctx, dayKey(domain.Timeframe1m), testDay, testDay+domain.MicrosPerDay)
	require.NoError(t, err)
	require.Len(t, got, 1440)
	assert.Equal(t, 11.0, got[3].Close)
	assert.Equal(t, int64(2), got[3].TradeCount)
	assert.Equal(t, 0.001, got[3].Features.Last.FundingRate)
	assert.True(t, math.IsNaN(got[0].Open))
	assert.True(t, math.IsNaN(got[0].Features.Unimplemented.ATMMarkIV))

	hour := int64(3600) * domain.MicrosPerSecond
	got, err = store.GetRange(ctx, dayKey(domain.Timeframe1m), testDay+hour, testDay+2*hour)
	require.NoError(t, err)
	assert.Len(t, got, 60)
	assert.Less(t, scanned, 15)
	assert.Greater(t, skipped, 0)
}

func TestCandleStore_DuplicateAndMissing(t *testing.T) {
	ctx := context.Background()
	store := NewCandleStore(newObjects(), Options{})
	key := dayKey(domain.Timeframe5m)

	_, err := store.GetRange(ctx, key, 0, 1)
	require.ErrorIs(t, err, storage.ErrNotFound)

	c := []domain.Candle{domain.EmptyCandle("BTC-PERPETUAL", "deribit", domain.Timeframe5m, testDay, testDay)}
	require.NoError(t, store.PutDay(ctx, key, c))
	require.ErrorIs(t, store.PutDay(ctx, key, c), storage.ErrDuplicateKey)

	ok, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCandleStore_GetNear(t *testing.T) {
	ctx := context.Background()
	store := NewCandleStore(newObjects(), Options{RowGroupSize: 16})
	key := dayKey(domain.Timeframe1h)

	candles := make([]domain.Candle, 24)
	for i := range candles {
		start := testDay + int64(i)*3600*domain.MicrosPerSecond
		candles[i] = domain.EmptyCandle("BTC-PERPETUAL", "deribit", domain.Timeframe1h, start, start)
	}
	require.NoError(t, store.PutDay(ctx, key, candles))

	hour := int64(3600) * domain.MicrosPerSecond
	hits, err := store.GetNear(ctx, key, []int64{testDay + 12*hour, testDay + 30*hour}, hour/2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Len(t, hits[0], 1)
	assert.Equal(t, testDay+12*hour, hits[0][0].TimestampUs)
	assert.Empty(t, hits[1])
}

func TestBookFeatureStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewBookFeatureStore(newObjects(), Options{})
	key := dayKey(domain.Timeframe15m)

	f := domain.BookSnapshotFeature{
		Symbol: "BTC-PERPETUAL", Exchange: "deribit", Timeframe: domain.Timeframe15m,
		TimestampUs: testDay, Sampled: true, SnapshotTimestampUs: testDay + 5, MidPrice: 100.5,
		BidDistanceBps: [domain.BookDepth]float64{1, 2, 3, 4, 5},
	}
	require.NoError(t, store.PutDay(ctx, key, []domain.BookSnapshotFeature{f}))

	got, err := store.GetDay(ctx, key)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, f.BidDistanceBps, got[0].BidDistanceBps)
	assert.Equal(t, 100.5, got[0].MidPrice)
	assert.True(t, got[0].HasSnapshot())

	empty := key
	empty.Timeframe = domain.Timeframe1h
	require.NoError(t, store.PutDay(ctx, empty, []domain.BookSnapshotFeature{{
		Symbol: "BTC-PERPETUAL", Exchange: "deribit", Timeframe: domain.Timeframe1h, TimestampUs: testDay,
	}}))
	got, err = store.GetDay(ctx, empty)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].HasSnapshot())
}

func TestTickStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewTickStore(newObjects(), Options{RowGroupSize: 10})

	trades := []domain.Trade{
		{ExchangeTimestampUs: testDay + 20, ReceiptTimestampUs: testDay + 25, Price: 101, Quantity: 1, Side: domain.SideSell, ID: "2"},
		{ExchangeTimestampUs: testDay + 10, ReceiptTimestampUs: testDay + 12, Price: 100, Quantity: 2, Side: domain.SideBuy, ID: "1"},
		{ExchangeTimestampUs: testDay - 10, Price: 99, Quantity: 1, ID: "prev-day"},
	}
	require.NoError(t, store.PutTrades(ctx, "deribit", "BTC-PERPETUAL", testDay, trades))

	got, err := store.Trades(ctx, "deribit", "BTC-PERPETUAL", testDay)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, domain.SideBuy, got[0].Side)

	_, err = store.Liquidations(ctx, "deribit", "BTC-PERPETUAL", testDay)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTickStore_StreamBookSnapshots(t *testing.T) {
	ctx := context.Background()
	store := NewTickStore(newObjects(), Options{RowGroupSize: 7})

	nan := math.NaN()
	snaps := make([]domain.BookSnapshot, 50)
	for i := range snaps {
		snaps[i].ExchangeTimestampUs = testDay + int64(i)*domain.MicrosPerSecond
		snaps[i].Bids[0] = domain.BookLevel{Price: 100, Quantity: 1}
		snaps[i].Asks[0] = domain.BookLevel{Price: 101, Quantity: 2}
		for l := 1; l < domain.BookDepth; l++ {
			snaps[i].Bids[l] = domain.BookLevel{Price: nan, Quantity: nan}
			snaps[i].Asks[l] = domain.BookLevel{Price: nan, Quantity: nan}
		}
	}
	require.NoError(t, store.PutBookSnapshots(ctx, "deribit", "BTC-PERPETUAL", testDay, snaps))

	var total int
	err := store.StreamBookSnapshots(ctx, "deribit", "BTC-PERPETUAL", testDay, 8, func(batch []domain.BookSnapshot) error {
		assert.LessOrEqual(t, len(batch), 8)
		for _, s := range batch {
			assert.Equal(t, 100.0, s.Bids[0].Price)
			assert.True(t, math.IsNaN(s.Asks[4].Price))
		}
		total += len(batch)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 50, total)
}

func TestTickStore_FailedWriteLeavesNoObject(t *testing.T) {
	ctx := context.Background()
	objects := newObjects()
	store := NewTickStore(objects, Options{})

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := store.PutTrades(cancelled, "deribit", "BTC-PERPETUAL", testDay, []domain.Trade{{ExchangeTimestampUs: testDay}})
	require.Error(t, err)

	_, err = store.Trades(ctx, "deribit", "BTC-PERPETUAL", testDay)
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, objects.Put(ctx, "raw/deribit/trades/2024-03-10/BTC-PERPETUAL.parquet", func(w io.Writer) error {
		_, err := w.Write([]byte("not parquet"))
		return err
	}))
	_, err = store.Trades(ctx, "deribit", "BTC-PERPETUAL", testDay)
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
}

func TestTickStore_Inventory(t *testing.T) {
	ctx := context.Background()
	store := NewTickStore(newObjects(), Options{RowGroupSize: 10})

	require.NoError(t, store.PutTrades(ctx, "deribit", "ETH-PERPETUAL", testDay, []domain.Trade{
		{ExchangeTimestampUs: testDay + 1, Price: 3000, Quantity: 1, ID: "e1"},
	}))
	require.NoError(t, store.PutTrades(ctx, "deribit", "BTC-PERPETUAL", testDay, []domain.Trade{
		{ExchangeTimestampUs: testDay + 1, Price: 100, Quantity: 1, ID: "b1"},
		{ExchangeTimestampUs: testDay + 2, Price: 101, Quantity: 1, ID: "b2"},
	}))
	require.NoError(t, store.PutDerivativeTickers(ctx, "deribit", "BTC-PERPETUAL", testDay, []domain.DerivativeTicker{
		{ExchangeTimestampUs: testDay + 5, FundingRate: 0.0001},
	}))
	// another day must not show up
	require.NoError(t, store.PutTrades(ctx, "deribit", "BTC-PERPETUAL", testDay+domain.MicrosPerDay, []domain.Trade{
		{ExchangeTimestampUs: testDay + domain.MicrosPerDay + 1, Price: 100, Quantity: 1, ID: "next"},
	}))

	feeds, err := store.Inventory(ctx, "deribit", testDay)
	require.NoError(t, err)
	assert.Equal(t, []Feed{
		{InstrumentKey: "BTC-PERPETUAL", DataType: domain.DataTypeTrades, Rows: 2},
		{InstrumentKey: "ETH-PERPETUAL", DataType: domain.DataTypeTrades, Rows: 1},
		{InstrumentKey: "BTC-PERPETUAL", DataType: domain.DataTypeDerivativeTicker, Rows: 1},
	}, feeds)

	feeds, err = store.Inventory(ctx, "binance", testDay)
	require.NoError(t, err)
	assert.Empty(t, feeds)
}

func TestTickStore_SlashInInstrumentKey(t *testing.T) {
	ctx := context.Background()
	store := NewTickStore(newObjects(), Options{RowGroupSize: 10})

	require.NoError(t, store.PutTrades(ctx, "binance", "BTC/USDT", testDay, []domain.Trade{
		{ExchangeTimestampUs: testDay + 1, Price: 65000, Quantity: 0.5, ID: "s1"},
	}))

	trades, err := store.Trades(ctx, "binance", "BTC/USDT", testDay)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	_, err = store.Trades(ctx, "binance", "USDT", testDay)
	require.ErrorIs(t, err, storage.ErrNotFound)

	feeds, err := store.Inventory(ctx, "binance", testDay)
	require.NoError(t, err)
	assert.Equal(t, []Feed{{InstrumentKey: "BTC/USDT", DataType: domain.DataTypeTrades, Rows: 1}}, feeds)
}

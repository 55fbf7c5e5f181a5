package objectstore

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-candle-lab/internal/domain"
)

func TestStore_PutOpen(t *testing.T) {
	ctx := context.Background()
	s := New(afero.NewMemMapFs(), "/data")
	key := CandleKey("deribit", domain.Timeframe1m, "2024-03-10", "BTC-PERPETUAL")
	assert.Equal(t, "candles/deribit/1m/2024-03-10/BTC-PERPETUAL.parquet", key)

	err := s.Put(ctx, key, func(w io.Writer) error {
		_, err := w.Write([]byte("payload"))
		return err
	})
	require.NoError(t, err)

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	obj, err := s.Open(ctx, key)
	require.NoError(t, err)
	defer obj.Close()
	assert.Equal(t, int64(7), obj.Size())

	buf := make([]byte, 3)
	_, err = obj.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, "oad", string(buf))
}

func TestStore_FailedPutLeavesNothing(t *testing.T) {
	ctx := context.Background()
	s := New(afero.NewMemMapFs(), "/data")
	key := RawKey("deribit", domain.DataTypeTrades, "2024-03-10", "BTC-PERPETUAL")

	boom := errors.New("boom")
	err := s.Put(ctx, key, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := s.List(ctx, "raw")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_OpenMissing(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/data")
	_, err := s.Open(context.Background(), "candles/none.parquet")
	require.ErrorIs(t, err, ErrNotExist)
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	s := New(afero.NewMemMapFs(), "/data")
	for _, inst := range []string{"B", "A"} {
		key := BookFeatureKey("ex", domain.Timeframe5m, "2024-03-10", inst)
		require.NoError(t, s.Put(ctx, key, func(w io.Writer) error { return nil }))
	}

	keys, err := s.List(ctx, "book_snapshot_features/ex")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"book_snapshot_features/ex/5m/2024-03-10/A.parquet",
		"book_snapshot_features/ex/5m/2024-03-10/B.parquet",
	}, keys)
}

func TestKeys_EscapeInstrument(t *testing.T) {
	tests := []struct {
		instrument string
		want       string
	}{
		{"BTC-PERPETUAL", "raw/deribit/trades/2024-03-10/BTC-PERPETUAL.parquet"},
		{"BTC/USDT", "raw/deribit/trades/2024-03-10/BTC%2FUSDT.parquet"},
		{"../../etc/passwd", "raw/deribit/trades/2024-03-10/..%2F..%2Fetc%2Fpasswd.parquet"},
		{"..", "raw/deribit/trades/2024-03-10/%2E%2E.parquet"},
		{"50%", "raw/deribit/trades/2024-03-10/50%25.parquet"},
	}
	for _, tt := range tests {
		t.Run(tt.instrument, func(t *testing.T) {
			key := RawKey("deribit", domain.DataTypeTrades, "2024-03-10", tt.instrument)
			assert.Equal(t, tt.want, key)

			got, err := InstrumentFromKey(key)
			require.NoError(t, err)
			assert.Equal(t, tt.instrument, got)
		})
	}
}

func TestKeys_EscapeExchange(t *testing.T) {
	key := CandleKey("..", domain.Timeframe1m, "2024-03-10", "X")
	assert.Equal(t, "candles/%2E%2E/1m/2024-03-10/X.parquet", key)
}

func TestStore_RejectsKeysOutsideRoot(t *testing.T) {
	ctx := context.Background()
	s := New(afero.NewMemMapFs(), "/data")

	for _, key := range []string{"", "../escape.parquet", "raw/../../escape.parquet", "/abs.parquet", `raw\x.parquet`} {
		err := s.Put(ctx, key, func(w io.Writer) error { return nil })
		assert.ErrorIs(t, err, ErrInvalidKey, key)

		_, err = s.Open(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)

		_, err = s.Exists(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}

	_, err := s.List(ctx, "..")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

package memory

import (
	"context"
	"errors"
	"testing"

	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/storage"
)

const testDay = int64(1_710_028_800_000_000) // 2024-03-10

func testKey() storage.DayKey {
	return storage.DayKey{Exchange: "deribit", InstrumentKey: "BTC-PERPETUAL", Timeframe: domain.Timeframe1m, DayStartUs: testDay}
}

func minuteCandles(n int) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		start := testDay + int64(i)*60*domain.MicrosPerSecond
		out[i] = domain.EmptyCandle("BTC-PERPETUAL", "deribit", domain.Timeframe1m, start, start+200_000)
	}
	return out
}

func TestCandleStore_PutAndGetRange(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	if err := store.PutDay(ctx, testKey(), minuteCandles(10)); err != nil {
		t.Fatalf("PutDay failed: %v", err)
	}

	result, err := store.GetRange(ctx, testKey(), testDay+120*domain.MicrosPerSecond, testDay+300*domain.MicrosPerSecond)
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("Expected 3 candles, got %d", len(result))
	}
	if result[0].TimestampUs != testDay+120*domain.MicrosPerSecond {
		t.Errorf("Expected first candle at minute 2, got %d", result[0].TimestampUs)
	}
}

func TestCandleStore_DuplicateDay(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	if err := store.PutDay(ctx, testKey(), minuteCandles(1)); err != nil {
		t.Fatalf("First put failed: %v", err)
	}
	err := store.PutDay(ctx, testKey(), minuteCandles(1))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestCandleStore_TimeframeMismatch(t *testing.T) {
	store := NewCandleStore()
	key := testKey()
	key.Timeframe = domain.Timeframe5m

	err := store.PutDay(context.Background(), key, minuteCandles(1))
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestCandleStore_MissingDay(t *testing.T) {
	store := NewCandleStore()
	_, err := store.GetRange(context.Background(), testKey(), 0, 1)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCandleStore_GetNear(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()
	if err := store.PutDay(ctx, testKey(), minuteCandles(10)); err != nil {
		t.Fatalf("PutDay failed: %v", err)
	}

	at := []int64{testDay + 5*60*domain.MicrosPerSecond, testDay - 3600*domain.MicrosPerSecond}
	result, err := store.GetNear(ctx, testKey(), at, 60*domain.MicrosPerSecond)
	if err != nil {
		t.Fatalf("GetNear failed: %v", err)
	}
	if len(result[0]) != 2 {
		t.Errorf("Expected minutes 4 and 5, got %d candles", len(result[0]))
	}
	if len(result[1]) != 0 {
		t.Errorf("Expected no candles before the day, got %d", len(result[1]))
	}
}

package clickhouse

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/features"
	"market-candle-lab/internal/storage"
)

// candleColumns lists the candles table columns in insert and select order.
// The feature columns come from the rollup rule table.
var candleColumns = append([]string{
	"exchange", "instrument_key", "timeframe", "day_start",
	"timestamp", "timestamp_out",
	"open", "high", "low", "close", "volume", "trade_count", "vwap",
}, features.FieldNames()...)

// CandleStore implements storage.CandleStore using ClickHouse.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// PutDay writes one day of candles in a single batch. Fails with
// ErrDuplicateKey if any candle of the day already exists.
func (s *CandleStore) PutDay(ctx context.Context, key storage.DayKey, candles []domain.Candle) error {
	if err := key.Validate(); err != nil {
		return err
	}
	for i := range candles {
		if candles[i].Timeframe != key.Timeframe {
			return storage.ErrInvalidInput
		}
	}

	exists, err := s.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO candles ("+strings.Join(candleColumns, ", ")+")")
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for i := range candles {
		c := &candles[i]
		values := make([]any, 0, len(candleColumns))
		values = append(values,
			key.Exchange, key.InstrumentKey, key.Timeframe.String(), key.DayStartUs,
			c.TimestampUs, c.TimestampOutUs,
			c.Open, c.High, c.Low, c.Close, c.Volume, c.TradeCount, c.VWAP,
		)
		for _, f := range features.Fields {
			values = append(values, f.Get(&c.Features))
		}
		if err := batch.Append(values...); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetRange returns candles with interval start in [startUs, endUs), ordered by start.
func (s *CandleStore) GetRange(ctx context.Context, key storage.DayKey, startUs, endUs int64) ([]domain.Candle, error) {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check exists: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: candles %s/%s/%s/%d", storage.ErrNotFound, key.Exchange, key.InstrumentKey, key.Timeframe, key.DayStartUs)
	}

	query := "SELECT " + strings.Join(candleColumns, ", ") + `
		FROM candles
		WHERE exchange = ? AND instrument_key = ? AND timeframe = ? AND day_start = ?
		  AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC`

	rows, err := s.conn.Query(ctx, query,
		key.Exchange, key.InstrumentKey, key.Timeframe.String(), key.DayStartUs, startUs, endUs)
	if err != nil {
		return nil, fmt.Errorf("query candle range: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// GetNear returns, per instant, the candles starting in [instant-buffer, instant+buffer).
// One range query covers all instants; rows are distributed in memory.
func (s *CandleStore) GetNear(ctx context.Context, key storage.DayKey, instantsUs []int64, bufferUs int64) ([][]domain.Candle, error) {
	out := make([][]domain.Candle, len(instantsUs))
	if len(instantsUs) == 0 {
		if _, err := s.GetRange(ctx, key, 0, 0); err != nil {
			return nil, err
		}
		return out, nil
	}

	lo, hi := instantsUs[0], instantsUs[0]
	for _, t := range instantsUs[1:] {
		lo = min(lo, t)
		hi = max(hi, t)
	}
	candles, err := s.GetRange(ctx, key, lo-bufferUs, hi+bufferUs)
	if err != nil {
		return nil, err
	}

	for i, t := range instantsUs {
		from := sort.Search(len(candles), func(j int) bool { return candles[j].TimestampUs >= t-bufferUs })
		to := sort.Search(len(candles), func(j int) bool { return candles[j].TimestampUs >= t+bufferUs })
		if from < to {
			out[i] = append([]domain.Candle(nil), candles[from:to]...)
		}
	}
	return out, nil
}

// Exists reports whether any candle of the day has been written.
func (s *CandleStore) Exists(ctx context.Context, key storage.DayKey) (bool, error) {
	query := `
		SELECT count(*) FROM candles
		WHERE exchange = ? AND instrument_key = ? AND timeframe = ? AND day_start = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, key.Exchange, key.InstrumentKey, key.Timeframe.String(), key.DayStartUs).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanCandles scans multiple rows.
func scanCandles(rows chRows) ([]domain.Candle, error) {
	var candles []domain.Candle

	for rows.Next() {
		var c domain.Candle
		var tf string
		var dayStart int64
		feats := make([]float64, len(features.Fields))

		dest := []interface{}{
			&c.Exchange, &c.Symbol, &tf, &dayStart,
			&c.TimestampUs, &c.TimestampOutUs,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.TradeCount, &c.VWAP,
		}
		for i := range feats {
			dest = append(dest, &feats[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}

		c.Timeframe = domain.Timeframe(tf)
		for i, f := range features.Fields {
			f.Set(&c.Features, feats[i])
		}
		candles = append(candles, c)
	}

	return candles, rows.Err()
}

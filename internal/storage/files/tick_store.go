package files

import (
	"context"
	"fmt"
	"path"

	"market-candle-lab/internal/boundary"
	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/objectstore"
	"market-candle-lab/internal/storage"
)

// TickStore reads and writes raw feed files. It implements storage.TickSource.
type TickStore struct {
	objects *objectstore.Store
	opts    Options
}

// NewTickStore creates a new TickStore.
func NewTickStore(objects *objectstore.Store, opts Options) *TickStore {
	return &TickStore{objects: objects, opts: opts}
}

// Compile-time interface check.
var _ storage.TickSource = (*TickStore)(nil)

func rawObjectKey(exchange, instrumentKey string, dayStartUs int64, dt domain.DataType) string {
	return objectstore.RawKey(exchange, dt, boundary.FormatDate(dayStartUs), instrumentKey)
}

// Trades returns the day's trades.
func (s *TickStore) Trades(ctx context.Context, exchange, instrumentKey string, dayStartUs int64) ([]domain.Trade, error) {
	return readRange(ctx, s.objects, rawObjectKey(exchange, instrumentKey, dayStartUs, domain.DataTypeTrades),
		rawTimestampColumn, tradeRowTs, (*TradeRow).toDomain, dayStartUs, boundary.DayEnd(dayStartUs), s.opts)
}

// Liquidations returns the day's liquidations.
func (s *TickStore) Liquidations(ctx context.Context, exchange, instrumentKey string, dayStartUs int64) ([]domain.Liquidation, error) {
	return readRange(ctx, s.objects, rawObjectKey(exchange, instrumentKey, dayStartUs, domain.DataTypeLiquidations),
		rawTimestampColumn, liquidationRowTs, (*LiquidationRow).toDomain, dayStartUs, boundary.DayEnd(dayStartUs), s.opts)
}

// DerivativeTickers returns the day's ticker updates.
func (s *TickStore) DerivativeTickers(ctx context.Context, exchange, instrumentKey string, dayStartUs int64) ([]domain.DerivativeTicker, error) {
	return readRange(ctx, s.objects, rawObjectKey(exchange, instrumentKey, dayStartUs, domain.DataTypeDerivativeTicker),
		rawTimestampColumn, tickerRowTs, (*TickerRow).toDomain, dayStartUs, boundary.DayEnd(dayStartUs), s.opts)
}

// OptionsChain returns the day's options-chain records.
func (s *TickStore) OptionsChain(ctx context.Context, exchange, instrumentKey string, dayStartUs int64) ([]domain.OptionsChainRecord, error) {
	return readRange(ctx, s.objects, rawObjectKey(exchange, instrumentKey, dayStartUs, domain.DataTypeOptionsChain),
		rawTimestampColumn, optionsRowTs, (*OptionsChainRow).toDomain, dayStartUs, boundary.DayEnd(dayStartUs), s.opts)
}

// StreamBookSnapshots yields the day's snapshots in batches of at most batchSize.
func (s *TickStore) StreamBookSnapshots(ctx context.Context, exchange, instrumentKey string, dayStartUs int64, batchSize int, fn func([]domain.BookSnapshot) error) error {
	key := rawObjectKey(exchange, instrumentKey, dayStartUs, domain.DataTypeBookSnapshot5)
	r, closeFn, err := openRows[BookSnapshotRow](ctx, s.objects, key, rawTimestampColumn, bookRowTs, s.opts)
	if err != nil {
		return err
	}
	defer closeFn()

	err = r.Stream(dayStartUs, boundary.DayEnd(dayStartUs), batchSize, func(rows []BookSnapshotRow) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		snaps := make([]domain.BookSnapshot, len(rows))
		for i := range rows {
			snaps[i] = rows[i].toDomain()
		}
		return fn(snaps)
	})
	if err != nil {
		return fmt.Errorf("stream %s: %w", key, err)
	}
	return nil
}

// PutTrades writes the day's trade file.
func (s *TickStore) PutTrades(ctx context.Context, exchange, instrumentKey string, dayStartUs int64, trades []domain.Trade) error {
	rows := make([]TradeRow, len(trades))
	for i := range trades {
		rows[i] = toTradeRow(&trades[i])
	}
	return putRows(ctx, s.objects, rawObjectKey(exchange, instrumentKey, dayStartUs, domain.DataTypeTrades), rows, tradeRowTs, s.opts)
}

// PutLiquidations writes the day's liquidation file.
func (s *TickStore) PutLiquidations(ctx context.Context, exchange, instrumentKey string, dayStartUs int64, liqs []domain.Liquidation) error {
	rows := make([]LiquidationRow, len(liqs))
	for i := range liqs {
		rows[i] = toLiquidationRow(&liqs[i])
	}
	return putRows(ctx, s.objects, rawObjectKey(exchange, instrumentKey, dayStartUs, domain.DataTypeLiquidations), rows, liquidationRowTs, s.opts)
}

// PutDerivativeTickers writes the day's ticker file.
func (s *TickStore) PutDerivativeTickers(ctx context.Context, exchange, instrumentKey string, dayStartUs int64, tickers []domain.DerivativeTicker) error {
	rows := make([]TickerRow, len(tickers))
	for i := range tickers {
		rows[i] = toTickerRow(&tickers[i])
	}
	return putRows(ctx, s.objects, rawObjectKey(exchange, instrumentKey, dayStartUs, domain.DataTypeDerivativeTicker), rows, tickerRowTs, s.opts)
}

// PutOptionsChain writes the day's options-chain file.
func (s *TickStore) PutOptionsChain(ctx context.Context, exchange, instrumentKey string, dayStartUs int64, recs []domain.OptionsChainRecord) error {
	rows := make([]OptionsChainRow, len(recs))
	for i := range recs {
		rows[i] = toOptionsChainRow(&recs[i])
	}
	return putRows(ctx, s.objects, rawObjectKey(exchange, instrumentKey, dayStartUs, domain.DataTypeOptionsChain), rows, optionsRowTs, s.opts)
}

// PutBookSnapshots writes the day's book snapshot file.
func (s *TickStore) PutBookSnapshots(ctx context.Context, exchange, instrumentKey string, dayStartUs int64, snaps []domain.BookSnapshot) error {
	rows := make([]BookSnapshotRow, len(snaps))
	for i := range snaps {
		rows[i] = toBookSnapshotRow(&snaps[i])
	}
	return putRows(ctx, s.objects, rawObjectKey(exchange, instrumentKey, dayStartUs, domain.DataTypeBookSnapshot5), rows, bookRowTs, s.opts)
}

// Feed is one raw file found by Inventory.
type Feed struct {
	InstrumentKey string
	DataType      domain.DataType
	Rows          int64
}

// Inventory lists every raw file delivered for the day, ordered by data type
// then instrument, with its row count taken from the parquet footer.
func (s *TickStore) Inventory(ctx context.Context, exchange string, dayStartUs int64) ([]Feed, error) {
	date := boundary.FormatDate(dayStartUs)
	var feeds []Feed
	for _, dt := range domain.AllDataTypes {
		prefix := path.Dir(objectstore.RawKey(exchange, dt, date, "x"))
		keys, err := s.objects.List(ctx, prefix)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			instrument, err := objectstore.InstrumentFromKey(key)
			if err != nil {
				return nil, err
			}
			n, err := s.countRows(ctx, key, dt)
			if err != nil {
				return nil, err
			}
			feeds = append(feeds, Feed{InstrumentKey: instrument, DataType: dt, Rows: n})
		}
	}
	return feeds, nil
}

func (s *TickStore) countRows(ctx context.Context, key string, dt domain.DataType) (int64, error) {
	switch dt {
	case domain.DataTypeTrades:
		return numRows(ctx, s.objects, key, tradeRowTs, s.opts)
	case domain.DataTypeLiquidations:
		return numRows(ctx, s.objects, key, liquidationRowTs, s.opts)
	case domain.DataTypeDerivativeTicker:
		return numRows(ctx, s.objects, key, tickerRowTs, s.opts)
	case domain.DataTypeOptionsChain:
		return numRows(ctx, s.objects, key, optionsRowTs, s.opts)
	case domain.DataTypeBookSnapshot5:
		return numRows(ctx, s.objects, key, bookRowTs, s.opts)
	}
	return 0, fmt.Errorf("%w: data type %q", storage.ErrInvalidInput, dt)
}

func numRows[T any](ctx context.Context, objects *objectstore.Store, key string, ts func(*T) int64, opts Options) (int64, error) {
	r, closeFn, err := openRows[T](ctx, objects, key, rawTimestampColumn, ts, opts)
	if err != nil {
		return 0, err
	}
	defer closeFn()
	return r.NumRows(), nil
}

package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/storage"
)

// TickSource is an in-memory implementation of storage.TickSource.
// Feeds that were never added return storage.ErrNotFound.
type TickSource struct {
	mu           sync.RWMutex
	trades       map[string][]domain.Trade
	liquidations map[string][]domain.Liquidation
	tickers      map[string][]domain.DerivativeTicker
	options      map[string][]domain.OptionsChainRecord
	books        map[string][]domain.BookSnapshot
	failures     map[string]error
}

// NewTickSource creates an empty tick source.
func NewTickSource() *TickSource {
	return &TickSource{
		trades:       make(map[string][]domain.Trade),
		liquidations: make(map[string][]domain.Liquidation),
		tickers:      make(map[string][]domain.DerivativeTicker),
		options:      make(map[string][]domain.OptionsChainRecord),
		books:        make(map[string][]domain.BookSnapshot),
		failures:     make(map[string]error),
	}
}

// feedKey generates a unique key for one feed of one instrument-day.
func feedKey(exchange, instrumentKey string, dayStartUs int64, dt domain.DataType) string {
	return fmt.Sprintf("%s|%s|%d|%s", exchange, instrumentKey, dayStartUs, dt)
}

// AddTrades appends trades to the feed.
func (s *TickSource) AddTrades(exchange, instrumentKey string, dayStartUs int64, trades ...domain.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := feedKey(exchange, instrumentKey, dayStartUs, domain.DataTypeTrades)
	s.trades[k] = append(s.trades[k], trades...)
}

// AddLiquidations appends liquidations to the feed.
func (s *TickSource) AddLiquidations(exchange, instrumentKey string, dayStartUs int64, liqs ...domain.Liquidation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := feedKey(exchange, instrumentKey, dayStartUs, domain.DataTypeLiquidations)
	s.liquidations[k] = append(s.liquidations[k], liqs...)
}

// AddTickers appends derivative ticker updates to the feed.
func (s *TickSource) AddTickers(exchange, instrumentKey string, dayStartUs int64, tickers ...domain.DerivativeTicker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := feedKey(exchange, instrumentKey, dayStartUs, domain.DataTypeDerivativeTicker)
	s.tickers[k] = append(s.tickers[k], tickers...)
}

// AddOptionsChain appends options-chain records to the feed.
func (s *TickSource) AddOptionsChain(exchange, instrumentKey string, dayStartUs int64, recs ...domain.OptionsChainRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := feedKey(exchange, instrumentKey, dayStartUs, domain.DataTypeOptionsChain)
	s.options[k] = append(s.options[k], recs...)
}

// AddBookSnapshots appends book snapshots to the feed.
func (s *TickSource) AddBookSnapshots(exchange, instrumentKey string, dayStartUs int64, snaps ...domain.BookSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := feedKey(exchange, instrumentKey, dayStartUs, domain.DataTypeBookSnapshot5)
	s.books[k] = append(s.books[k], snaps...)
}

// FailFeed makes every read of the feed return err.
func (s *TickSource) FailFeed(exchange, instrumentKey string, dayStartUs int64, dt domain.DataType, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[feedKey(exchange, instrumentKey, dayStartUs, dt)] = err
}

func (s *TickSource) failure(k string) error {
	return s.failures[k]
}

// Trades returns the day's trades sorted by exchange timestamp.
func (s *TickSource) Trades(_ context.Context, exchange, instrumentKey string, dayStartUs int64) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k := feedKey(exchange, instrumentKey, dayStartUs, domain.DataTypeTrades)
	if err := s.failure(k); err != nil {
		return nil, err
	}
	rows, ok := s.trades[k]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := append([]domain.Trade(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExchangeTimestampUs < out[j].ExchangeTimestampUs })
	return out, nil
}

// Liquidations returns the day's liquidations sorted by exchange timestamp.
func (s *TickSource) Liquidations(_ context.Context, exchange, instrumentKey string, dayStartUs int64) ([]domain.Liquidation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k := feedKey(exchange, instrumentKey, dayStartUs, domain.DataTypeLiquidations)
	if err := s.failure(k); err != nil {
		return nil, err
	}
	rows, ok := s.liquidations[k]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := append([]domain.Liquidation(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExchangeTimestampUs < out[j].ExchangeTimestampUs })
	return out, nil
}

// DerivativeTickers returns the day's ticker updates sorted by exchange timestamp.
func (s *TickSource) DerivativeTickers(_ context.Context, exchange, instrumentKey string, dayStartUs int64) ([]domain.DerivativeTicker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k := feedKey(exchange, instrumentKey, dayStartUs, domain.DataTypeDerivativeTicker)
	if err := s.failure(k); err != nil {
		return nil, err
	}
	rows, ok := s.tickers[k]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := append([]domain.DerivativeTicker(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExchangeTimestampUs < out[j].ExchangeTimestampUs })
	return out, nil
}

// OptionsChain returns the day's options-chain records sorted by exchange timestamp.
func (s *TickSource) OptionsChain(_ context.Context, exchange, instrumentKey string, dayStartUs int64) ([]domain.OptionsChainRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k := feedKey(exchange, instrumentKey, dayStartUs, domain.DataTypeOptionsChain)
	if err := s.failure(k); err != nil {
		return nil, err
	}
	rows, ok := s.options[k]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := append([]domain.OptionsChainRecord(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExchangeTimestampUs < out[j].ExchangeTimestampUs })
	return out, nil
}

// StreamBookSnapshots yields the day's snapshots in batches of at most batchSize.
func (s *TickSource) StreamBookSnapshots(ctx context.Context, exchange, instrumentKey string, dayStartUs int64, batchSize int, fn func([]domain.BookSnapshot) error) error {
	s.mu.RLock()
	k := feedKey(exchange, instrumentKey, dayStartUs, domain.DataTypeBookSnapshot5)
	if err := s.failure(k); err != nil {
		s.mu.RUnlock()
		return err
	}
	rows, ok := s.books[k]
	out := append([]domain.BookSnapshot(nil), rows...)
	s.mu.RUnlock()

	if !ok {
		return storage.ErrNotFound
	}
	if batchSize <= 0 {
		batchSize = len(out)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExchangeTimestampUs < out[j].ExchangeTimestampUs })
	for start := 0; start < len(out); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batchSize, len(out))
		if err := fn(out[start:end]); err != nil {
			return err
		}
	}
	return nil
}

var _ storage.TickSource = (*TickSource)(nil)

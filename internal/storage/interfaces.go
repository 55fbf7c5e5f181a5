package storage

import (
	"context"

	"market-candle-lab/internal/domain"
)

// DayKey identifies one persisted day of one instrument at one timeframe.
type DayKey struct {
	Exchange      string
	InstrumentKey string
	Timeframe     domain.Timeframe
	DayStartUs    int64
}

// Validate checks the key is complete.
func (k DayKey) Validate() error {
	if k.Exchange == "" || k.InstrumentKey == "" || !k.Timeframe.IsValid() || k.DayStartUs%domain.MicrosPerDay != 0 {
		return ErrInvalidInput
	}
	return nil
}

// TickSource provides raw tick records for one (exchange, instrument, day).
// A feed that was never delivered returns ErrNotFound. Records are returned
// sorted by exchange timestamp.
type TickSource interface {
	// Trades returns the day's trades.
	Trades(ctx context.Context, exchange, instrumentKey string, dayStartUs int64) ([]domain.Trade, error)

	// Liquidations returns the day's liquidations.
	Liquidations(ctx context.Context, exchange, instrumentKey string, dayStartUs int64) ([]domain.Liquidation, error)

	// DerivativeTickers returns the day's derivative ticker updates.
	DerivativeTickers(ctx context.Context, exchange, instrumentKey string, dayStartUs int64) ([]domain.DerivativeTicker, error)

	// OptionsChain returns the day's options-chain records.
	OptionsChain(ctx context.Context, exchange, instrumentKey string, dayStartUs int64) ([]domain.OptionsChainRecord, error)

	// StreamBookSnapshots yields the day's book snapshots in bounded batches.
	StreamBookSnapshots(ctx context.Context, exchange, instrumentKey string, dayStartUs int64, batchSize int, fn func([]domain.BookSnapshot) error) error
}

// CandleStore persists candle days. A day is written once, all-or-nothing.
type CandleStore interface {
	// PutDay writes one day of candles. Returns ErrDuplicateKey if the day exists.
	PutDay(ctx context.Context, key DayKey, candles []domain.Candle) error

	// GetRange returns candles with interval start in [startUs, endUs), ordered by start.
	// Returns ErrNotFound if the day was never written.
	GetRange(ctx context.Context, key DayKey, startUs, endUs int64) ([]domain.Candle, error)

	// GetNear returns, per instant, the candles whose interval start lies in
	// [instant-buffer, instant+buffer). Returns ErrNotFound if the day was never written.
	GetNear(ctx context.Context, key DayKey, instantsUs []int64, bufferUs int64) ([][]domain.Candle, error)

	// Exists reports whether the day has been written.
	Exists(ctx context.Context, key DayKey) (bool, error)
}

// BookFeatureStore persists sampled book-feature days. A day is written once, all-or-nothing.
type BookFeatureStore interface {
	// PutDay writes one day of book features. Returns ErrDuplicateKey if the day exists.
	PutDay(ctx context.Context, key DayKey, rows []domain.BookSnapshotFeature) error

	// GetDay returns the whole day ordered by interval start. Returns ErrNotFound if absent.
	GetDay(ctx context.Context, key DayKey) ([]domain.BookSnapshotFeature, error)
}

// InstrumentRegistry provides instrument metadata.
type InstrumentRegistry interface {
	// ListInstruments returns the instruments listed on exchange for the day, ordered by key.
	ListInstruments(ctx context.Context, exchange string, dayStartUs int64) ([]domain.Instrument, error)

	// Upsert adds or replaces instrument metadata valid from dayStartUs.
	Upsert(ctx context.Context, dayStartUs int64, instruments []domain.Instrument) error
}

// AvailabilityStore records which raw feeds were delivered for a day.
type AvailabilityStore interface {
	// GetReport returns the availability report for the day. An unknown day yields an empty report.
	GetReport(ctx context.Context, exchange string, dayStartUs int64) (*domain.AvailabilityReport, error)

	// MarkAvailable records that a feed was delivered with rowCount rows.
	MarkAvailable(ctx context.Context, exchange string, dayStartUs int64, instrumentKey string, dt domain.DataType, rowCount int64) error
}

// RunLedger records the outcome of every instrument-day unit.
type RunLedger interface {
	// RecordUnit inserts or replaces the unit record keyed by (RunID, UnitID).
	RecordUnit(ctx context.Context, rec *domain.UnitRecord) error

	// ListRun returns every unit record of a run ordered by date then instrument.
	ListRun(ctx context.Context, runID string) ([]*domain.UnitRecord, error)

	// LastSucceeded reports whether any run has completed the unit successfully.
	LastSucceeded(ctx context.Context, unitID string) (bool, error)
}

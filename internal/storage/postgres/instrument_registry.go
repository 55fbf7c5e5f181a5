package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/storage"
)

// InstrumentRegistry is a PostgreSQL implementation of storage.InstrumentRegistry.
type InstrumentRegistry struct {
	pool *Pool
}

// NewInstrumentRegistry creates a new PostgreSQL instrument registry.
func NewInstrumentRegistry(pool *Pool) *InstrumentRegistry {
	return &InstrumentRegistry{pool: pool}
}

// Upsert adds or replaces instrument metadata valid from dayStartUs.
// The batch is applied in one transaction.
func (r *InstrumentRegistry) Upsert(ctx context.Context, dayStartUs int64, instruments []domain.Instrument) error {
	for _, inst := range instruments {
		if inst.Key == "" || inst.Venue == "" || !inst.Type.IsValid() {
			return storage.ErrInvalidInput
		}
	}
	if len(instruments) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, inst := range instruments {
		batch.Queue(`
			INSERT INTO instruments (venue, key, type, base_asset, quote_asset, underlying, listed_from_us, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			ON CONFLICT (venue, key) DO UPDATE
			SET type = EXCLUDED.type,
			    base_asset = EXCLUDED.base_asset,
			    quote_asset = EXCLUDED.quote_asset,
			    underlying = EXCLUDED.underlying,
			    listed_from_us = EXCLUDED.listed_from_us,
			    updated_at = NOW()
		`, inst.Venue, inst.Key, string(inst.Type), inst.BaseAsset, inst.QuoteAsset, inst.Underlying, dayStartUs)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListInstruments returns the instruments listed on exchange for the day, ordered by key.
func (r *InstrumentRegistry) ListInstruments(ctx context.Context, exchange string, dayStartUs int64) ([]domain.Instrument, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT venue, key, type, base_asset, quote_asset, underlying
		FROM instruments
		WHERE venue = $1 AND listed_from_us <= $2
		ORDER BY key
	`, exchange, dayStartUs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Instrument
	for rows.Next() {
		var inst domain.Instrument
		var typ string
		if err := rows.Scan(&inst.Venue, &inst.Key, &typ, &inst.BaseAsset, &inst.QuoteAsset, &inst.Underlying); err != nil {
			return nil, err
		}
		inst.Type = domain.InstrumentType(typ)
		out = append(out, inst)
	}
	return out, rows.Err()
}

var _ storage.InstrumentRegistry = (*InstrumentRegistry)(nil)

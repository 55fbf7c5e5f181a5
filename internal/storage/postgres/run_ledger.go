package postgres

import (
	"context"
	"time"

	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/storage"
)

// RunLedger is a PostgreSQL implementation of storage.RunLedger.
// Counts are stored as JSONB maps keyed by timeframe.
type RunLedger struct {
	pool *Pool
}

// NewRunLedger creates a new PostgreSQL run ledger.
func NewRunLedger(pool *Pool) *RunLedger {
	return &RunLedger{pool: pool}
}

// RecordUnit inserts or replaces the unit record.
func (l *RunLedger) RecordUnit(ctx context.Context, rec *domain.UnitRecord) error {
	if rec == nil || rec.RunID == "" || rec.UnitID == "" {
		return storage.ErrInvalidInput
	}

	var finished *time.Time
	if !rec.FinishedAt.IsZero() {
		finished = &rec.FinishedAt
	}

	_, err := l.pool.Exec(ctx, `
		INSERT INTO unit_runs (
			run_id, unit_id, exchange, date, instrument_key, status,
			candle_counts, snapshot_counts, missing_inputs, errors,
			started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (run_id, unit_id) DO UPDATE
		SET status = EXCLUDED.status,
		    candle_counts = EXCLUDED.candle_counts,
		    snapshot_counts = EXCLUDED.snapshot_counts,
		    missing_inputs = EXCLUDED.missing_inputs,
		    errors = EXCLUDED.errors,
		    finished_at = EXCLUDED.finished_at
	`,
		rec.RunID, rec.UnitID, rec.Exchange, rec.Date, rec.InstrumentKey, string(rec.Status),
		nonNilCounts(rec.CandleCounts), nonNilCounts(rec.SnapshotCounts),
		nonNilStrings(rec.MissingInputs), nonNilStrings(rec.Errors),
		rec.StartedAt, finished,
	)
	return err
}

// ListRun returns every unit record of a run ordered by date then instrument.
func (l *RunLedger) ListRun(ctx context.Context, runID string) ([]*domain.UnitRecord, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT run_id, unit_id, exchange, date, instrument_key, status,
		       candle_counts, snapshot_counts, missing_inputs, errors,
		       started_at, finished_at
		FROM unit_runs
		WHERE run_id = $1
		ORDER BY date, instrument_key
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.UnitRecord
	for rows.Next() {
		var rec domain.UnitRecord
		var status string
		var finished *time.Time
		if err := rows.Scan(
			&rec.RunID, &rec.UnitID, &rec.Exchange, &rec.Date, &rec.InstrumentKey, &status,
			&rec.CandleCounts, &rec.SnapshotCounts, &rec.MissingInputs, &rec.Errors,
			&rec.StartedAt, &finished,
		); err != nil {
			return nil, err
		}
		rec.Status = domain.UnitStatus(status)
		if finished != nil {
			rec.FinishedAt = *finished
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// LastSucceeded reports whether any run has completed the unit successfully.
func (l *RunLedger) LastSucceeded(ctx context.Context, unitID string) (bool, error) {
	var exists bool
	err := l.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM unit_runs WHERE unit_id = $1 AND status = $2)
	`, unitID, string(domain.UnitSucceeded)).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func nonNilCounts(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ storage.RunLedger = (*RunLedger)(nil)

package memory

import (
	"context"
	"sort"
	"sync"

	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/storage"
)

// RunLedger is an in-memory implementation of storage.RunLedger.
type RunLedger struct {
	mu      sync.RWMutex
	records map[string]*domain.UnitRecord // keyed by run_id|unit_id
}

// NewRunLedger creates an empty ledger.
func NewRunLedger() *RunLedger {
	return &RunLedger{records: make(map[string]*domain.UnitRecord)}
}

// RecordUnit inserts or replaces the unit record.
func (l *RunLedger) RecordUnit(_ context.Context, rec *domain.UnitRecord) error {
	if rec == nil || rec.RunID == "" || rec.UnitID == "" {
		return storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[rec.RunID+"|"+rec.UnitID] = cloneRecord(rec)
	return nil
}

// ListRun returns every unit record of a run ordered by date then instrument.
func (l *RunLedger) ListRun(_ context.Context, runID string) ([]*domain.UnitRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*domain.UnitRecord
	for _, rec := range l.records {
		if rec.RunID == runID {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].InstrumentKey < out[j].InstrumentKey
	})
	return out, nil
}

// LastSucceeded reports whether any run has completed the unit successfully.
func (l *RunLedger) LastSucceeded(_ context.Context, unitID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, rec := range l.records {
		if rec.UnitID == unitID && rec.Status == domain.UnitSucceeded {
			return true, nil
		}
	}
	return false, nil
}

func cloneRecord(rec *domain.UnitRecord) *domain.UnitRecord {
	c := *rec
	c.CandleCounts = cloneCounts(rec.CandleCounts)
	c.SnapshotCounts = cloneCounts(rec.SnapshotCounts)
	c.MissingInputs = append([]string(nil), rec.MissingInputs...)
	c.Errors = append([]string(nil), rec.Errors...)
	return &c
}

func cloneCounts(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var _ storage.RunLedger = (*RunLedger)(nil)

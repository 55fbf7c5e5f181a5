package reporting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/storage"
)

// Generator produces run reports from the run ledger.
type Generator struct {
	ledger storage.RunLedger
	now    func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(ledger storage.RunLedger) *Generator {
	return &Generator{
		ledger: ledger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the report for runID. Returns storage.ErrNotFound when the
// ledger has no records for the run.
func (g *Generator) Generate(ctx context.Context, runID string) (*Report, error) {
	records, err := g.ledger.ListRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, storage.ErrNotFound)
	}
	return Build(runID, records, g.now()), nil
}

// Build assembles a report from ledger records.
func Build(runID string, records []*domain.UnitRecord, generatedAt time.Time) *Report {
	sorted := append([]*domain.UnitRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Date != sorted[j].Date {
			return sorted[i].Date < sorted[j].Date
		}
		return sorted[i].InstrumentKey < sorted[j].InstrumentKey
	})

	r := &Report{GeneratedAt: generatedAt, RunID: runID}
	missing := make(map[string]int)
	for _, rec := range sorted {
		r.Exchange = rec.Exchange
		r.Summary.TotalUnits++
		switch rec.Status {
		case domain.UnitSucceeded:
			r.Summary.Succeeded++
		case domain.UnitFailed:
			r.Summary.Failed++
		case domain.UnitSkipped:
			r.Summary.Skipped++
		}
		if r.Summary.DateStart == "" || rec.Date < r.Summary.DateStart {
			r.Summary.DateStart = rec.Date
		}
		if rec.Date > r.Summary.DateEnd {
			r.Summary.DateEnd = rec.Date
		}
		for _, n := range rec.CandleCounts {
			r.Summary.CandlesTotal += n
		}
		for _, n := range rec.SnapshotCounts {
			r.Summary.BookRows += n
		}
		for _, dt := range rec.MissingInputs {
			missing[dt]++
		}

		var took time.Duration
		if !rec.FinishedAt.IsZero() {
			took = rec.FinishedAt.Sub(rec.StartedAt)
		}
		r.Units = append(r.Units, UnitRow{
			Date:           rec.Date,
			InstrumentKey:  rec.InstrumentKey,
			Status:         string(rec.Status),
			CandleCounts:   formatCounts(rec.CandleCounts),
			SnapshotCounts: formatCounts(rec.SnapshotCounts),
			MissingInputs:  strings.Join(rec.MissingInputs, ","),
			Duration:       took,
		})

		if rec.Status == domain.UnitSucceeded {
			continue
		}
		for _, msg := range rec.Errors {
			r.Issues = append(r.Issues, IssueRow{
				Date:          rec.Date,
				InstrumentKey: rec.InstrumentKey,
				Status:        string(rec.Status),
				Message:       msg,
			})
		}
	}

	for dt, n := range missing {
		r.MissingInputs = append(r.MissingInputs, MissingInputRow{DataType: dt, Units: n})
	}
	sort.Slice(r.MissingInputs, func(i, j int) bool { return r.MissingInputs[i].DataType < r.MissingInputs[j].DataType })
	return r
}

// formatCounts renders counts in ascending timeframe order; unknown keys go last.
func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return ""
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		si, sj := domain.Timeframe(keys[i]).Seconds(), domain.Timeframe(keys[j]).Seconds()
		if si == 0 || sj == 0 {
			if si == sj {
				return keys[i] < keys[j]
			}
			return sj == 0
		}
		return si < sj
	})

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	return strings.Join(parts, " ")
}

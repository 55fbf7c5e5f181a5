// Package orchestrator runs the candle pipeline over a date range.
// For each day: gate instruments by underlying group, then per valid
// instrument build base candles, roll them up, and sample the book in parallel.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"market-candle-lab/internal/booksample"
	"market-candle-lab/internal/boundary"
	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/idhash"
	"market-candle-lab/internal/logger"
	"market-candle-lab/internal/normalization"
	"market-candle-lab/internal/notify"
	"market-candle-lab/internal/observability"
	"market-candle-lab/internal/rollup"
	"market-candle-lab/internal/storage"
	"market-candle-lab/internal/validation"
)

// Orchestrator coordinates the pipeline execution.
// Flow: validation → base candles → rollup, with book sampling beside the candle path.
type Orchestrator struct {
	exchange  string
	gate      *validation.Gate
	base      *normalization.Runner
	rollup    *rollup.Aggregator
	books     *booksample.Sampler
	ledger    storage.RunLedger
	publisher notify.Publisher

	maxDays       int
	maxUnits      int
	skipCompleted bool

	log     *logger.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// Options for creating Orchestrator.
type Options struct {
	Exchange string

	// Required stages
	Gate   *validation.Gate
	Base   *normalization.Runner
	Ledger storage.RunLedger

	// Optional stages: nil disables rollup or book sampling
	Rollup *rollup.Aggregator
	Books  *booksample.Sampler

	Publisher notify.Publisher // default notify.Nop

	MaxConcurrentDays  int
	MaxConcurrentUnits int
	SkipCompleted      bool // skip units that succeeded in an earlier run

	Logger  *logger.Logger
	Metrics *observability.Metrics
	Now     func() time.Time // default time.Now
}

// New validates opts and creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Exchange == "":
		return nil, errors.New("orchestrator: exchange is required")
	case opts.Gate == nil || opts.Base == nil || opts.Ledger == nil:
		return nil, errors.New("orchestrator: gate, base runner and ledger are required")
	case opts.MaxConcurrentDays <= 0 || opts.MaxConcurrentUnits <= 0:
		return nil, fmt.Errorf("orchestrator: concurrency limits must be > 0 (days=%d, units=%d)",
			opts.MaxConcurrentDays, opts.MaxConcurrentUnits)
	}

	publisher := opts.Publisher
	if publisher == nil {
		publisher = notify.Nop{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Orchestrator{
		exchange:      opts.Exchange,
		gate:          opts.Gate,
		base:          opts.Base,
		rollup:        opts.Rollup,
		books:         opts.Books,
		ledger:        opts.Ledger,
		publisher:     publisher,
		maxDays:       opts.MaxConcurrentDays,
		maxUnits:      opts.MaxConcurrentUnits,
		skipCompleted: opts.SkipCompleted,
		log:           log.Named("orchestrator"),
		metrics:       opts.Metrics,
		now:           now,
	}, nil
}

// SkippedGroup describes an underlying group the gate rejected.
type SkippedGroup struct {
	GroupID    string
	Underlying string
	Members    []string
	Missing    []string // "instrument/data_type"
}

// DayResult contains the outcome of one day.
type DayResult struct {
	Date          string
	Units         []*domain.UnitRecord // ordered by instrument key
	SkippedGroups []SkippedGroup
}

// RunResult contains results from a RunRange execution.
type RunResult struct {
	RunID     string
	Days      []*DayResult // ordered by date
	Succeeded int
	Failed    int
	Skipped   int
	Errors    []string // day-level failures (gate could not be evaluated)
}

// RunRange processes every day in [fromDayUs, toDayUs], both UTC midnights.
// A day whose gate cannot be evaluated is reported in Errors and does not stop
// the other days. Only cancellation aborts the run.
func (o *Orchestrator) RunRange(ctx context.Context, fromDayUs, toDayUs int64) (*RunResult, error) {
	if fromDayUs%domain.MicrosPerDay != 0 || toDayUs%domain.MicrosPerDay != 0 {
		return nil, fmt.Errorf("%w: range bounds must be UTC midnights", boundary.ErrUnalignedDay)
	}
	if toDayUs < fromDayUs {
		return nil, fmt.Errorf("orchestrator: empty range %s..%s", boundary.FormatDate(fromDayUs), boundary.FormatDate(toDayUs))
	}

	runID := uuid.NewString()
	log := o.log.With(zap.String("run_id", runID), zap.String("exchange", o.exchange))
	log.Info("run started",
		zap.String("from", boundary.FormatDate(fromDayUs)),
		zap.String("to", boundary.FormatDate(toDayUs)),
	)

	var days []int64
	for d := fromDayUs; d <= toDayUs; d += domain.MicrosPerDay {
		days = append(days, d)
	}
	dayResults := make([]*DayResult, len(days))
	dayErrs := make([]error, len(days))

	g := new(errgroup.Group)
	g.SetLimit(o.maxDays)
	for i, day := range days {
		g.Go(func() error {
			dayResults[i], dayErrs[i] = o.RunDay(ctx, runID, day)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &RunResult{RunID: runID}
	for i, dr := range dayResults {
		if dayErrs[i] != nil {
			msg := fmt.Sprintf("%s: %v", boundary.FormatDate(days[i]), dayErrs[i])
			res.Errors = append(res.Errors, msg)
			log.Error("day failed", zap.String("date", boundary.FormatDate(days[i])), zap.Error(dayErrs[i]))
			continue
		}
		res.Days = append(res.Days, dr)
		for _, u := range dr.Units {
			switch u.Status {
			case domain.UnitSucceeded:
				res.Succeeded++
			case domain.UnitFailed:
				res.Failed++
			case domain.UnitSkipped:
				res.Skipped++
			}
		}
	}

	if res.Failed == 0 && len(res.Errors) == 0 && o.metrics != nil {
		o.metrics.LastSuccessfulRun.SetToCurrentTime()
	}
	log.Info("run finished",
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
		zap.Int("day_errors", len(res.Errors)),
	)
	return res, nil
}

// RunDay gates the day's instruments and processes each valid one as an
// independent unit. Unit failures are recorded in the ledger and returned in
// the result; an error is returned only when the gate cannot be evaluated.
func (o *Orchestrator) RunDay(ctx context.Context, runID string, dayStartUs int64) (*DayResult, error) {
	date := boundary.FormatDate(dayStartUs)
	gate, err := o.gate.Check(ctx, o.exchange, dayStartUs)
	if err != nil {
		return nil, fmt.Errorf("gate: %w", err)
	}

	res := &DayResult{Date: date}
	skippedReason := make(map[string]string)
	for _, g := range gate.Groups {
		if g.Valid {
			continue
		}
		sg := SkippedGroup{
			GroupID:    idhash.ComputeGroupID(o.exchange, g.UnderlyingKey, date),
			Underlying: g.UnderlyingKey,
			Members:    g.Members,
		}
		for _, p := range g.Missing {
			sg.Missing = append(sg.Missing, p.InstrumentKey+"/"+string(p.DataType))
		}
		res.SkippedGroups = append(res.SkippedGroups, sg)
		for _, m := range g.Members {
			skippedReason[m] = fmt.Sprintf("underlying group %s incomplete: missing %v", g.UnderlyingKey, sg.Missing)
		}
	}

	units := make([]*domain.UnitRecord, 0, len(gate.Valid)+len(gate.Skipped))
	for _, inst := range gate.Skipped {
		rec := o.newRecord(runID, date, inst.Key)
		rec.Status = domain.UnitSkipped
		rec.Errors = []string{skippedReason[inst.Key]}
		rec.FinishedAt = rec.StartedAt
		o.record(ctx, rec)
		units = append(units, rec)
	}

	valid := make([]*domain.UnitRecord, len(gate.Valid))
	g := new(errgroup.Group)
	g.SetLimit(o.maxUnits)
	for i, inst := range gate.Valid {
		g.Go(func() error {
			valid[i] = o.processUnit(ctx, runID, dayStartUs, inst.Key)
			return nil
		})
	}
	_ = g.Wait()

	units = append(units, valid...)
	sort.Slice(units, func(i, j int) bool { return units[i].InstrumentKey < units[j].InstrumentKey })
	res.Units = units
	return res, nil
}

func (o *Orchestrator) newRecord(runID, date, instrumentKey string) *domain.UnitRecord {
	return &domain.UnitRecord{
		RunID:          runID,
		UnitID:         idhash.ComputeUnitID(o.exchange, instrumentKey, date),
		Exchange:       o.exchange,
		Date:           date,
		InstrumentKey:  instrumentKey,
		Status:         domain.UnitRunning,
		CandleCounts:   map[string]int{},
		SnapshotCounts: map[string]int{},
		StartedAt:      o.now().UTC(),
	}
}

// record writes rec to the ledger. A ledger failure is logged; it does not
// change the unit outcome because the outputs are already persisted.
func (o *Orchestrator) record(ctx context.Context, rec *domain.UnitRecord) {
	if err := o.ledger.RecordUnit(ctx, rec); err != nil {
		o.log.Error("ledger write failed",
			zap.String("run_id", rec.RunID),
			zap.String("instrument", rec.InstrumentKey),
			zap.String("date", rec.Date),
			zap.Error(err),
		)
	}
}

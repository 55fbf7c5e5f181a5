package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"market-candle-lab/internal/boundary"
	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/notify"
	"market-candle-lab/internal/observability"
)

// processUnit runs one instrument-day. The candle path (base then rollup) is
// strictly ordered; the book sampler runs beside it. Any error from either
// path fails the unit, never its siblings.
func (o *Orchestrator) processUnit(ctx context.Context, runID string, dayStartUs int64, instrumentKey string) *domain.UnitRecord {
	date := boundary.FormatDate(dayStartUs)
	rec := o.newRecord(runID, date, instrumentKey)
	log := o.log.With(
		zap.String("run_id", runID),
		zap.String("exchange", o.exchange),
		zap.String("instrument", instrumentKey),
		zap.String("date", date),
	)

	if o.skipCompleted {
		done, err := o.ledger.LastSucceeded(ctx, rec.UnitID)
		if err != nil {
			log.Warn("ledger lookup failed, rebuilding unit", zap.Error(err))
		}
		if done {
			rec.Status = domain.UnitSkipped
			rec.Errors = []string{"already succeeded in an earlier run"}
			rec.FinishedAt = o.now().UTC()
			o.record(ctx, rec)
			o.observe(rec)
			return rec
		}
	}
	o.record(ctx, rec)

	ctx, span := observability.Tracer().Start(ctx, "orchestrator.processUnit", trace.WithAttributes(
		attribute.String("exchange", o.exchange),
		attribute.String("instrument", instrumentKey),
		attribute.String("date", date),
		attribute.String("unit_id", rec.UnitID),
	))
	defer span.End()

	var (
		mu       sync.Mutex
		failures []error
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		failures = append(failures, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.candlePath(ctx, rec, &mu, dayStartUs, fail)
	}()
	if o.books != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.bookPath(ctx, rec, &mu, dayStartUs, fail)
		}()
	}
	wg.Wait()
	sort.Strings(rec.MissingInputs)

	rec.Status = domain.UnitSucceeded
	if len(failures) > 0 {
		rec.Status = domain.UnitFailed
		for _, err := range failures {
			rec.Errors = append(rec.Errors, err.Error())
			span.RecordError(err)
		}
		span.SetStatus(codes.Error, "unit failed")
		log.Warn("unit failed", zap.Errors("errors", failures))
	}

	if rec.Status == domain.UnitSucceeded {
		if err := o.publisher.Publish(ctx, notify.EventFromRecord(rec)); err != nil {
			rec.Errors = append(rec.Errors, fmt.Sprintf("publish completion event: %v", err))
			log.Warn("completion event not published", zap.Error(err))
			if o.metrics != nil {
				o.metrics.PublishErrors.Inc()
			}
		}
	}

	rec.FinishedAt = o.now().UTC()
	o.record(ctx, rec)
	o.observe(rec)
	log.Debug("unit finished",
		zap.String("status", string(rec.Status)),
		zap.Any("candles", rec.CandleCounts),
		zap.Strings("missing_inputs", rec.MissingInputs),
	)
	return rec
}

// candlePath builds the base timeframes and, once they are persisted, the rollups.
func (o *Orchestrator) candlePath(ctx context.Context, rec *domain.UnitRecord, mu *sync.Mutex, dayStartUs int64, fail func(error)) {
	base, err := o.base.BuildInstrumentDay(ctx, o.exchange, rec.InstrumentKey, dayStartUs)
	if base != nil {
		mu.Lock()
		for tf, n := range base.Counts {
			rec.CandleCounts[tf.String()] = n
		}
		for _, dt := range base.MissingInputs {
			rec.MissingInputs = append(rec.MissingInputs, string(dt))
		}
		rec.Errors = append(rec.Errors, base.Errors...)
		mu.Unlock()
	}
	if err != nil {
		fail(fmt.Errorf("base candles: %w", err))
		return
	}
	if o.rollup == nil {
		return
	}

	agg, err := o.rollup.AggregateDay(ctx, o.exchange, rec.InstrumentKey, dayStartUs)
	if agg != nil {
		mu.Lock()
		for tf, n := range agg.Counts {
			rec.CandleCounts[tf.String()] = n
		}
		rec.Errors = append(rec.Errors, agg.Errors...)
		mu.Unlock()
	}
	if err != nil {
		fail(fmt.Errorf("rollup: %w", err))
	}
}

func (o *Orchestrator) bookPath(ctx context.Context, rec *domain.UnitRecord, mu *sync.Mutex, dayStartUs int64, fail func(error)) {
	res, err := o.books.SampleDay(ctx, o.exchange, rec.InstrumentKey, dayStartUs)
	if res != nil {
		mu.Lock()
		for tf, n := range res.Counts {
			rec.SnapshotCounts[tf.String()] = n
		}
		if res.MissingInput {
			rec.MissingInputs = append(rec.MissingInputs, string(domain.DataTypeBookSnapshot5))
		}
		rec.Errors = append(rec.Errors, res.Errors...)
		mu.Unlock()
	}
	if err != nil {
		fail(fmt.Errorf("book features: %w", err))
	}
}

func (o *Orchestrator) observe(rec *domain.UnitRecord) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordUnit(string(rec.Status), rec.FinishedAt.Sub(rec.StartedAt).Seconds())
}

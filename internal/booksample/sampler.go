package booksample

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"market-candle-lab/internal/boundary"
	"market-candle-lab/internal/candle"
	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/logger"
	"market-candle-lab/internal/observability"
	"market-candle-lab/internal/retry"
	"market-candle-lab/internal/storage"
)

// DefaultBatchSize bounds the snapshots held per streamed batch.
const DefaultBatchSize = 10_000

// selection tracks the earliest snapshot seen in each interval of one timeframe.
type selection struct {
	tf        domain.Timeframe
	intervals []boundary.Interval
	picked    []domain.BookSnapshot
	has       []bool
}

func newSelection(dayStartUs int64, tf domain.Timeframe) (*selection, error) {
	intervals, err := boundary.Intervals(dayStartUs, tf)
	if err != nil {
		return nil, err
	}
	return &selection{
		tf:        tf,
		intervals: intervals,
		picked:    make([]domain.BookSnapshot, len(intervals)),
		has:       make([]bool, len(intervals)),
	}, nil
}

// offer keeps s if it is the closest snapshot to its interval's start so far.
// Snapshots outside the day are ignored.
func (sel *selection) offer(s *domain.BookSnapshot) {
	ts := s.ExchangeTimestampUs
	first := sel.intervals[0].StartUs
	if ts < first || ts >= sel.intervals[len(sel.intervals)-1].EndUs {
		return
	}
	i := int((ts - first) / sel.tf.Micros())
	if i >= len(sel.intervals) {
		i = len(sel.intervals) - 1
	}
	if !sel.has[i] || ts < sel.picked[i].ExchangeTimestampUs {
		sel.picked[i] = *s
		sel.has[i] = true
	}
}

func (sel *selection) features(symbol, exchange string, latencyUs int64) []domain.BookSnapshotFeature {
	out := make([]domain.BookSnapshotFeature, len(sel.intervals))
	for i, iv := range sel.intervals {
		if !sel.has[i] {
			out[i] = NaNFeature(symbol, exchange, sel.tf, iv.StartUs, iv.StartUs+latencyUs)
			continue
		}
		s := &sel.picked[i]
		out[i] = NaNFeature(symbol, exchange, sel.tf, iv.StartUs, s.ReceiptTimestampUs+latencyUs)
		DeriveFeatures(s, &out[i])
	}
	return out
}

// Sample returns one feature record per interval of tf. Each interval uses the
// snapshot closest to its start among those inside [start, next start);
// intervals without one get an all-NaN record emitted at start+latency.
func Sample(symbol, exchange string, tf domain.Timeframe, dayStartUs int64, snapshots []domain.BookSnapshot, latencyUs int64) ([]domain.BookSnapshotFeature, error) {
	sel, err := newSelection(dayStartUs, tf)
	if err != nil {
		return nil, err
	}
	for i := range snapshots {
		sel.offer(&snapshots[i])
	}
	return sel.features(symbol, exchange, latencyUs), nil
}

// Options configures a Sampler.
type Options struct {
	Ticks             storage.TickSource
	Store             storage.BookFeatureStore
	Timeframes        []domain.Timeframe // default domain.AllTimeframes
	BatchSize         int                // default DefaultBatchSize
	EmissionLatencyUs int64              // default candle.DefaultEmissionLatencyUs when negative
	Retry             retry.Config
	Logger            *logger.Logger
	Metrics           *observability.Metrics
}

// Sampler streams one instrument-day of snapshots and writes a book-feature
// day per timeframe. It does not depend on the candle pipeline.
type Sampler struct {
	ticks     storage.TickSource
	store     storage.BookFeatureStore
	tfs       []domain.Timeframe
	batchSize int
	latencyUs int64
	retry     retry.Config
	log       *logger.Logger
	metrics   *observability.Metrics
}

// NewSampler validates opts.
func NewSampler(opts Options) (*Sampler, error) {
	if opts.Ticks == nil || opts.Store == nil {
		return nil, errors.New("booksample: tick source and book feature store are required")
	}
	tfs := opts.Timeframes
	if len(tfs) == 0 {
		tfs = domain.AllTimeframes
	}
	for _, tf := range tfs {
		if !tf.IsValid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedTimeframe, tf)
		}
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	latency := opts.EmissionLatencyUs
	if latency < 0 {
		latency = candle.DefaultEmissionLatencyUs
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Sampler{
		ticks:     opts.Ticks,
		store:     opts.Store,
		tfs:       tfs,
		batchSize: batch,
		latencyUs: latency,
		retry:     opts.Retry,
		log:       log.Named("booksample"),
		metrics:   opts.Metrics,
	}, nil
}

// Result is the outcome of sampling one instrument-day.
type Result struct {
	Counts       map[domain.Timeframe]int
	MissingInput bool     // snapshot feed absent or unreadable
	Errors       []string // already-persisted notes
}

// SampleDay streams the day's snapshots once for all timeframes. An absent or
// unreadable feed yields all-NaN days, never an error. Only persistence
// failures after retries and cancellation are returned.
func (s *Sampler) SampleDay(ctx context.Context, exchange, instrumentKey string, dayStartUs int64) (*Result, error) {
	ctx, span := observability.Tracer().Start(ctx, "booksample.SampleDay", trace.WithAttributes(
		attribute.String("exchange", exchange),
		attribute.String("instrument", instrumentKey),
	))
	defer span.End()

	log := s.log.With(
		zap.String("exchange", exchange),
		zap.String("instrument", instrumentKey),
		zap.String("date", boundary.FormatDate(dayStartUs)),
		zap.String("data_type", string(domain.DataTypeBookSnapshot5)),
	)

	sels := make([]*selection, len(s.tfs))
	newSelections := func() error {
		for i, tf := range s.tfs {
			sel, err := newSelection(dayStartUs, tf)
			if err != nil {
				return err
			}
			sels[i] = sel
		}
		return nil
	}
	if err := newSelections(); err != nil {
		return nil, err
	}

	res := &Result{Counts: make(map[domain.Timeframe]int, len(s.tfs))}
	err := s.ticks.StreamBookSnapshots(ctx, exchange, instrumentKey, dayStartUs, s.batchSize, func(batch []domain.BookSnapshot) error {
		for i := range batch {
			for _, sel := range sels {
				sel.offer(&batch[i])
			}
		}
		return nil
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Warn("raw input missing")
		} else {
			log.Warn("raw input unreadable", zap.Error(err))
		}
		res.MissingInput = true
		if s.metrics != nil {
			s.metrics.MissingInputs.WithLabelValues(string(domain.DataTypeBookSnapshot5)).Inc()
		}
		// A partially streamed file is discarded whole.
		if err := newSelections(); err != nil {
			return nil, err
		}
	}

	for _, sel := range sels {
		rows := sel.features(instrumentKey, exchange, s.latencyUs)
		key := storage.DayKey{Exchange: exchange, InstrumentKey: instrumentKey, Timeframe: sel.tf, DayStartUs: dayStartUs}
		note, err := s.persist(ctx, key, rows)
		if err != nil {
			return res, fmt.Errorf("persist %s book features: %w", sel.tf, err)
		}
		res.Counts[sel.tf] = len(rows)
		if note != "" {
			res.Errors = append(res.Errors, note)
		}
	}
	return res, nil
}

func (s *Sampler) persist(ctx context.Context, key storage.DayKey, rows []domain.BookSnapshotFeature) (string, error) {
	var notify retry.Notify
	if s.metrics != nil {
		notify = func(int, time.Duration, error) { s.metrics.SinkRetries.WithLabelValues("book_features").Inc() }
	}
	err := retry.Do(ctx, s.retry, s.log, notify, func(ctx context.Context) error {
		return s.store.PutDay(ctx, key, rows)
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Sprintf("%s book features already persisted", key.Timeframe), nil
	}
	if err != nil {
		return "", err
	}
	if s.metrics != nil {
		s.metrics.BookFeaturesBuilt.WithLabelValues(key.Timeframe.String()).Add(float64(len(rows)))
	}
	return "", nil
}

package rollup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"market-candle-lab/internal/boundary"
	"market-candle-lab/internal/candle"
	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/logger"
	"market-candle-lab/internal/observability"
	"market-candle-lab/internal/retry"
	"market-candle-lab/internal/storage"
)

// ErrBaseNotPersisted is returned when the 1m day an aggregation depends on
// has not been written. The pipeline must order base construction first.
var ErrBaseNotPersisted = errors.New("rollup: base candles not persisted")

// Options configures an Aggregator.
type Options struct {
	Candles           storage.CandleStore
	Timeframes        []domain.Timeframe // target timeframes, default domain.AggregateTimeframes
	EmissionLatencyUs int64              // default candle.DefaultEmissionLatencyUs when negative
	MaxConcurrent     int                // timeframes built in parallel, default 1
	Retry             retry.Config
	Logger            *logger.Logger
	Metrics           *observability.Metrics
}

// Aggregator builds every target timeframe of an instrument-day from its
// persisted 1m candles.
type Aggregator struct {
	candles   storage.CandleStore
	tfs       []domain.Timeframe
	latencyUs int64
	limit     int
	retry     retry.Config
	log       *logger.Logger
	metrics   *observability.Metrics
}

// NewAggregator validates opts. Base timeframes are rejected.
func NewAggregator(opts Options) (*Aggregator, error) {
	if opts.Candles == nil {
		return nil, errors.New("rollup: candle store is required")
	}
	tfs := opts.Timeframes
	if len(tfs) == 0 {
		tfs = domain.AggregateTimeframes
	}
	for _, tf := range tfs {
		if !tf.IsValid() || tf.IsBase() {
			return nil, fmt.Errorf("%w: %s is not an aggregate timeframe", domain.ErrUnsupportedTimeframe, tf)
		}
	}
	latency := opts.EmissionLatencyUs
	if latency < 0 {
		latency = candle.DefaultEmissionLatencyUs
	}
	limit := opts.MaxConcurrent
	if limit <= 0 {
		limit = 1
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Aggregator{
		candles:   opts.Candles,
		tfs:       tfs,
		latencyUs: latency,
		limit:     limit,
		retry:     opts.Retry,
		log:       log.Named("rollup"),
		metrics:   opts.Metrics,
	}, nil
}

// Timeframes returns the target timeframes.
func (a *Aggregator) Timeframes() []domain.Timeframe {
	return a.tfs
}

// Result is the outcome of aggregating one instrument-day.
type Result struct {
	Counts map[domain.Timeframe]int
	Errors []string // already-persisted notes
}

// AggregateDay reads the persisted 1m day once and writes every target
// timeframe. A missing 1m day is a dependency violation and returns
// ErrBaseNotPersisted without writing anything.
func (a *Aggregator) AggregateDay(ctx context.Context, exchange, instrumentKey string, dayStartUs int64) (res *Result, err error) {
	ctx, span := observability.Tracer().Start(ctx, "rollup.AggregateDay", trace.WithAttributes(
		attribute.String("exchange", exchange),
		attribute.String("instrument", instrumentKey),
		attribute.String("date", boundary.FormatDate(dayStartUs)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	srcKey := storage.DayKey{Exchange: exchange, InstrumentKey: instrumentKey, Timeframe: domain.RollupSource, DayStartUs: dayStartUs}
	base, err := a.candles.GetRange(ctx, srcKey, dayStartUs, boundary.DayEnd(dayStartUs))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s %s %s", ErrBaseNotPersisted, exchange, instrumentKey, boundary.FormatDate(dayStartUs))
	}
	if err != nil {
		return nil, fmt.Errorf("read %s candles: %w", domain.RollupSource, err)
	}

	res = &Result{Counts: make(map[domain.Timeframe]int, len(a.tfs))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.limit)
	for _, tf := range a.tfs {
		g.Go(func() error {
			out, err := AggregateCandles(base, instrumentKey, exchange, tf, dayStartUs, a.latencyUs)
			if err != nil {
				return err
			}
			key := storage.DayKey{Exchange: exchange, InstrumentKey: instrumentKey, Timeframe: tf, DayStartUs: dayStartUs}
			note, err := a.persist(gctx, key, out)
			if err != nil {
				return fmt.Errorf("persist %s candles: %w", tf, err)
			}

			mu.Lock()
			defer mu.Unlock()
			res.Counts[tf] = len(out)
			if note != "" {
				res.Errors = append(res.Errors, note)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

func (a *Aggregator) persist(ctx context.Context, key storage.DayKey, candles []domain.Candle) (string, error) {
	var notify retry.Notify
	if a.metrics != nil {
		notify = func(int, time.Duration, error) { a.metrics.SinkRetries.WithLabelValues("candles").Inc() }
	}
	err := retry.Do(ctx, a.retry, a.log, notify, func(ctx context.Context) error {
		return a.candles.PutDay(ctx, key, candles)
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Sprintf("%s candles already persisted", key.Timeframe), nil
	}
	if err != nil {
		return "", err
	}
	if a.metrics != nil {
		a.metrics.CandlesBuilt.WithLabelValues(key.Timeframe.String()).Add(float64(len(candles)))
	}
	a.log.Debug("persisted aggregate candles",
		zap.String("instrument", key.InstrumentKey),
		zap.String("timeframe", key.Timeframe.String()),
		zap.Int("count", len(candles)),
	)
	return "", nil
}

package normalization

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"market-candle-lab/internal/boundary"
	"market-candle-lab/internal/candle"
	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/logger"
	"market-candle-lab/internal/observability"
	"market-candle-lab/internal/retry"
	"market-candle-lab/internal/storage"
)

// DefaultFeeds are the raw feeds the feature engine consumes.
var DefaultFeeds = []domain.DataType{
	domain.DataTypeTrades,
	domain.DataTypeLiquidations,
	domain.DataTypeDerivativeTicker,
}

// supportedFeeds are the feeds LoadInputs knows how to read. Book snapshots
// belong to the book sampler.
var supportedFeeds = map[domain.DataType]bool{
	domain.DataTypeTrades:           true,
	domain.DataTypeLiquidations:     true,
	domain.DataTypeDerivativeTicker: true,
	domain.DataTypeOptionsChain:     true,
}

// Options configures a Runner.
type Options struct {
	Ticks             storage.TickSource
	Candles           storage.CandleStore
	Timeframes        []domain.Timeframe // base timeframes to build, default 15s and 1m
	Feeds             []domain.DataType  // raw feeds to load, default DefaultFeeds; book snapshots are rejected
	EmissionLatencyUs int64              // default candle.DefaultEmissionLatencyUs when negative
	Retry             retry.Config
	Logger            *logger.Logger
	Metrics           *observability.Metrics
}

// Runner is the base candle constructor for one instrument-day at a time.
// It holds no per-unit state and is safe for concurrent use.
type Runner struct {
	ticks     storage.TickSource
	candles   storage.CandleStore
	tfs       []domain.Timeframe
	feeds     []domain.DataType
	latencyUs int64
	retry     retry.Config
	log       *logger.Logger
	metrics   *observability.Metrics
}

// NewRunner validates opts and creates a Runner. Non-base timeframes are a
// configuration error.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Ticks == nil || opts.Candles == nil {
		return nil, errors.New("normalization: tick source and candle store are required")
	}
	tfs := opts.Timeframes
	if len(tfs) == 0 {
		tfs = domain.BaseTimeframes
	}
	for _, tf := range tfs {
		if !tf.IsBase() {
			return nil, fmt.Errorf("%w: %s is not a base timeframe", domain.ErrUnsupportedTimeframe, tf)
		}
	}
	feeds := opts.Feeds
	if len(feeds) == 0 {
		feeds = DefaultFeeds
	}
	for _, dt := range feeds {
		if !supportedFeeds[dt] {
			return nil, fmt.Errorf("normalization: feed %q is not a base candle input", dt)
		}
	}
	latency := opts.EmissionLatencyUs
	if latency < 0 {
		latency = candle.DefaultEmissionLatencyUs
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Runner{
		ticks:     opts.Ticks,
		candles:   opts.Candles,
		tfs:       tfs,
		feeds:     feeds,
		latencyUs: latency,
		retry:     opts.Retry,
		log:       log.Named("normalization"),
		metrics:   opts.Metrics,
	}, nil
}

// Timeframes returns the base timeframes this runner builds.
func (r *Runner) Timeframes() []domain.Timeframe {
	return r.tfs
}

// DayResult is the structured outcome of one instrument-day.
type DayResult struct {
	Counts        map[domain.Timeframe]int
	MissingInputs []domain.DataType
	Errors        []string // recovered feature failures and already-persisted notes
}

// LoadInputs reads and sorts the configured feeds. Absent feeds and read or
// parse failures are logged and returned as missing; they never fail the unit.
func (r *Runner) LoadInputs(ctx context.Context, exchange, instrumentKey string, dayStartUs int64) (DayInputs, []domain.DataType, error) {
	var in DayInputs
	var missing []domain.DataType
	log := r.log.With(
		zap.String("exchange", exchange),
		zap.String("instrument", instrumentKey),
		zap.String("date", boundary.FormatDate(dayStartUs)),
	)

	for _, dt := range r.feeds {
		var n int
		var err error
		switch dt {
		case domain.DataTypeTrades:
			in.Trades, err = r.ticks.Trades(ctx, exchange, instrumentKey, dayStartUs)
			n = len(in.Trades)
		case domain.DataTypeLiquidations:
			in.Liquidations, err = r.ticks.Liquidations(ctx, exchange, instrumentKey, dayStartUs)
			n = len(in.Liquidations)
		case domain.DataTypeDerivativeTicker:
			in.Tickers, err = r.ticks.DerivativeTickers(ctx, exchange, instrumentKey, dayStartUs)
			n = len(in.Tickers)
		case domain.DataTypeOptionsChain:
			in.OptionsChain, err = r.ticks.OptionsChain(ctx, exchange, instrumentKey, dayStartUs)
			n = len(in.OptionsChain)
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return DayInputs{}, nil, ctxErr
		}
		switch {
		case errors.Is(err, storage.ErrNotFound):
			log.Warn("raw input missing", zap.String("data_type", string(dt)))
		case err != nil:
			log.Warn("raw input unreadable", zap.String("data_type", string(dt)), zap.Error(err))
		case n == 0:
			log.Debug("raw input empty", zap.String("data_type", string(dt)))
		}
		if err != nil {
			missing = append(missing, dt)
			if r.metrics != nil {
				r.metrics.MissingInputs.WithLabelValues(string(dt)).Inc()
			}
		}
	}

	SortTrades(in.Trades)
	SortLiquidations(in.Liquidations)
	SortTickers(in.Tickers)
	SortOptionsChain(in.OptionsChain)
	return in, missing, nil
}

// BuildInstrumentDay loads inputs, builds every base timeframe and persists
// each day file. It returns an error only when persisting fails after retries
// or ctx is cancelled; the caller marks the unit failed.
func (r *Runner) BuildInstrumentDay(ctx context.Context, exchange, instrumentKey string, dayStartUs int64) (*DayResult, error) {
	in, missing, err := r.LoadInputs(ctx, exchange, instrumentKey, dayStartUs)
	if err != nil {
		return nil, err
	}

	result := &DayResult{
		Counts:        make(map[domain.Timeframe]int, len(r.tfs)),
		MissingInputs: missing,
	}

	for _, tf := range r.tfs {
		candles, featErrs, err := BuildBaseCandles(instrumentKey, exchange, tf, dayStartUs, in, r.latencyUs)
		if err != nil {
			return result, err
		}
		for _, fe := range featErrs {
			r.log.Warn("feature computation recovered",
				zap.String("exchange", exchange),
				zap.String("instrument", instrumentKey),
				zap.String("detail", fe),
			)
		}
		result.Errors = append(result.Errors, featErrs...)

		key := storage.DayKey{Exchange: exchange, InstrumentKey: instrumentKey, Timeframe: tf, DayStartUs: dayStartUs}
		note, err := r.persist(ctx, key, candles)
		if err != nil {
			return result, fmt.Errorf("persist %s candles: %w", tf, err)
		}
		if note != "" {
			result.Errors = append(result.Errors, note)
		}
		result.Counts[tf] = len(candles)
	}
	return result, nil
}

// persist writes one day file with retries. An already-persisted day is kept
// as is: construction is deterministic, so the stored file holds the same candles.
func (r *Runner) persist(ctx context.Context, key storage.DayKey, candles []domain.Candle) (string, error) {
	start := time.Now()
	err := retry.Do(ctx, r.retry, r.log, r.retryNotify("candles"), func(ctx context.Context) error {
		return r.candles.PutDay(ctx, key, candles)
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Sprintf("%s candles already persisted", key.Timeframe), nil
	}
	if err != nil {
		return "", err
	}
	if r.metrics != nil {
		r.metrics.CandlesBuilt.WithLabelValues(key.Timeframe.String()).Add(float64(len(candles)))
	}
	r.log.Debug("persisted candles",
		zap.String("instrument", key.InstrumentKey),
		zap.String("timeframe", key.Timeframe.String()),
		zap.Int("count", len(candles)),
		zap.Duration("took", time.Since(start)),
	)
	return "", nil
}

func (r *Runner) retryNotify(sink string) retry.Notify {
	if r.metrics == nil {
		return nil
	}
	return func(int, time.Duration, error) {
		r.metrics.SinkRetries.WithLabelValues(sink).Inc()
	}
}

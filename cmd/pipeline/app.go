package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"market-candle-lab/internal/booksample"
	"market-candle-lab/internal/config"
	"market-candle-lab/internal/logger"
	"market-candle-lab/internal/normalization"
	"market-candle-lab/internal/notify"
	"market-candle-lab/internal/objectstore"
	"market-candle-lab/internal/observability"
	"market-candle-lab/internal/orchestrator"
	"market-candle-lab/internal/rollup"
	"market-candle-lab/internal/storage"
	chstore "market-candle-lab/internal/storage/clickhouse"
	"market-candle-lab/internal/storage/files"
	"market-candle-lab/internal/storage/memory"
	"market-candle-lab/internal/storage/postgres"
	"market-candle-lab/internal/validation"
)

// app holds the stores and services shared by every subcommand.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *observability.Metrics

	ticks        *files.TickStore
	candles      storage.CandleStore
	books        storage.BookFeatureStore
	registry     storage.InstrumentRegistry
	availability storage.AvailabilityStore
	ledger       storage.RunLedger
	publisher    notify.Publisher

	pool       *postgres.Pool
	chConn     *chstore.Conn
	metricsSrv *http.Server
}

// newApp loads the configuration and opens every backend it names. Postgres
// falls back to in-memory stores when no DSN is configured.
func newApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, metrics: observability.DefaultMetrics}

	objects := objectstore.NewOS(cfg.Storage.DataDir)
	fopts := files.Options{RowGroupSize: cfg.Storage.RowGroupSize, Observer: a.metrics.ObserveScan}
	a.ticks = files.NewTickStore(objects, fopts)
	a.books = files.NewBookFeatureStore(objects, fopts)

	switch cfg.Storage.Backend {
	case config.BackendClickhouse:
		conn, err := chstore.NewConn(ctx, cfg.Clickhouse.DSN)
		if err != nil {
			a.close()
			return nil, err
		}
		a.chConn = conn
		a.candles = chstore.NewCandleStore(conn)
	default:
		a.candles = files.NewCandleStore(objects, fopts)
	}

	if cfg.Postgres.DSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN,
			postgres.WithMaxConns(cfg.Postgres.MaxConns),
			postgres.WithConnectTimeout(cfg.Postgres.ConnectTimeout))
		if err != nil {
			a.close()
			return nil, err
		}
		a.pool = pool
		a.registry = postgres.NewInstrumentRegistry(pool)
		a.availability = postgres.NewAvailabilityStore(pool)
		a.ledger = postgres.NewRunLedger(pool)
	} else {
		log.Warn("postgres.dsn not set, registry, availability and run ledger are in-memory")
		a.registry = memory.NewInstrumentRegistry()
		a.availability = memory.NewAvailabilityStore()
		a.ledger = memory.NewRunLedger()
	}

	a.publisher = notify.Nop{}
	if cfg.Kafka.Enabled {
		pub, err := notify.NewKafkaPublisher(notify.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			Timeout: cfg.Kafka.Timeout,
		})
		if err != nil {
			a.close()
			return nil, err
		}
		a.publisher = pub
	}

	a.serveMetrics()
	return a, nil
}

func (a *app) serveMetrics() {
	if a.cfg.Metrics.Addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	a.metricsSrv = &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	a.log.Info("serving metrics", zap.String("addr", a.cfg.Metrics.Addr))
}

// close releases backends in reverse order of opening.
func (a *app) close() {
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.metricsSrv.Shutdown(ctx)
		cancel()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn("close publisher", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.chConn != nil {
		if err := a.chConn.Close(); err != nil {
			a.log.Warn("close clickhouse", zap.Error(err))
		}
	}
	a.log.Sync()
}

// orchestrator builds the full pipeline from configuration.
func (a *app) orchestrator() (*orchestrator.Orchestrator, error) {
	p := a.cfg.Pipeline
	baseTfs, err := config.ParseTimeframes(p.BaseTimeframes)
	if err != nil {
		return nil, err
	}
	aggTfs, err := config.ParseTimeframes(p.AggregateTimeframes)
	if err != nil {
		return nil, err
	}
	bookTfs, err := config.ParseTimeframes(p.BookTimeframes)
	if err != nil {
		return nil, err
	}

	base, err := normalization.NewRunner(normalization.Options{
		Ticks:             a.ticks,
		Candles:           a.candles,
		Timeframes:        baseTfs,
		Feeds:             p.Feeds(),
		EmissionLatencyUs: p.EmissionLatencyUs(),
		Retry:             a.cfg.Retry,
		Logger:            a.log.Named("base"),
		Metrics:           a.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("base candles: %w", err)
	}

	var agg *rollup.Aggregator
	if len(aggTfs) > 0 {
		agg, err = rollup.NewAggregator(rollup.Options{
			Candles:           a.candles,
			Timeframes:        aggTfs,
			EmissionLatencyUs: p.EmissionLatencyUs(),
			MaxConcurrent:     p.MaxConcurrentTimeframes,
			Retry:             a.cfg.Retry,
			Logger:            a.log.Named("rollup"),
			Metrics:           a.metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("rollup: %w", err)
		}
	}

	var books *booksample.Sampler
	if len(bookTfs) > 0 {
		books, err = booksample.NewSampler(booksample.Options{
			Ticks:             a.ticks,
			Store:             a.books,
			Timeframes:        bookTfs,
			BatchSize:         p.BookBatchSize,
			EmissionLatencyUs: p.EmissionLatencyUs(),
			Retry:             a.cfg.Retry,
			Logger:            a.log.Named("book"),
			Metrics:           a.metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("book sampler: %w", err)
		}
	}

	return orchestrator.New(orchestrator.Options{
		Exchange:           a.cfg.Exchange,
		Gate:               a.gate(),
		Base:               base,
		Ledger:             a.ledger,
		Rollup:             agg,
		Books:              books,
		Publisher:          a.publisher,
		MaxConcurrentDays:  p.MaxConcurrentDays,
		MaxConcurrentUnits: p.MaxConcurrentUnits,
		SkipCompleted:      p.SkipCompleted,
		Logger:             a.log.Named("orchestrator"),
		Metrics:            a.metrics,
	})
}

func (a *app) gate() *validation.Gate {
	return validation.NewGate(a.registry, a.availability, a.cfg.Pipeline.Requirements(), a.log.Named("gate"), a.metrics)
}

package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"market-candle-lab/internal/booksample"
	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/normalization"
	"market-candle-lab/internal/notify"
	"market-candle-lab/internal/retry"
	"market-candle-lab/internal/rollup"
	"market-candle-lab/internal/storage"
	"market-candle-lab/internal/storage/memory"
	"market-candle-lab/internal/validation"
)

const testDay = int64(1_710_028_800_000_000) // 2024-03-10T00:00:00Z

var fastRetry = retry.Config{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxRetries: 1}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.UnitCompleted
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev notify.UnitCompleted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// flakyCandles fails every write for one instrument.
type flakyCandles struct {
	*memory.CandleStore
	failFor string
}

func (s *flakyCandles) PutDay(ctx context.Context, key storage.DayKey, candles []domain.Candle) error {
	if key.InstrumentKey == s.failFor {
		return errors.New("object store unavailable")
	}
	return s.CandleStore.PutDay(ctx, key, candles)
}

type testEnv struct {
	ticks        *memory.TickSource
	candles      storage.CandleStore
	books        *memory.BookFeatureStore
	registry     *memory.InstrumentRegistry
	availability *memory.AvailabilityStore
	ledger       *memory.RunLedger
	publisher    *recordingPublisher
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	env := &testEnv{
		ticks:        memory.NewTickSource(),
		candles:      memory.NewCandleStore(),
		books:        memory.NewBookFeatureStore(),
		registry:     memory.NewInstrumentRegistry(),
		availability: memory.NewAvailabilityStore(),
		ledger:       memory.NewRunLedger(),
		publisher:    &recordingPublisher{},
	}

	err := env.registry.Upsert(ctx, testDay, []domain.Instrument{
		{Key: "BTC-PERPETUAL", Venue: "deribit", Type: domain.InstrumentPerpetual, BaseAsset: "BTC", QuoteAsset: "USD"},
		{Key: "BTC-USDC", Venue: "deribit", Type: domain.InstrumentSpot, BaseAsset: "BTC", QuoteAsset: "USDC"},
		{Key: "ETH-PERPETUAL", Venue: "deribit", Type: domain.InstrumentPerpetual, BaseAsset: "ETH", QuoteAsset: "USD"},
	})
	if err != nil {
		t.Fatalf("upsert instruments: %v", err)
	}
	for _, k := range []string{"BTC-PERPETUAL", "BTC-USDC", "ETH-PERPETUAL"} {
		env.markAvailable(t, testDay, k, domain.DataTypeTrades)
	}
	env.markAvailable(t, testDay, "BTC-PERPETUAL", domain.DataTypeDerivativeTicker)
	// ETH-PERPETUAL has no derivative ticker: its group is skipped.

	env.ticks.AddTrades("deribit", "BTC-PERPETUAL", testDay, domain.Trade{
		ExchangeTimestampUs: testDay + 30*domain.MicrosPerSecond,
		ReceiptTimestampUs:  testDay + 30*domain.MicrosPerSecond + 2_000,
		Price:               65000, Quantity: 2, ID: "1",
	})
	return env
}

func (e *testEnv) markAvailable(t *testing.T, day int64, key string, dt domain.DataType) {
	t.Helper()
	if err := e.availability.MarkAvailable(context.Background(), "deribit", day, key, dt, 1); err != nil {
		t.Fatalf("mark available: %v", err)
	}
}

func (e *testEnv) orchestrator(t *testing.T, skipCompleted bool) *Orchestrator {
	t.Helper()
	gate := validation.NewGate(e.registry, e.availability, validation.Requirements{
		domain.InstrumentPerpetual: {domain.DataTypeTrades, domain.DataTypeDerivativeTicker},
		domain.InstrumentSpot:      {domain.DataTypeTrades},
	}, nil, nil)

	base, err := normalization.NewRunner(normalization.Options{Ticks: e.ticks, Candles: e.candles, EmissionLatencyUs: -1, Retry: fastRetry})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	agg, err := rollup.NewAggregator(rollup.Options{Candles: e.candles, EmissionLatencyUs: -1, MaxConcurrent: 2, Retry: fastRetry})
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	sampler, err := booksample.NewSampler(booksample.Options{
		Ticks: e.ticks, Store: e.books, Timeframes: []domain.Timeframe{domain.Timeframe1m}, EmissionLatencyUs: -1, Retry: fastRetry,
	})
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}

	orch, err := New(Options{
		Exchange:           "deribit",
		Gate:               gate,
		Base:               base,
		Rollup:             agg,
		Books:              sampler,
		Ledger:             e.ledger,
		Publisher:          e.publisher,
		MaxConcurrentDays:  2,
		MaxConcurrentUnits: 4,
		SkipCompleted:      skipCompleted,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return orch
}

func unitByKey(units []*domain.UnitRecord, key string) *domain.UnitRecord {
	for _, u := range units {
		if u.InstrumentKey == key {
			return u
		}
	}
	return nil
}

func TestOrchestrator_RunRange_SingleDay(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	result, err := env.orchestrator(t, false).RunRange(ctx, testDay, testDay)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if result.RunID == "" {
		t.Fatal("expected run id")
	}
	if result.Succeeded != 2 || result.Skipped != 1 || result.Failed != 0 {
		t.Fatalf("expected 2 succeeded / 1 skipped / 0 failed, got %d/%d/%d", result.Succeeded, result.Skipped, result.Failed)
	}

	day := result.Days[0]
	if len(day.SkippedGroups) != 1 || day.SkippedGroups[0].Underlying != "ETH" {
		t.Fatalf("expected ETH group skipped, got %+v", day.SkippedGroups)
	}
	if got := day.SkippedGroups[0].Missing; len(got) != 1 || got[0] != "ETH-PERPETUAL/derivative_ticker" {
		t.Errorf("unexpected missing pairs %v", got)
	}

	btc := unitByKey(day.Units, "BTC-PERPETUAL")
	if btc == nil || btc.Status != domain.UnitSucceeded {
		t.Fatalf("expected BTC-PERPETUAL succeeded, got %+v", btc)
	}
	want := map[string]int{"15s": 5760, "1m": 1440, "5m": 288, "15m": 96, "1h": 24, "4h": 6, "24h": 1}
	for tf, n := range want {
		if btc.CandleCounts[tf] != n {
			t.Errorf("timeframe %s: expected %d candles, got %d", tf, n, btc.CandleCounts[tf])
		}
	}
	if btc.SnapshotCounts["1m"] != 1440 {
		t.Errorf("expected 1440 book rows, got %d", btc.SnapshotCounts["1m"])
	}
	// Only trades were delivered for BTC-PERPETUAL.
	if strings.Join(btc.MissingInputs, ",") != "book_snapshot_5,derivative_ticker,liquidations" {
		t.Errorf("unexpected missing inputs %v", btc.MissingInputs)
	}

	eth := unitByKey(day.Units, "ETH-PERPETUAL")
	if eth.Status != domain.UnitSkipped || !strings.Contains(eth.Errors[0], "underlying group ETH incomplete") {
		t.Errorf("expected ETH-PERPETUAL skipped by the gate, got %+v", eth)
	}

	key := storage.DayKey{Exchange: "deribit", InstrumentKey: "BTC-PERPETUAL", Timeframe: domain.Timeframe24h, DayStartUs: testDay}
	daily, err := env.candles.GetRange(ctx, key, testDay, testDay+domain.MicrosPerDay)
	if err != nil {
		t.Fatalf("read 24h candles: %v", err)
	}
	if daily[0].Volume != 2 || daily[0].Close != 65000 {
		t.Errorf("unexpected daily candle %+v", daily[0])
	}

	records, err := env.ledger.ListRun(ctx, result.RunID)
	if err != nil {
		t.Fatalf("list run: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 ledger records, got %d", len(records))
	}
	if len(env.publisher.events) != 2 {
		t.Errorf("expected 2 completion events, got %d", len(env.publisher.events))
	}
}

func TestOrchestrator_SkipCompleted(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	if _, err := env.orchestrator(t, false).RunRange(ctx, testDay, testDay); err != nil {
		t.Fatalf("first run: %v", err)
	}
	result, err := env.orchestrator(t, true).RunRange(ctx, testDay, testDay)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.Skipped != 3 || result.Succeeded != 0 {
		t.Fatalf("expected every unit skipped, got %d skipped / %d succeeded", result.Skipped, result.Succeeded)
	}
	btc := unitByKey(result.Days[0].Units, "BTC-PERPETUAL")
	if btc.Errors[0] != "already succeeded in an earlier run" {
		t.Errorf("unexpected skip reason %v", btc.Errors)
	}
}

func TestOrchestrator_UnitFailureIsolated(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.candles = &flakyCandles{CandleStore: memory.NewCandleStore(), failFor: "BTC-USDC"}

	result, err := env.orchestrator(t, false).RunRange(ctx, testDay, testDay)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if result.Failed != 1 || result.Succeeded != 1 {
		t.Fatalf("expected 1 failed / 1 succeeded, got %d/%d", result.Failed, result.Succeeded)
	}

	failed := unitByKey(result.Days[0].Units, "BTC-USDC")
	if failed.Status != domain.UnitFailed {
		t.Fatalf("expected BTC-USDC failed, got %s", failed.Status)
	}
	found := false
	for _, e := range failed.Errors {
		if strings.Contains(e, "base candles") && strings.Contains(e, "object store unavailable") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected sink error in unit errors, got %v", failed.Errors)
	}
	if failed.SnapshotCounts["1m"] != 1440 {
		t.Errorf("expected book sampling to complete independently, got %v", failed.SnapshotCounts)
	}
	for _, ev := range env.publisher.events {
		if ev.InstrumentKey == "BTC-USDC" {
			t.Error("failed unit must not publish a completion event")
		}
	}
}

func TestOrchestrator_PublishFailureDoesNotFailUnit(t *testing.T) {
	env := newEnv(t)
	env.publisher.err = errors.New("broker down")

	result, err := env.orchestrator(t, false).RunRange(context.Background(), testDay, testDay)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if result.Succeeded != 2 {
		t.Fatalf("expected 2 succeeded, got %d", result.Succeeded)
	}
	btc := unitByKey(result.Days[0].Units, "BTC-PERPETUAL")
	if !strings.Contains(strings.Join(btc.Errors, ";"), "broker down") {
		t.Errorf("expected publish failure recorded, got %v", btc.Errors)
	}
}

func TestOrchestrator_RunRange_MultipleDays(t *testing.T) {
	env := newEnv(t)
	next := testDay + domain.MicrosPerDay
	for _, k := range []string{"BTC-PERPETUAL", "BTC-USDC"} {
		env.markAvailable(t, next, k, domain.DataTypeTrades)
	}
	env.markAvailable(t, next, "BTC-PERPETUAL", domain.DataTypeDerivativeTicker)

	result, err := env.orchestrator(t, false).RunRange(context.Background(), testDay, next)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(result.Days) != 2 || result.Days[0].Date != "2024-03-10" || result.Days[1].Date != "2024-03-11" {
		t.Fatalf("expected two ordered days, got %+v", result.Days)
	}
	if result.Succeeded != 4 {
		t.Errorf("expected 4 succeeded units, got %d", result.Succeeded)
	}
}

func TestOrchestrator_RejectsBadRange(t *testing.T) {
	orch := newEnv(t).orchestrator(t, false)
	if _, err := orch.RunRange(context.Background(), testDay+1, testDay+domain.MicrosPerDay); err == nil {
		t.Error("expected error for unaligned range")
	}
	if _, err := orch.RunRange(context.Background(), testDay+domain.MicrosPerDay, testDay); err == nil {
		t.Error("expected error for reversed range")
	}
}

func TestNew_Validation(t *testing.T) {
	env := newEnv(t)
	base, _ := normalization.NewRunner(normalization.Options{Ticks: env.ticks, Candles: env.candles})
	gate := validation.NewGate(env.registry, env.availability, nil, nil, nil)

	_, err := New(Options{Exchange: "deribit", Gate: gate, Base: base, Ledger: env.ledger, MaxConcurrentDays: 0, MaxConcurrentUnits: 1})
	if err == nil {
		t.Error("expected error for zero day concurrency")
	}
	_, err = New(Options{Exchange: "deribit", Base: base, Ledger: env.ledger, MaxConcurrentDays: 1, MaxConcurrentUnits: 1})
	if err == nil {
		t.Error("expected error for missing gate")
	}
}

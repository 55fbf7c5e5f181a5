// Package normalization builds base (15s, 1m) candles with their HFT feature
// blocks from one instrument-day of raw ticks.
package normalization

import (
	"fmt"
	"time"

	"market-candle-lab/internal/boundary"
	"market-candle-lab/internal/candle"
	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/features"
)

// DayInputs are the raw feeds of one instrument-day, each sorted by exchange time.
// A nil slice means the feed was absent; it is treated exactly like an empty one.
// OptionsChain is loaded for availability accounting only; the options
// features stay NaN placeholders until group context is available.
type DayInputs struct {
	Trades       []domain.Trade
	Liquidations []domain.Liquidation
	Tickers      []domain.DerivativeTicker
	OptionsChain []domain.OptionsChainRecord
}

// computeFeatures is replaced in tests to inject a failing interval.
var computeFeatures = features.Compute

func tradeTs(t *domain.Trade) int64 { return t.ExchangeTimestampUs }

func liquidationTs(l *domain.Liquidation) int64 { return l.ExchangeTimestampUs }

func tickerTs(t *domain.DerivativeTicker) int64 { return t.ExchangeTimestampUs }

// BuildBaseCandles builds the fixed-cardinality candle list of one base timeframe.
// Records are assigned to intervals by exchange timestamp; records outside the
// day are ignored. A feature failure leaves that candle with a NaN feature
// block and is reported in the returned error list; it never aborts the day.
func BuildBaseCandles(symbol, exchange string, tf domain.Timeframe, dayStartUs int64, in DayInputs, latencyUs int64) ([]domain.Candle, []string, error) {
	if !tf.IsBase() {
		return nil, nil, fmt.Errorf("%w: %s is not a base timeframe", domain.ErrUnsupportedTimeframe, tf)
	}
	intervals, err := boundary.Intervals(dayStartUs, tf)
	if err != nil {
		return nil, nil, err
	}

	tradeRanges := boundary.Partition(in.Trades, tradeTs, intervals)
	liqRanges := boundary.Partition(in.Liquidations, liquidationTs, intervals)
	tickerRanges := boundary.Partition(in.Tickers, tickerTs, intervals)

	candles := make([]domain.Candle, len(intervals))
	var errs []string
	for i, iv := range intervals {
		trades := in.Trades[tradeRanges[i].Lo:tradeRanges[i].Hi]
		liqs := in.Liquidations[liqRanges[i].Lo:liqRanges[i].Hi]
		tickers := in.Tickers[tickerRanges[i].Lo:tickerRanges[i].Hi]

		b := candle.NewBuilder(symbol, exchange, tf, iv.StartUs)
		for j := range trades {
			b.AddTrade(trades[j].Price, trades[j].Quantity)
		}

		c := b.Finalize(emissionTime(iv.StartUs, trades, latencyUs))
		block, ferr := computeFeatures(features.Inputs{Trades: trades, Liquidations: liqs, Tickers: tickers})
		if ferr != nil {
			errs = append(errs, fmt.Sprintf("%s %s: %v", tf, time.UnixMicro(iv.StartUs).UTC().Format(time.RFC3339), ferr))
		}
		c.Features = block
		candles[i] = c
	}
	return candles, errs, nil
}

// emissionTime is the latest trade receipt plus latency, or the interval start
// plus latency when no trade contributed. Auxiliary feeds only add features.
func emissionTime(startUs int64, trades []domain.Trade, latencyUs int64) int64 {
	var latest int64
	for i := range trades {
		latest = max(latest, trades[i].ReceiptTimestampUs)
	}
	return candle.EmissionTime(latest, len(trades) > 0, startUs, latencyUs)
}

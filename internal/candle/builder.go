// Package candle folds trades into a single interval's OHLCV accumulator.
package candle

import (
	"math"

	"market-candle-lab/internal/domain"
)

// DefaultEmissionLatencyUs is the fixed delay added to the latest contributing
// receipt time to model when a candle becomes available downstream.
const DefaultEmissionLatencyUs int64 = 200 * domain.MicrosPerMilli

// Builder accumulates trades for one interval. Not reused across intervals.
type Builder struct {
	symbol    string
	exchange  string
	timeframe domain.Timeframe
	startUs   int64

	open, high, low, close float64
	volume                 float64
	notional               float64 // running sum(price*quantity)
	count                  int64
}

// NewBuilder creates a builder for the interval starting at startUs.
func NewBuilder(symbol, exchange string, tf domain.Timeframe, startUs int64) *Builder {
	return &Builder{
		symbol:    symbol,
		exchange:  exchange,
		timeframe: tf,
		startUs:   startUs,
	}
}

// AddTrade folds one trade into the accumulator.
func (b *Builder) AddTrade(price, quantity float64) {
	if b.count == 0 {
		b.open = price
		b.high = price
		b.low = price
	} else {
		b.high = math.Max(b.high, price)
		b.low = math.Min(b.low, price)
	}
	b.close = price
	b.volume += quantity
	b.notional += price * quantity
	b.count++
}

// TradeCount returns the number of trades added so far.
func (b *Builder) TradeCount() int64 {
	return b.count
}

// Finalize returns the immutable candle. With zero trades the candle is empty:
// NaN OHLC and VWAP, zero volume and count. The feature block is left empty
// for the caller to fill.
func (b *Builder) Finalize(timestampOutUs int64) domain.Candle {
	if b.count == 0 {
		return domain.EmptyCandle(b.symbol, b.exchange, b.timeframe, b.startUs, timestampOutUs)
	}

	vwap := math.NaN()
	if b.volume > 0 {
		vwap = b.notional / b.volume
	}

	return domain.Candle{
		Symbol:         b.symbol,
		Exchange:       b.exchange,
		Timeframe:      b.timeframe,
		TimestampUs:    b.startUs,
		TimestampOutUs: timestampOutUs,
		Open:           b.open,
		High:           b.high,
		Low:            b.low,
		Close:          b.close,
		Volume:         b.volume,
		TradeCount:     b.count,
		VWAP:           vwap,
		Features:       domain.EmptyFeatureBlock(),
	}
}

// EmissionTime returns latest+latency when any record contributed,
// otherwise intervalStart+latency.
func EmissionTime(latestReceiptUs int64, contributed bool, intervalStartUs, latencyUs int64) int64 {
	if contributed {
		return latestReceiptUs + latencyUs
	}
	return intervalStartUs + latencyUs
}

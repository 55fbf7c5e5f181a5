// Package rollup derives 5m, 15m, 1h, 4h and 24h candles from persisted 1m
// candles. It never reads raw trades.
package rollup

import (
	"fmt"
	"math"

	"market-candle-lab/internal/boundary"
	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/features"
)

func candleTs(c *domain.Candle) int64 { return c.TimestampUs }

// AggregateCandles rolls one day of base candles (sorted by interval start)
// into the fixed-cardinality candle list of tf.
//
// Each target interval takes the contiguous run of base candles starting in
// [boundary, next boundary). An interval with no base candles is an empty
// candle emitted at boundary+latency. Otherwise timestamp_out is the latest
// base timestamp_out plus latency, so the latency compounds per rollup level.
func AggregateCandles(base []domain.Candle, symbol, exchange string, tf domain.Timeframe, dayStartUs, latencyUs int64) ([]domain.Candle, error) {
	if tf.IsBase() {
		return nil, fmt.Errorf("%w: %s is a base timeframe", domain.ErrUnsupportedTimeframe, tf)
	}
	intervals, err := boundary.Intervals(dayStartUs, tf)
	if err != nil {
		return nil, err
	}

	ranges := boundary.Partition(base, candleTs, intervals)
	out := make([]domain.Candle, len(intervals))
	for i, iv := range intervals {
		out[i] = aggregateRange(base[ranges[i].Lo:ranges[i].Hi], symbol, exchange, tf, iv.StartUs, latencyUs)
	}
	return out, nil
}

func aggregateRange(sub []domain.Candle, symbol, exchange string, tf domain.Timeframe, startUs, latencyUs int64) domain.Candle {
	if len(sub) == 0 {
		return domain.EmptyCandle(symbol, exchange, tf, startUs, startUs+latencyUs)
	}

	var latestOut int64
	members := make([]features.Member, len(sub))
	for i := range sub {
		latestOut = max(latestOut, sub[i].TimestampOutUs)
		members[i] = features.Member{Block: &sub[i].Features, Volume: sub[i].Volume, TradeCount: sub[i].TradeCount}
	}

	c := domain.EmptyCandle(symbol, exchange, tf, startUs, latestOut+latencyUs)
	c.Features = features.Aggregate(members)

	var notional, vwapVolume float64
	for i := range sub {
		b := &sub[i]
		if b.IsEmpty() {
			continue
		}
		if c.TradeCount == 0 {
			c.Open, c.High, c.Low = b.Open, b.High, b.Low
		} else {
			c.High = math.Max(c.High, b.High)
			c.Low = math.Min(c.Low, b.Low)
		}
		c.Close = b.Close
		c.Volume += b.Volume
		c.TradeCount += b.TradeCount
		if !math.IsNaN(b.VWAP) && b.Volume > 0 {
			notional += b.VWAP * b.Volume
			vwapVolume += b.Volume
		}
	}
	if vwapVolume > 0 {
		c.VWAP = notional / vwapVolume
	}
	return c
}

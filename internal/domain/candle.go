package domain

import "math"

// Candle is one OHLCV interval for an instrument and timeframe.
// Exactly one candle exists per (instrument, timeframe, interval) per day, empty or not.
// Never mutated after finalization.
type Candle struct {
	Symbol         string    // instrument key
	Exchange       string    // venue
	Timeframe      Timeframe // candle granularity
	TimestampUs    int64     // interval start (UTC, µs)
	TimestampOutUs int64     // modeled emission time (µs)
	Open           float64
	High           float64
	Low            float64
	Close          float64
	Volume         float64
	TradeCount     int64
	VWAP           float64
	Features       FeatureBlock
}

// IsEmpty reports whether no trades contributed to the candle.
func (c *Candle) IsEmpty() bool {
	return c.TradeCount == 0
}

// EmptyCandle returns the canonical empty candle for an interval.
func EmptyCandle(symbol, exchange string, tf Timeframe, startUs, timestampOutUs int64) Candle {
	nan := math.NaN()
	return Candle{
		Symbol:         symbol,
		Exchange:       exchange,
		Timeframe:      tf,
		TimestampUs:    startUs,
		TimestampOutUs: timestampOutUs,
		Open:           nan,
		High:           nan,
		Low:            nan,
		Close:          nan,
		VWAP:           nan,
		Features:       EmptyFeatureBlock(),
	}
}

// BookSnapshotFeature holds book metrics sampled once per interval.
// All metrics are NaN when no snapshot fell inside the interval.
type BookSnapshotFeature struct {
	Symbol              string
	Exchange            string
	Timeframe           Timeframe
	TimestampUs         int64 // interval start (µs)
	TimestampOutUs      int64 // modeled emission time (µs)
	Sampled             bool  // a snapshot fell inside the interval
	SnapshotTimestampUs int64 // exchange time of the sampled snapshot, meaningful only when Sampled
	MidPrice            float64
	SpreadAbs           float64
	SpreadBps           float64
	Imbalance           float64 // (bid qty - ask qty) / (bid qty + ask qty) over all levels
	BidVWAP             float64
	AskVWAP             float64
	BidDistanceBps      [BookDepth]float64 // distance of each bid level below mid
	AskDistanceBps      [BookDepth]float64 // distance of each ask level above mid
	LevelVolumeRatio    [BookDepth]float64 // bid qty / (bid qty + ask qty) per level
}

// HasSnapshot reports whether a snapshot was sampled for the interval.
func (f *BookSnapshotFeature) HasSnapshot() bool {
	return f.Sampled
}

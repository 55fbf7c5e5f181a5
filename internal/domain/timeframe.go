package domain

import (
	"errors"
	"fmt"
	"time"
)

// Time units. All timestamps in this module are Unix microseconds (UTC).
const (
	MicrosPerMilli  int64 = 1_000
	MicrosPerSecond int64 = 1_000_000
	MicrosPerDay    int64 = 86_400 * MicrosPerSecond
)

// ErrUnsupportedTimeframe is returned when a timeframe outside the supported set is requested.
var ErrUnsupportedTimeframe = errors.New("unsupported timeframe")

// Timeframe is a candle granularity.
type Timeframe string

const (
	Timeframe15s Timeframe = "15s"
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe24h Timeframe = "24h"
)

var timeframeSeconds = map[Timeframe]int64{
	Timeframe15s: 15,
	Timeframe1m:  60,
	Timeframe5m:  300,
	Timeframe15m: 900,
	Timeframe1h:  3600,
	Timeframe4h:  14400,
	Timeframe24h: 86400,
}

// AllTimeframes lists every supported timeframe in ascending order.
var AllTimeframes = []Timeframe{
	Timeframe15s, Timeframe1m, Timeframe5m, Timeframe15m, Timeframe1h, Timeframe4h, Timeframe24h,
}

// BaseTimeframes are built directly from raw trades.
var BaseTimeframes = []Timeframe{Timeframe15s, Timeframe1m}

// AggregateTimeframes are rolled up from persisted 1m candles.
var AggregateTimeframes = []Timeframe{Timeframe5m, Timeframe15m, Timeframe1h, Timeframe4h, Timeframe24h}

// RollupSource is the base timeframe every aggregate timeframe is derived from.
const RollupSource = Timeframe1m

// ParseTimeframe validates s against the supported set.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !tf.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedTimeframe, s)
	}
	return tf, nil
}

// String returns the string representation of Timeframe.
func (tf Timeframe) String() string {
	return string(tf)
}

// IsValid checks if the timeframe is supported.
func (tf Timeframe) IsValid() bool {
	_, ok := timeframeSeconds[tf]
	return ok
}

// Seconds returns the interval length in seconds, or 0 for unsupported values.
func (tf Timeframe) Seconds() int64 {
	return timeframeSeconds[tf]
}

// Micros returns the interval length in microseconds.
func (tf Timeframe) Micros() int64 {
	return tf.Seconds() * MicrosPerSecond
}

// Duration returns the interval length as a time.Duration.
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf.Seconds()) * time.Second
}

// IntervalsPerDay returns the fixed candle count for one UTC day.
func (tf Timeframe) IntervalsPerDay() int {
	if tf.Seconds() == 0 {
		return 0
	}
	return int(86400 / tf.Seconds())
}

// IsBase reports whether tf is built from raw trades rather than rolled up.
func (tf Timeframe) IsBase() bool {
	return tf == Timeframe15s || tf == Timeframe1m
}

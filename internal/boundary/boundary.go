// Package boundary generates the canonical UTC interval grid for a day and
// slices time-sorted records onto it.
package boundary

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"market-candle-lab/internal/domain"
)

// ErrUnalignedDay is returned when a day start is not a UTC midnight.
var ErrUnalignedDay = errors.New("day start is not aligned to UTC midnight")

// DateLayout is the calendar date format used in keys and ledgers.
const DateLayout = "2006-01-02"

// Interval is a half-open time range [StartUs, EndUs).
type Interval struct {
	StartUs int64
	EndUs   int64
}

// Contains reports whether ts falls in [StartUs, EndUs).
func (iv Interval) Contains(ts int64) bool {
	return ts >= iv.StartUs && ts < iv.EndUs
}

// DayStart truncates t to its UTC midnight in microseconds.
func DayStart(t time.Time) int64 {
	u := t.UTC()
	midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.UnixMicro()
}

// ParseDate parses YYYY-MM-DD into a UTC midnight in microseconds.
func ParseDate(s string) (int64, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t.UnixMicro(), nil
}

// FormatDate renders a day start as YYYY-MM-DD.
func FormatDate(dayStartUs int64) string {
	return time.UnixMicro(dayStartUs).UTC().Format(DateLayout)
}

// DayEnd returns the exclusive upper bound of the day.
func DayEnd(dayStartUs int64) int64 {
	return dayStartUs + domain.MicrosPerDay
}

// Generate returns the ordered interval starts of tf for the day beginning at dayStartUs.
// The grid starts at day start (inclusive) and stops before the next midnight.
func Generate(dayStartUs int64, tf domain.Timeframe) ([]int64, error) {
	if !tf.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedTimeframe, tf)
	}
	if dayStartUs%domain.MicrosPerDay != 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnalignedDay, dayStartUs)
	}

	step := tf.Micros()
	end := DayEnd(dayStartUs)
	starts := make([]int64, 0, tf.IntervalsPerDay())
	for ts := dayStartUs; ts < end; ts += step {
		starts = append(starts, ts)
	}
	return starts, nil
}

// Intervals returns the day grid as half-open intervals.
// The final interval always ends at the next midnight.
func Intervals(dayStartUs int64, tf domain.Timeframe) ([]Interval, error) {
	starts, err := Generate(dayStartUs, tf)
	if err != nil {
		return nil, err
	}
	out := make([]Interval, len(starts))
	for i, s := range starts {
		out[i] = Interval{StartUs: s, EndUs: End(starts, i, dayStartUs)}
	}
	return out, nil
}

// End returns the exclusive upper bound of interval i in starts.
func End(starts []int64, i int, dayStartUs int64) int64 {
	if i+1 < len(starts) {
		return starts[i+1]
	}
	return DayEnd(dayStartUs)
}

// Range is an index range [Lo, Hi) into a sorted slice.
type Range struct {
	Lo int
	Hi int
}

// Len returns the number of items in the range.
func (r Range) Len() int {
	return r.Hi - r.Lo
}

// Empty reports whether the range selects nothing.
func (r Range) Empty() bool {
	return r.Hi <= r.Lo
}

// Slice returns the index range of items whose key lies in [startUs, endUs).
// items must be sorted ascending by key.
func Slice[T any](items []T, key func(*T) int64, startUs, endUs int64) Range {
	lo := sort.Search(len(items), func(i int) bool { return key(&items[i]) >= startUs })
	hi := sort.Search(len(items), func(i int) bool { return key(&items[i]) >= endUs })
	if hi < lo {
		hi = lo
	}
	return Range{Lo: lo, Hi: hi}
}

// Partition slices sorted items onto consecutive intervals, one range per interval.
// Items before the first or at/after the last bound get no range.
func Partition[T any](items []T, key func(*T) int64, intervals []Interval) []Range {
	out := make([]Range, len(intervals))
	if len(intervals) == 0 {
		return out
	}
	pos := Slice(items, key, intervals[0].StartUs, intervals[0].StartUs).Lo
	for i, iv := range intervals {
		hi := pos + sort.Search(len(items)-pos, func(j int) bool { return key(&items[pos+j]) >= iv.EndUs })
		out[i] = Range{Lo: pos, Hi: hi}
		pos = hi
	}
	return out
}

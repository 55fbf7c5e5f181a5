package boundary

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-candle-lab/internal/domain"
)

var testDay = DayStart(time.Date(2024, 3, 10, 13, 45, 0, 0, time.UTC))

func TestGenerate_CountsTileTheDay(t *testing.T) {
	for _, tf := range domain.AllTimeframes {
		t.Run(tf.String(), func(t *testing.T) {
			starts, err := Generate(testDay, tf)
			require.NoError(t, err)
			require.Len(t, starts, int(86400/tf.Seconds()))

			assert.Equal(t, testDay, starts[0])
			for i := 1; i < len(starts); i++ {
				assert.Equal(t, tf.Micros(), starts[i]-starts[i-1], "gap at %d", i)
			}

			ivs, err := Intervals(testDay, tf)
			require.NoError(t, err)
			for i := 1; i < len(ivs); i++ {
				assert.Equal(t, ivs[i-1].EndUs, ivs[i].StartUs)
			}
			assert.Equal(t, testDay+domain.MicrosPerDay, ivs[len(ivs)-1].EndUs)
		})
	}
}

func TestGenerate_RejectsUnsupportedTimeframe(t *testing.T) {
	_, err := Generate(testDay, domain.Timeframe("2m"))
	require.ErrorIs(t, err, domain.ErrUnsupportedTimeframe)
}

func TestGenerate_RejectsUnalignedDay(t *testing.T) {
	_, err := Generate(testDay+1, domain.Timeframe1m)
	require.ErrorIs(t, err, ErrUnalignedDay)
}

func TestDateRoundTrip(t *testing.T) {
	day, err := ParseDate("2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, testDay, day)
	assert.Equal(t, "2024-03-10", FormatDate(day))
}

type stamped struct{ ts int64 }

func stampKey(s *stamped) int64 { return s.ts }

func TestSlice_HalfOpen(t *testing.T) {
	items := []stamped{{10}, {20}, {20}, {30}, {40}}

	r := Slice(items, stampKey, 20, 40)
	assert.Equal(t, Range{Lo: 1, Hi: 4}, r)

	r = Slice(items, stampKey, 41, 50)
	assert.True(t, r.Empty())
}

func TestPartition_LastIntervalKeepsLateRecords(t *testing.T) {
	ivs, err := Intervals(testDay, domain.Timeframe4h)
	require.NoError(t, err)

	last := testDay + domain.MicrosPerDay - 1
	// previous day, first interval, second interval, last µs of the day, next day
	items := []stamped{
		{testDay - 1},
		{testDay},
		{testDay + 5*3600*domain.MicrosPerSecond},
		{last},
		{testDay + domain.MicrosPerDay},
	}

	ranges := Partition(items, stampKey, ivs)
	require.Len(t, ranges, 6)
	assert.Equal(t, Range{Lo: 1, Hi: 2}, ranges[0])
	assert.Equal(t, Range{Lo: 2, Hi: 3}, ranges[1])
	assert.Equal(t, Range{Lo: 3, Hi: 4}, ranges[5])

	total := 0
	for _, r := range ranges {
		total += r.Len()
	}
	assert.Equal(t, 3, total)
}

package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-candle-lab/internal/domain"
)

func TestFields_CoverEveryBlockSlot(t *testing.T) {
	var block domain.FeatureBlock
	seen := make(map[string]struct{})
	for i, f := range Fields {
		_, dup := seen[f.Name]
		require.False(t, dup, "duplicate field %s", f.Name)
		seen[f.Name] = struct{}{}
		f.Set(&block, float64(i+1))
	}

	// every slot got a distinct value, so no two fields share a slot
	for i, f := range Fields {
		assert.Equal(t, float64(i+1), f.Get(&block), f.Name)
	}
	assert.Len(t, Fields, 21)
}

func TestFields_EveryRuleHasReducer(t *testing.T) {
	for _, f := range Fields {
		assert.NotPanics(t, func() { reduce(f, nil, nil, nil) }, f.Name)
	}
	assert.Panics(t, func() { reduce(Field{Name: "bogus", Rule: Rule(99)}, nil, nil, nil) })
}

func TestAggregate_RuleTable(t *testing.T) {
	nan := math.NaN()
	a := domain.EmptyFeatureBlock()
	a.Sums.BuyVolume = 1
	a.Sums.LiquidationCount = 2
	a.Reweighted.PriceVWAP = 100
	a.Reweighted.SizeAvg = 1
	a.Delays = domain.DelayFeatures{Median: 5, Max: 9, Min: 1, Mean: 4}
	a.Last.FundingRate = 0.01
	a.Last.MarkPrice = 99

	b := domain.EmptyFeatureBlock()
	b.Sums.BuyVolume = 3
	b.Sums.LiquidationCount = 1
	b.Reweighted.PriceVWAP = 110
	b.Reweighted.SizeAvg = 4
	b.Delays = domain.DelayFeatures{Median: 7, Max: 20, Min: 2, Mean: 6}
	b.Last.FundingRate = nan
	b.Last.MarkPrice = 101

	empty := domain.EmptyFeatureBlock()

	out := Aggregate([]Member{
		{Block: &a, Volume: 1, TradeCount: 1},
		{Block: &b, Volume: 3, TradeCount: 3},
		{Block: &empty},
	})

	assert.Equal(t, 4.0, out.Sums.BuyVolume)
	assert.Equal(t, 3.0, out.Sums.LiquidationCount)
	assert.InDelta(t, (100.0*1+110*3)/4, out.Reweighted.PriceVWAP, 1e-12)
	assert.InDelta(t, (1.0*1+4*3)/4, out.Reweighted.SizeAvg, 1e-12)
	assert.Equal(t, 6.0, out.Delays.Median)
	assert.Equal(t, 20.0, out.Delays.Max)
	assert.Equal(t, 1.0, out.Delays.Min)
	assert.Equal(t, 5.0, out.Delays.Mean)
	assert.Equal(t, 0.01, out.Last.FundingRate)
	assert.Equal(t, 101.0, out.Last.MarkPrice)
	assert.True(t, math.IsNaN(out.Last.OpenInterest))
	assert.True(t, math.IsNaN(out.Unimplemented.OIChange))
	assert.True(t, math.IsNaN(out.Unimplemented.Skew25dPutCallRatio))
}

func TestAggregate_NoMembers(t *testing.T) {
	out := Aggregate(nil)
	assert.Zero(t, out.Sums.SellVolume)
	assert.True(t, math.IsNaN(out.Reweighted.PriceVWAP))
	assert.True(t, math.IsNaN(out.Delays.Mean))
}

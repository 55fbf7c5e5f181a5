package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-candle-lab/internal/domain"
)

func trade(exchUs, recvUs int64, price, qty float64) domain.Trade {
	return domain.Trade{ExchangeTimestampUs: exchUs, ReceiptTimestampUs: recvUs, Price: price, Quantity: qty}
}

func TestComputeTradeStats(t *testing.T) {
	trades := []domain.Trade{
		trade(0, 1_000, 100, 1),   // 1ms
		trade(10, 3_010, 102, 3),  // 3ms
		trade(20, 10_020, 101, 4), // 10ms
	}

	st := ComputeTradeStats(trades)
	assert.Equal(t, int64(3), st.Count)
	assert.Equal(t, 8.0, st.Volume)
	assert.InDelta(t, 8.0/3, st.SizeAvg, 1e-12)
	assert.InDelta(t, (100.0+306+404)/8, st.PriceVWAP, 1e-12)
	assert.Equal(t, 4.0, st.BuyVolume)
	assert.Equal(t, 4.0, st.SellVolume)
	assert.Equal(t, 3.0, st.DelayMedian)
	assert.Equal(t, 10.0, st.DelayMax)
	assert.Equal(t, 1.0, st.DelayMin)
	assert.InDelta(t, 14.0/3, st.DelayMean, 1e-12)
}

func TestComputeTradeStats_SideIsIgnored(t *testing.T) {
	buys := []domain.Trade{trade(0, 0, 10, 2), trade(1, 1, 10, 2)}
	buys[0].Side = domain.SideBuy
	buys[1].Side = domain.SideBuy

	st := ComputeTradeStats(buys)
	assert.Equal(t, 2.0, st.BuyVolume)
	assert.Equal(t, 2.0, st.SellVolume)
}

func TestCompute_EmptyInputs(t *testing.T) {
	block, err := Compute(Inputs{})
	require.NoError(t, err)

	assert.Zero(t, block.Sums.BuyVolume)
	assert.Zero(t, block.Sums.LiquidationCount)
	assert.True(t, math.IsNaN(block.Reweighted.PriceVWAP))
	assert.True(t, math.IsNaN(block.Reweighted.SizeAvg))
	assert.True(t, math.IsNaN(block.Delays.Median))
	assert.True(t, math.IsNaN(block.Last.FundingRate))
	assert.True(t, math.IsNaN(block.Unimplemented.ATMMarkIV))
}

func TestCompute_TickerOnlyInterval(t *testing.T) {
	nan := math.NaN()
	tickers := []domain.DerivativeTicker{
		{FundingRate: 0.01, IndexPrice: 100, MarkPrice: 100.5, OpenInterest: 1000, PredictedFundingRate: 0.02},
		{FundingRate: nan, IndexPrice: 101, MarkPrice: nan, OpenInterest: 1010, PredictedFundingRate: nan},
	}

	block, err := Compute(Inputs{Tickers: tickers})
	require.NoError(t, err)

	assert.Equal(t, 0.01, block.Last.FundingRate)
	assert.Equal(t, 101.0, block.Last.IndexPrice)
	assert.Equal(t, 100.5, block.Last.MarkPrice)
	assert.Equal(t, 1010.0, block.Last.OpenInterest)
	assert.Equal(t, 0.02, block.Last.PredictedFundingRate)
	assert.True(t, math.IsNaN(block.Reweighted.PriceVWAP))
}

func TestCompute_Liquidations(t *testing.T) {
	liqs := []domain.Liquidation{{Quantity: 3}, {Quantity: 5}}

	block, err := Compute(Inputs{Liquidations: liqs})
	require.NoError(t, err)
	assert.Equal(t, 2.0, block.Sums.LiquidationCount)
	assert.Equal(t, 4.0, block.Sums.LiquidationBuyVolume)
	assert.Equal(t, 4.0, block.Sums.LiquidationSellVolume)
}

func TestGuard_RecoversWithNaNBlock(t *testing.T) {
	compute := Guard(func(in Inputs) domain.FeatureBlock {
		_ = in.Trades[len(in.Trades)] // out of range
		return domain.EmptyFeatureBlock()
	})

	block, err := compute(Inputs{Trades: []domain.Trade{{Price: 1, Quantity: 1}}})
	require.ErrorIs(t, err, ErrComputation)
	assert.True(t, math.IsNaN(block.Sums.BuyVolume))
	assert.True(t, math.IsNaN(block.Sums.LiquidationCount))
	assert.True(t, math.IsNaN(block.Reweighted.PriceVWAP))
	assert.True(t, math.IsNaN(block.Last.MarkPrice))
}

func TestGuard_PassesThroughBlock(t *testing.T) {
	in := Inputs{Liquidations: []domain.Liquidation{{Quantity: 2}}}

	block, err := Guard(BuildBlock)(in)
	require.NoError(t, err)
	assert.Equal(t, BuildBlock(in).Sums, block.Sums)
}

func TestStats_NaNHandling(t *testing.T) {
	nan := math.NaN()
	vals := []float64{3, nan, 1, 2}

	assert.Equal(t, 6.0, NanSum(vals))
	assert.Equal(t, 2.0, NanMedian(vals))
	assert.Equal(t, 3.0, NanMax(vals))
	assert.Equal(t, 1.0, NanMin(vals))
	assert.Equal(t, 2.0, NanMean(vals))
	assert.Equal(t, 2.0, LastNonNaN(vals))
	assert.Equal(t, 2.5, NanMedian([]float64{1, 2, 3, 4}))

	assert.True(t, math.IsNaN(NanMedian([]float64{nan})))
	assert.True(t, math.IsNaN(WeightedMean([]float64{1, 2}, []float64{0, 0})))
	assert.Equal(t, 2.0, WeightedMean([]float64{nan, 2}, []float64{5, 1}))
}

// Package features computes the HFT feature block for base candles and
// defines how each feature rolls up into higher timeframes.
package features

import (
	"errors"
	"fmt"
	"math"

	"market-candle-lab/internal/domain"
)

// ErrComputation wraps a recovered per-candle failure.
var ErrComputation = errors.New("feature computation failed")

// Inputs are the raw records of one base interval, each sorted by exchange time.
type Inputs struct {
	Trades       []domain.Trade
	Liquidations []domain.Liquidation
	Tickers      []domain.DerivativeTicker
}

// TradeStats summarise the trades of one interval.
type TradeStats struct {
	Count       int64
	Volume      float64
	SizeAvg     float64
	PriceVWAP   float64
	BuyVolume   float64
	SellVolume  float64
	DelayMedian float64
	DelayMax    float64
	DelayMin    float64
	DelayMean   float64
}

// ComputeTradeStats derives trade features.
// Buy and sell volume are an even split of total volume; the trade side is not consulted.
func ComputeTradeStats(trades []domain.Trade) TradeStats {
	nan := math.NaN()
	st := TradeStats{
		SizeAvg: nan, PriceVWAP: nan,
		DelayMedian: nan, DelayMax: nan, DelayMin: nan, DelayMean: nan,
	}
	if len(trades) == 0 {
		return st
	}

	var notional float64
	delays := make([]float64, len(trades))
	for i := range trades {
		t := &trades[i]
		st.Volume += t.Quantity
		notional += t.Price * t.Quantity
		delays[i] = t.DelayMs()
	}
	st.Count = int64(len(trades))
	st.SizeAvg = st.Volume / float64(st.Count)
	if st.Volume > 0 {
		st.PriceVWAP = notional / st.Volume
	}
	st.BuyVolume = st.Volume / 2
	st.SellVolume = st.Volume / 2

	st.DelayMedian = NanMedian(delays)
	st.DelayMax = NanMax(delays)
	st.DelayMin = NanMin(delays)
	st.DelayMean = NanMean(delays)
	return st
}

// LiquidationStats summarise the liquidations of one interval.
type LiquidationStats struct {
	Count      int64
	BuyVolume  float64
	SellVolume float64
}

// ComputeLiquidationStats derives liquidation features with the same even volume split as trades.
func ComputeLiquidationStats(liqs []domain.Liquidation) LiquidationStats {
	var st LiquidationStats
	var volume float64
	for i := range liqs {
		volume += liqs[i].Quantity
	}
	st.Count = int64(len(liqs))
	st.BuyVolume = volume / 2
	st.SellVolume = volume / 2
	return st
}

// LastTickerValues returns the last non-missing value of each ticker field.
func LastTickerValues(tickers []domain.DerivativeTicker) domain.LastValueFeatures {
	nan := math.NaN()
	out := domain.LastValueFeatures{
		FundingRate: nan, IndexPrice: nan, MarkPrice: nan, OpenInterest: nan, PredictedFundingRate: nan,
	}
	for i := range tickers {
		tk := &tickers[i]
		keepIfSet(&out.FundingRate, tk.FundingRate)
		keepIfSet(&out.IndexPrice, tk.IndexPrice)
		keepIfSet(&out.MarkPrice, tk.MarkPrice)
		keepIfSet(&out.OpenInterest, tk.OpenInterest)
		keepIfSet(&out.PredictedFundingRate, tk.PredictedFundingRate)
	}
	return out
}

func keepIfSet(dst *float64, v float64) {
	if !math.IsNaN(v) {
		*dst = v
	}
}

// Compute returns the feature block for one base interval.
// A failure inside the computation yields an all-NaN block and a non-nil error;
// callers keep the block and continue with the next interval.
func Compute(in Inputs) (domain.FeatureBlock, error) {
	return guardedBuild(in)
}

var guardedBuild = Guard(BuildBlock)

// Guard turns a block builder into one that recovers from a panic with an
// all-NaN block and an ErrComputation.
func Guard(build func(Inputs) domain.FeatureBlock) func(Inputs) (domain.FeatureBlock, error) {
	return func(in Inputs) (block domain.FeatureBlock, err error) {
		defer func() {
			if r := recover(); r != nil {
				block = domain.NaNFeatureBlock()
				err = fmt.Errorf("%w: %v", ErrComputation, r)
			}
		}()
		return build(in), nil
	}
}

// BuildBlock computes the block without recovering.
func BuildBlock(in Inputs) domain.FeatureBlock {
	block := domain.EmptyFeatureBlock()

	ts := ComputeTradeStats(in.Trades)
	block.Sums.BuyVolume = ts.BuyVolume
	block.Sums.SellVolume = ts.SellVolume
	block.Reweighted.PriceVWAP = ts.PriceVWAP
	block.Reweighted.SizeAvg = ts.SizeAvg
	block.Delays = domain.DelayFeatures{
		Median: ts.DelayMedian,
		Max:    ts.DelayMax,
		Min:    ts.DelayMin,
		Mean:   ts.DelayMean,
	}

	ls := ComputeLiquidationStats(in.Liquidations)
	block.Sums.LiquidationCount = float64(ls.Count)
	block.Sums.LiquidationBuyVolume = ls.BuyVolume
	block.Sums.LiquidationSellVolume = ls.SellVolume

	block.Last = LastTickerValues(in.Tickers)
	block.Unimplemented = domain.NaNUnimplemented()
	return block
}

package domain

import "math"

// SumFeatures aggregate by arithmetic sum. Zero when nothing contributed.
type SumFeatures struct {
	BuyVolume             float64
	SellVolume            float64
	LiquidationCount      float64
	LiquidationBuyVolume  float64
	LiquidationSellVolume float64
}

// ReweightedFeatures aggregate as weighted means.
type ReweightedFeatures struct {
	PriceVWAP float64 // weighted by candle volume
	SizeAvg   float64 // weighted by candle trade count
}

// DelayFeatures summarise receipt minus exchange delay in milliseconds.
// Above the base timeframe they are statistics of per-candle values, not of raw trades.
type DelayFeatures struct {
	Median float64
	Max    float64
	Min    float64
	Mean   float64
}

// LastValueFeatures carry the last non-missing derivative ticker value.
type LastValueFeatures struct {
	FundingRate          float64
	IndexPrice           float64
	MarkPrice            float64
	OpenInterest         float64
	PredictedFundingRate float64
}

// UnimplementedFeatures are placeholders that are always NaN.
// They need cross-instrument group context that the feature engine does not have.
type UnimplementedFeatures struct {
	OIChange                 float64
	LiquidationWithRisingOI  float64
	LiquidationWithFallingOI float64
	Skew25dPutCallRatio      float64
	ATMMarkIV                float64
}

// FeatureBlock is the fixed-width feature set attached to every candle.
type FeatureBlock struct {
	Sums          SumFeatures
	Reweighted    ReweightedFeatures
	Delays        DelayFeatures
	Last          LastValueFeatures
	Unimplemented UnimplementedFeatures
}

// EmptyFeatureBlock returns the block for an interval with no contributing records:
// sums are zero, everything else NaN.
func EmptyFeatureBlock() FeatureBlock {
	nan := math.NaN()
	return FeatureBlock{
		Reweighted:    ReweightedFeatures{PriceVWAP: nan, SizeAvg: nan},
		Delays:        DelayFeatures{Median: nan, Max: nan, Min: nan, Mean: nan},
		Last:          LastValueFeatures{FundingRate: nan, IndexPrice: nan, MarkPrice: nan, OpenInterest: nan, PredictedFundingRate: nan},
		Unimplemented: NaNUnimplemented(),
	}
}

// NaNFeatureBlock returns a block with every field NaN. Used when computation failed.
func NaNFeatureBlock() FeatureBlock {
	b := EmptyFeatureBlock()
	nan := math.NaN()
	b.Sums = SumFeatures{
		BuyVolume: nan, SellVolume: nan, LiquidationCount: nan,
		LiquidationBuyVolume: nan, LiquidationSellVolume: nan,
	}
	return b
}

// NaNUnimplemented returns the placeholder category.
func NaNUnimplemented() UnimplementedFeatures {
	nan := math.NaN()
	return UnimplementedFeatures{
		OIChange: nan, LiquidationWithRisingOI: nan, LiquidationWithFallingOI: nan,
		Skew25dPutCallRatio: nan, ATMMarkIV: nan,
	}
}

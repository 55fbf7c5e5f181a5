package features

import (
	"fmt"
	"math"

	"market-candle-lab/internal/domain"
)

// Rule is how a feature rolls up from base candles into a higher timeframe.
type Rule int

const (
	RuleSum            Rule = iota // arithmetic sum
	RuleVolumeWeighted             // Σ(v·volume)/Σ(volume)
	RuleCountWeighted              // Σ(v·trade_count)/Σ(trade_count)
	RuleApproxMedian               // median of per-candle values
	RuleApproxMax                  // max of per-candle values
	RuleApproxMin                  // min of per-candle values
	RuleApproxMean                 // mean of per-candle values
	RuleLastValue                  // last non-NaN value
	RuleUnimplemented              // always NaN
)

var ruleNames = map[Rule]string{
	RuleSum:            "sum",
	RuleVolumeWeighted: "volume_weighted",
	RuleCountWeighted:  "count_weighted",
	RuleApproxMedian:   "approx_median",
	RuleApproxMax:      "approx_max",
	RuleApproxMin:      "approx_min",
	RuleApproxMean:     "approx_mean",
	RuleLastValue:      "last_value",
	RuleUnimplemented:  "unimplemented",
}

// String returns the rule name.
func (r Rule) String() string {
	if n, ok := ruleNames[r]; ok {
		return n
	}
	return fmt.Sprintf("rule(%d)", int(r))
}

// Field binds a feature column name to its rule and its slot in FeatureBlock.
type Field struct {
	Name string
	Rule Rule
	Get  func(*domain.FeatureBlock) float64
	Set  func(*domain.FeatureBlock, float64)
}

// Fields is the fixed feature schema, in column order.
var Fields = []Field{
	{"buy_volume", RuleSum,
		func(b *domain.FeatureBlock) float64 { return b.Sums.BuyVolume },
		func(b *domain.FeatureBlock, v float64) { b.Sums.BuyVolume = v }},
	{"sell_volume", RuleSum,
		func(b *domain.FeatureBlock) float64 { return b.Sums.SellVolume },
		func(b *domain.FeatureBlock, v float64) { b.Sums.SellVolume = v }},
	{"liquidation_count", RuleSum,
		func(b *domain.FeatureBlock) float64 { return b.Sums.LiquidationCount },
		func(b *domain.FeatureBlock, v float64) { b.Sums.LiquidationCount = v }},
	{"liquidation_buy_volume", RuleSum,
		func(b *domain.FeatureBlock) float64 { return b.Sums.LiquidationBuyVolume },
		func(b *domain.FeatureBlock, v float64) { b.Sums.LiquidationBuyVolume = v }},
	{"liquidation_sell_volume", RuleSum,
		func(b *domain.FeatureBlock) float64 { return b.Sums.LiquidationSellVolume },
		func(b *domain.FeatureBlock, v float64) { b.Sums.LiquidationSellVolume = v }},
	{"price_vwap", RuleVolumeWeighted,
		func(b *domain.FeatureBlock) float64 { return b.Reweighted.PriceVWAP },
		func(b *domain.FeatureBlock, v float64) { b.Reweighted.PriceVWAP = v }},
	{"size_avg", RuleCountWeighted,
		func(b *domain.FeatureBlock) float64 { return b.Reweighted.SizeAvg },
		func(b *domain.FeatureBlock, v float64) { b.Reweighted.SizeAvg = v }},
	{"delay_median", RuleApproxMedian,
		func(b *domain.FeatureBlock) float64 { return b.Delays.Median },
		func(b *domain.FeatureBlock, v float64) { b.Delays.Median = v }},
	{"delay_max", RuleApproxMax,
		func(b *domain.FeatureBlock) float64 { return b.Delays.Max },
		func(b *domain.FeatureBlock, v float64) { b.Delays.Max = v }},
	{"delay_min", RuleApproxMin,
		func(b *domain.FeatureBlock) float64 { return b.Delays.Min },
		func(b *domain.FeatureBlock, v float64) { b.Delays.Min = v }},
	{"delay_mean", RuleApproxMean,
		func(b *domain.FeatureBlock) float64 { return b.Delays.Mean },
		func(b *domain.FeatureBlock, v float64) { b.Delays.Mean = v }},
	{"funding_rate", RuleLastValue,
		func(b *domain.FeatureBlock) float64 { return b.Last.FundingRate },
		func(b *domain.FeatureBlock, v float64) { b.Last.FundingRate = v }},
	{"index_price", RuleLastValue,
		func(b *domain.FeatureBlock) float64 { return b.Last.IndexPrice },
		func(b *domain.FeatureBlock, v float64) { b.Last.IndexPrice = v }},
	{"mark_price", RuleLastValue,
		func(b *domain.FeatureBlock) float64 { return b.Last.MarkPrice },
		func(b *domain.FeatureBlock, v float64) { b.Last.MarkPrice = v }},
	{"open_interest", RuleLastValue,
		func(b *domain.FeatureBlock) float64 { return b.Last.OpenInterest },
		func(b *domain.FeatureBlock, v float64) { b.Last.OpenInterest = v }},
	{"predicted_funding_rate", RuleLastValue,
		func(b *domain.FeatureBlock) float64 { return b.Last.PredictedFundingRate },
		func(b *domain.FeatureBlock, v float64) { b.Last.PredictedFundingRate = v }},
	{"oi_change", RuleUnimplemented,
		func(b *domain.FeatureBlock) float64 { return b.Unimplemented.OIChange },
		func(b *domain.FeatureBlock, v float64) { b.Unimplemented.OIChange = v }},
	{"liquidation_with_rising_oi", RuleUnimplemented,
		func(b *domain.FeatureBlock) float64 { return b.Unimplemented.LiquidationWithRisingOI },
		func(b *domain.FeatureBlock, v float64) { b.Unimplemented.LiquidationWithRisingOI = v }},
	{"liquidation_with_falling_oi", RuleUnimplemented,
		func(b *domain.FeatureBlock) float64 { return b.Unimplemented.LiquidationWithFallingOI },
		func(b *domain.FeatureBlock, v float64) { b.Unimplemented.LiquidationWithFallingOI = v }},
	{"skew_25d_put_call_ratio", RuleUnimplemented,
		func(b *domain.FeatureBlock) float64 { return b.Unimplemented.Skew25dPutCallRatio },
		func(b *domain.FeatureBlock, v float64) { b.Unimplemented.Skew25dPutCallRatio = v }},
	{"atm_mark_iv", RuleUnimplemented,
		func(b *domain.FeatureBlock) float64 { return b.Unimplemented.ATMMarkIV },
		func(b *domain.FeatureBlock, v float64) { b.Unimplemented.ATMMarkIV = v }},
}

// FieldNames returns the feature column names in schema order.
func FieldNames() []string {
	names := make([]string, len(Fields))
	for i, f := range Fields {
		names[i] = f.Name
	}
	return names
}

// Member is one contributing base candle's block and weights.
type Member struct {
	Block      *domain.FeatureBlock
	Volume     float64
	TradeCount int64
}

// Aggregate rolls the member blocks into one block by applying each field's rule.
// Members must be in time order for the last-value rule.
func Aggregate(members []Member) domain.FeatureBlock {
	out := domain.EmptyFeatureBlock()

	volumes := make([]float64, len(members))
	counts := make([]float64, len(members))
	for i, m := range members {
		volumes[i] = m.Volume
		counts[i] = float64(m.TradeCount)
	}

	values := make([]float64, len(members))
	for _, f := range Fields {
		for i, m := range members {
			values[i] = f.Get(m.Block)
		}
		f.Set(&out, reduce(f, values, volumes, counts))
	}
	return out
}

func reduce(f Field, values, volumes, counts []float64) float64 {
	switch f.Rule {
	case RuleSum:
		return NanSum(values)
	case RuleVolumeWeighted:
		return WeightedMean(values, volumes)
	case RuleCountWeighted:
		return WeightedMean(values, counts)
	case RuleApproxMedian:
		return NanMedian(values)
	case RuleApproxMax:
		return NanMax(values)
	case RuleApproxMin:
		return NanMin(values)
	case RuleApproxMean:
		return NanMean(values)
	case RuleLastValue:
		return LastNonNaN(values)
	case RuleUnimplemented:
		return math.NaN()
	}
	panic(fmt.Sprintf("features: no reducer for rule %s on field %s", f.Rule, f.Name))
}

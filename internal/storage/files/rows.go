package files

import (
	"market-candle-lab/internal/domain"
)

// CandleRow is the on-disk candle schema. Feature columns follow features.Fields.
type CandleRow struct {
	Symbol                   string  `parquet:"symbol,dict"`
	Exchange                 string  `parquet:"exchange,dict"`
	Timeframe                string  `parquet:"timeframe,dict"`
	Timestamp                int64   `parquet:"timestamp,delta"`
	TimestampOut             int64   `parquet:"timestamp_out,delta"`
	Open                     float64 `parquet:"open"`
	High                     float64 `parquet:"high"`
	Low                      float64 `parquet:"low"`
	Close                    float64 `parquet:"close"`
	Volume                   float64 `parquet:"volume"`
	TradeCount               int64   `parquet:"trade_count"`
	VWAP                     float64 `parquet:"vwap"`
	BuyVolume                float64 `parquet:"buy_volume"`
	SellVolume               float64 `parquet:"sell_volume"`
	LiquidationCount         float64 `parquet:"liquidation_count"`
	LiquidationBuyVolume     float64 `parquet:"liquidation_buy_volume"`
	LiquidationSellVolume    float64 `parquet:"liquidation_sell_volume"`
	PriceVWAP                float64 `parquet:"price_vwap"`
	SizeAvg                  float64 `parquet:"size_avg"`
	DelayMedian              float64 `parquet:"delay_median"`
	DelayMax                 float64 `parquet:"delay_max"`
	DelayMin                 float64 `parquet:"delay_min"`
	DelayMean                float64 `parquet:"delay_mean"`
	FundingRate              float64 `parquet:"funding_rate"`
	IndexPrice               float64 `parquet:"index_price"`
	MarkPrice                float64 `parquet:"mark_price"`
	OpenInterest             float64 `parquet:"open_interest"`
	PredictedFundingRate     float64 `parquet:"predicted_funding_rate"`
	OIChange                 float64 `parquet:"oi_change"`
	LiquidationWithRisingOI  float64 `parquet:"liquidation_with_rising_oi"`
	LiquidationWithFallingOI float64 `parquet:"liquidation_with_falling_oi"`
	Skew25dPutCallRatio      float64 `parquet:"skew_25d_put_call_ratio"`
	ATMMarkIV                float64 `parquet:"atm_mark_iv"`
}

func candleRowTs(r *CandleRow) int64 { return r.Timestamp }

func toCandleRow(c *domain.Candle) CandleRow {
	f := &c.Features
	return CandleRow{
		Symbol:                   c.Symbol,
		Exchange:                 c.Exchange,
		Timeframe:                c.Timeframe.String(),
		Timestamp:                c.TimestampUs,
		TimestampOut:             c.TimestampOutUs,
		Open:                     c.Open,
		High:                     c.High,
		Low:                      c.Low,
		Close:                    c.Close,
		Volume:                   c.Volume,
		TradeCount:               c.TradeCount,
		VWAP:                     c.VWAP,
		BuyVolume:                f.Sums.BuyVolume,
		SellVolume:               f.Sums.SellVolume,
		LiquidationCount:         f.Sums.LiquidationCount,
		LiquidationBuyVolume:     f.Sums.LiquidationBuyVolume,
		LiquidationSellVolume:    f.Sums.LiquidationSellVolume,
		PriceVWAP:                f.Reweighted.PriceVWAP,
		SizeAvg:                  f.Reweighted.SizeAvg,
		DelayMedian:              f.Delays.Median,
		DelayMax:                 f.Delays.Max,
		DelayMin:                 f.Delays.Min,
		DelayMean:                f.Delays.Mean,
		FundingRate:              f.Last.FundingRate,
		IndexPrice:               f.Last.IndexPrice,
		MarkPrice:                f.Last.MarkPrice,
		OpenInterest:             f.Last.OpenInterest,
		PredictedFundingRate:     f.Last.PredictedFundingRate,
		OIChange:                 f.Unimplemented.OIChange,
		LiquidationWithRisingOI:  f.Unimplemented.LiquidationWithRisingOI,
		LiquidationWithFallingOI: f.Unimplemented.LiquidationWithFallingOI,
		Skew25dPutCallRatio:      f.Unimplemented.Skew25dPutCallRatio,
		ATMMarkIV:                f.Unimplemented.ATMMarkIV,
	}
}

func (r *CandleRow) toDomain() domain.Candle {
	return domain.Candle{
		Symbol:         r.Symbol,
		Exchange:       r.Exchange,
		Timeframe:      domain.Timeframe(r.Timeframe),
		TimestampUs:    r.Timestamp,
		TimestampOutUs: r.TimestampOut,
		Open:           r.Open,
		High:           r.High,
		Low:            r.Low,
		Close:          r.Close,
		Volume:         r.Volume,
		TradeCount:     r.TradeCount,
		VWAP:           r.VWAP,
		Features: domain.FeatureBlock{
			Sums: domain.SumFeatures{
				BuyVolume:             r.BuyVolume,
				SellVolume:            r.SellVolume,
				LiquidationCount:      r.LiquidationCount,
				LiquidationBuyVolume:  r.LiquidationBuyVolume,
				LiquidationSellVolume: r.LiquidationSellVolume,
			},
			Reweighted: domain.ReweightedFeatures{PriceVWAP: r.PriceVWAP, SizeAvg: r.SizeAvg},
			Delays: domain.DelayFeatures{
				Median: r.DelayMedian, Max: r.DelayMax, Min: r.DelayMin, Mean: r.DelayMean,
			},
			Last: domain.LastValueFeatures{
				FundingRate:          r.FundingRate,
				IndexPrice:           r.IndexPrice,
				MarkPrice:            r.MarkPrice,
				OpenInterest:         r.OpenInterest,
				PredictedFundingRate: r.PredictedFundingRate,
			},
			Unimplemented: domain.UnimplementedFeatures{
				OIChange:                 r.OIChange,
				LiquidationWithRisingOI:  r.LiquidationWithRisingOI,
				LiquidationWithFallingOI: r.LiquidationWithFallingOI,
				Skew25dPutCallRatio:      r.Skew25dPutCallRatio,
				ATMMarkIV:                r.ATMMarkIV,
			},
		},
	}
}

// BookFeatureRow is the on-disk schema of sampled book features.
type BookFeatureRow struct {
	Symbol            string  `parquet:"symbol,dict"`
	Exchange          string  `parquet:"exchange,dict"`
	Timeframe         string  `parquet:"timeframe,dict"`
	Timestamp         int64   `parquet:"timestamp,delta"`
	TimestampOut      int64   `parquet:"timestamp_out,delta"`
	Sampled           bool    `parquet:"sampled"`
	SnapshotTimestamp int64   `parquet:"snapshot_timestamp,delta"`
	MidPrice          float64 `parquet:"mid_price"`
	SpreadAbs         float64 `parquet:"spread_abs"`
	SpreadBps         float64 `parquet:"spread_bps"`
	Imbalance         float64 `parquet:"imbalance"`
	BidVWAP           float64 `parquet:"bid_vwap"`
	AskVWAP           float64 `parquet:"ask_vwap"`
	BidDistanceBps0   float64 `parquet:"bid_distance_bps_0"`
	BidDistanceBps1   float64 `parquet:"bid_distance_bps_1"`
	BidDistanceBps2   float64 `parquet:"bid_distance_bps_2"`
	BidDistanceBps3   float64 `parquet:"bid_distance_bps_3"`
	BidDistanceBps4   float64 `parquet:"bid_distance_bps_4"`
	AskDistanceBps0   float64 `parquet:"ask_distance_bps_0"`
	AskDistanceBps1   float64 `parquet:"ask_distance_bps_1"`
	AskDistanceBps2   float64 `parquet:"ask_distance_bps_2"`
	AskDistanceBps3   float64 `parquet:"ask_distance_bps_3"`
	AskDistanceBps4   float64 `parquet:"ask_distance_bps_4"`
	LevelVolumeRatio0 float64 `parquet:"level_volume_ratio_0"`
	LevelVolumeRatio1 float64 `parquet:"level_volume_ratio_1"`
	LevelVolumeRatio2 float64 `parquet:"level_volume_ratio_2"`
	LevelVolumeRatio3 float64 `parquet:"level_volume_ratio_3"`
	LevelVolumeRatio4 float64 `parquet:"level_volume_ratio_4"`
}

func bookFeatureRowTs(r *BookFeatureRow) int64 { return r.Timestamp }

func toBookFeatureRow(f *domain.BookSnapshotFeature) BookFeatureRow {
	return BookFeatureRow{
		Symbol:            f.Symbol,
		Exchange:          f.Exchange,
		Timeframe:         f.Timeframe.String(),
		Timestamp:         f.TimestampUs,
		TimestampOut:      f.TimestampOutUs,
		Sampled:           f.Sampled,
		SnapshotTimestamp: f.SnapshotTimestampUs,
		MidPrice:          f.MidPrice,
		SpreadAbs:         f.SpreadAbs,
		SpreadBps:         f.SpreadBps,
		Imbalance:         f.Imbalance,
		BidVWAP:           f.BidVWAP,
		AskVWAP:           f.AskVWAP,
		BidDistanceBps0:   f.BidDistanceBps[0],
		BidDistanceBps1:   f.BidDistanceBps[1],
		BidDistanceBps2:   f.BidDistanceBps[2],
		BidDistanceBps3:   f.BidDistanceBps[3],
		BidDistanceBps4:   f.BidDistanceBps[4],
		AskDistanceBps0:   f.AskDistanceBps[0],
		AskDistanceBps1:   f.AskDistanceBps[1],
		AskDistanceBps2:   f.AskDistanceBps[2],
		AskDistanceBps3:   f.AskDistanceBps[3],
		AskDistanceBps4:   f.AskDistanceBps[4],
		LevelVolumeRatio0: f.LevelVolumeRatio[0],
		LevelVolumeRatio1: f.LevelVolumeRatio[1],
		LevelVolumeRatio2: f.LevelVolumeRatio[2],
		LevelVolumeRatio3: f.LevelVolumeRatio[3],
		LevelVolumeRatio4: f.LevelVolumeRatio[4],
	}
}

func (r *BookFeatureRow) toDomain() domain.BookSnapshotFeature {
	return domain.BookSnapshotFeature{
		Symbol:              r.Symbol,
		Exchange:            r.Exchange,
		Timeframe:           domain.Timeframe(r.Timeframe),
		TimestampUs:         r.Timestamp,
		TimestampOutUs:      r.TimestampOut,
		Sampled:             r.Sampled,
		SnapshotTimestampUs: r.SnapshotTimestamp,
		MidPrice:            r.MidPrice,
		SpreadAbs:           r.SpreadAbs,
		SpreadBps:           r.SpreadBps,
		Imbalance:           r.Imbalance,
		BidVWAP:             r.BidVWAP,
		AskVWAP:             r.AskVWAP,
		BidDistanceBps:      [domain.BookDepth]float64{r.BidDistanceBps0, r.BidDistanceBps1, r.BidDistanceBps2, r.BidDistanceBps3, r.BidDistanceBps4},
		AskDistanceBps:      [domain.BookDepth]float64{r.AskDistanceBps0, r.AskDistanceBps1, r.AskDistanceBps2, r.AskDistanceBps3, r.AskDistanceBps4},
		LevelVolumeRatio:    [domain.BookDepth]float64{r.LevelVolumeRatio0, r.LevelVolumeRatio1, r.LevelVolumeRatio2, r.LevelVolumeRatio3, r.LevelVolumeRatio4},
	}
}

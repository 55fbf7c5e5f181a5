package files

import (
	"market-candle-lab/internal/domain"
)

// Raw feed schemas. Every raw file is sorted by exchange_timestamp.
const rawTimestampColumn = "exchange_timestamp"

// TradeRow is the on-disk trade schema.
type TradeRow struct {
	ExchangeTimestamp int64   `parquet:"exchange_timestamp,delta"`
	ReceiptTimestamp  int64   `parquet:"receipt_timestamp,delta"`
	Price             float64 `parquet:"price"`
	Amount            float64 `parquet:"amount"`
	Side              string  `parquet:"side,dict"`
	ID                string  `parquet:"id"`
}

func tradeRowTs(r *TradeRow) int64 { return r.ExchangeTimestamp }

func toTradeRow(t *domain.Trade) TradeRow {
	return TradeRow{
		ExchangeTimestamp: t.ExchangeTimestampUs,
		ReceiptTimestamp:  t.ReceiptTimestampUs,
		Price:             t.Price,
		Amount:            t.Quantity,
		Side:              string(t.Side),
		ID:                t.ID,
	}
}

func (r *TradeRow) toDomain() domain.Trade {
	return domain.Trade{
		ExchangeTimestampUs: r.ExchangeTimestamp,
		ReceiptTimestampUs:  r.ReceiptTimestamp,
		Price:               r.Price,
		Quantity:            r.Amount,
		Side:                domain.Side(r.Side),
		ID:                  r.ID,
	}
}

// LiquidationRow is the on-disk liquidation schema.
type LiquidationRow struct {
	ExchangeTimestamp int64   `parquet:"exchange_timestamp,delta"`
	ReceiptTimestamp  int64   `parquet:"receipt_timestamp,delta"`
	Side              string  `parquet:"side,dict"`
	Price             float64 `parquet:"price"`
	Amount            float64 `parquet:"amount"`
	ID                string  `parquet:"id"`
}

func liquidationRowTs(r *LiquidationRow) int64 { return r.ExchangeTimestamp }

func toLiquidationRow(l *domain.Liquidation) LiquidationRow {
	return LiquidationRow{
		ExchangeTimestamp: l.ExchangeTimestampUs,
		ReceiptTimestamp:  l.ReceiptTimestampUs,
		Side:              string(l.Side),
		Price:             l.Price,
		Amount:            l.Quantity,
		ID:                l.ID,
	}
}

func (r *LiquidationRow) toDomain() domain.Liquidation {
	return domain.Liquidation{
		ExchangeTimestampUs: r.ExchangeTimestamp,
		ReceiptTimestampUs:  r.ReceiptTimestamp,
		Side:                domain.Side(r.Side),
		Price:               r.Price,
		Quantity:            r.Amount,
		ID:                  r.ID,
	}
}

// TickerRow is the on-disk derivative ticker schema. NaN marks a field the update did not carry.
type TickerRow struct {
	ExchangeTimestamp    int64   `parquet:"exchange_timestamp,delta"`
	ReceiptTimestamp     int64   `parquet:"receipt_timestamp,delta"`
	FundingRate          float64 `parquet:"funding_rate"`
	IndexPrice           float64 `parquet:"index_price"`
	MarkPrice            float64 `parquet:"mark_price"`
	OpenInterest         float64 `parquet:"open_interest"`
	PredictedFundingRate float64 `parquet:"predicted_funding_rate"`
}

func tickerRowTs(r *TickerRow) int64 { return r.ExchangeTimestamp }

func toTickerRow(t *domain.DerivativeTicker) TickerRow {
	return TickerRow{
		ExchangeTimestamp:    t.ExchangeTimestampUs,
		ReceiptTimestamp:     t.ReceiptTimestampUs,
		FundingRate:          t.FundingRate,
		IndexPrice:           t.IndexPrice,
		MarkPrice:            t.MarkPrice,
		OpenInterest:         t.OpenInterest,
		PredictedFundingRate: t.PredictedFundingRate,
	}
}

func (r *TickerRow) toDomain() domain.DerivativeTicker {
	return domain.DerivativeTicker{
		ExchangeTimestampUs:  r.ExchangeTimestamp,
		ReceiptTimestampUs:   r.ReceiptTimestamp,
		FundingRate:          r.FundingRate,
		IndexPrice:           r.IndexPrice,
		MarkPrice:            r.MarkPrice,
		OpenInterest:         r.OpenInterest,
		PredictedFundingRate: r.PredictedFundingRate,
	}
}

// OptionsChainRow is the on-disk options-chain schema.
type OptionsChainRow struct {
	ExchangeTimestamp int64   `parquet:"exchange_timestamp,delta"`
	ReceiptTimestamp  int64   `parquet:"receipt_timestamp,delta"`
	Symbol            string  `parquet:"symbol,dict"`
	Type              string  `parquet:"type,dict"`
	Strike            float64 `parquet:"strike_price"`
	Expiration        int64   `parquet:"expiration"`
	MarkPrice         float64 `parquet:"mark_price"`
	MarkIV            float64 `parquet:"mark_iv"`
	Delta             float64 `parquet:"delta"`
	UnderlyingPrice   float64 `parquet:"underlying_price"`
}

func optionsRowTs(r *OptionsChainRow) int64 { return r.ExchangeTimestamp }

func toOptionsChainRow(o *domain.OptionsChainRecord) OptionsChainRow {
	return OptionsChainRow{
		ExchangeTimestamp: o.ExchangeTimestampUs,
		ReceiptTimestamp:  o.ReceiptTimestampUs,
		Symbol:            o.Symbol,
		Type:              string(o.Type),
		Strike:            o.Strike,
		Expiration:        o.ExpirationUs,
		MarkPrice:         o.MarkPrice,
		MarkIV:            o.MarkIV,
		Delta:             o.Delta,
		UnderlyingPrice:   o.UnderlyingPrice,
	}
}

func (r *OptionsChainRow) toDomain() domain.OptionsChainRecord {
	return domain.OptionsChainRecord{
		ExchangeTimestampUs: r.ExchangeTimestamp,
		ReceiptTimestampUs:  r.ReceiptTimestamp,
		Symbol:              r.Symbol,
		Type:                domain.OptionType(r.Type),
		Strike:              r.Strike,
		ExpirationUs:        r.Expiration,
		MarkPrice:           r.MarkPrice,
		MarkIV:              r.MarkIV,
		Delta:               r.Delta,
		UnderlyingPrice:     r.UnderlyingPrice,
	}
}

// BookSnapshotRow is the on-disk top-5 book schema. Absent levels are NaN.
type BookSnapshotRow struct {
	ExchangeTimestamp int64   `parquet:"exchange_timestamp,delta"`
	ReceiptTimestamp  int64   `parquet:"receipt_timestamp,delta"`
	BidPrice0         float64 `parquet:"bid_price_0"`
	BidAmount0        float64 `parquet:"bid_amount_0"`
	BidPrice1         float64 `parquet:"bid_price_1"`
	BidAmount1        float64 `parquet:"bid_amount_1"`
	BidPrice2         float64 `parquet:"bid_price_2"`
	BidAmount2        float64 `parquet:"bid_amount_2"`
	BidPrice3         float64 `parquet:"bid_price_3"`
	BidAmount3        float64 `parquet:"bid_amount_3"`
	BidPrice4         float64 `parquet:"bid_price_4"`
	BidAmount4        float64 `parquet:"bid_amount_4"`
	AskPrice0         float64 `parquet:"ask_price_0"`
	AskAmount0        float64 `parquet:"ask_amount_0"`
	AskPrice1         float64 `parquet:"ask_price_1"`
	AskAmount1        float64 `parquet:"ask_amount_1"`
	AskPrice2         float64 `parquet:"ask_price_2"`
	AskAmount2        float64 `parquet:"ask_amount_2"`
	AskPrice3         float64 `parquet:"ask_price_3"`
	AskAmount3        float64 `parquet:"ask_amount_3"`
	AskPrice4         float64 `parquet:"ask_price_4"`
	AskAmount4        float64 `parquet:"ask_amount_4"`
}

func bookRowTs(r *BookSnapshotRow) int64 { return r.ExchangeTimestamp }

func toBookSnapshotRow(s *domain.BookSnapshot) BookSnapshotRow {
	r := BookSnapshotRow{
		ExchangeTimestamp: s.ExchangeTimestampUs,
		ReceiptTimestamp:  s.ReceiptTimestampUs,
	}
	bidPrices := [domain.BookDepth]*float64{&r.BidPrice0, &r.BidPrice1, &r.BidPrice2, &r.BidPrice3, &r.BidPrice4}
	bidAmounts := [domain.BookDepth]*float64{&r.BidAmount0, &r.BidAmount1, &r.BidAmount2, &r.BidAmount3, &r.BidAmount4}
	askPrices := [domain.BookDepth]*float64{&r.AskPrice0, &r.AskPrice1, &r.AskPrice2, &r.AskPrice3, &r.AskPrice4}
	askAmounts := [domain.BookDepth]*float64{&r.AskAmount0, &r.AskAmount1, &r.AskAmount2, &r.AskAmount3, &r.AskAmount4}
	for i := 0; i < domain.BookDepth; i++ {
		*bidPrices[i] = s.Bids[i].Price
		*bidAmounts[i] = s.Bids[i].Quantity
		*askPrices[i] = s.Asks[i].Price
		*askAmounts[i] = s.Asks[i].Quantity
	}
	return r
}

func (r *BookSnapshotRow) toDomain() domain.BookSnapshot {
	return domain.BookSnapshot{
		ExchangeTimestampUs: r.ExchangeTimestamp,
		ReceiptTimestampUs:  r.ReceiptTimestamp,
		Bids: [domain.BookDepth]domain.BookLevel{
			{Price: r.BidPrice0, Quantity: r.BidAmount0},
			{Price: r.BidPrice1, Quantity: r.BidAmount1},
			{Price: r.BidPrice2, Quantity: r.BidAmount2},
			{Price: r.BidPrice3, Quantity: r.BidAmount3},
			{Price: r.BidPrice4, Quantity: r.BidAmount4},
		},
		Asks: [domain.BookDepth]domain.BookLevel{
			{Price: r.AskPrice0, Quantity: r.AskAmount0},
			{Price: r.AskPrice1, Quantity: r.AskAmount1},
			{Price: r.AskPrice2, Quantity: r.AskAmount2},
			{Price: r.AskPrice3, Quantity: r.AskAmount3},
			{Price: r.AskPrice4, Quantity: r.AskAmount4},
		},
	}
}

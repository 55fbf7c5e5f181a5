package domain

import "math"

// BookDepth is the number of price levels carried by a book snapshot.
const BookDepth = 5

// BookLevel is one price level of an order book side. NaN marks an absent level.
type BookLevel struct {
	Price    float64
	Quantity float64
}

// IsPresent reports whether both price and quantity are usable.
func (l BookLevel) IsPresent() bool {
	return !math.IsNaN(l.Price) && !math.IsNaN(l.Quantity) && l.Price > 0 && l.Quantity >= 0
}

// BookSnapshot is a top-5 order book snapshot.
type BookSnapshot struct {
	ExchangeTimestampUs int64
	ReceiptTimestampUs  int64
	Bids                [BookDepth]BookLevel // best first
	Asks                [BookDepth]BookLevel // best first
}

// DerivativeTicker is a perpetual/future ticker update. NaN marks a field the update did not carry.
type DerivativeTicker struct {
	ExchangeTimestampUs  int64
	ReceiptTimestampUs   int64
	FundingRate          float64
	IndexPrice           float64
	MarkPrice            float64
	OpenInterest         float64
	PredictedFundingRate float64
}

// Liquidation is a forced-close print.
type Liquidation struct {
	ExchangeTimestampUs int64
	ReceiptTimestampUs  int64
	Side                Side
	Price               float64
	Quantity            float64
	ID                  string
}

// OptionType distinguishes puts and calls in an options chain.
type OptionType string

const (
	OptionPut  OptionType = "put"
	OptionCall OptionType = "call"
)

// OptionsChainRecord is one row of an options-chain snapshot.
type OptionsChainRecord struct {
	ExchangeTimestampUs int64
	ReceiptTimestampUs  int64
	Symbol              string
	Type                OptionType
	Strike              float64
	ExpirationUs        int64
	MarkPrice           float64
	MarkIV              float64
	Delta               float64
	UnderlyingPrice     float64
}

package domain

// Side is the aggressor side of a trade or liquidation, when the feed provides one.
type Side string

const (
	SideBuy     Side = "buy"
	SideSell    Side = "sell"
	SideUnknown Side = ""
)

// Trade represents a single exchange trade print.
// Immutable, sourced from the tick-data provider.
type Trade struct {
	ExchangeTimestampUs int64   // exchange matching time (µs)
	ReceiptTimestampUs  int64   // local receipt time (µs)
	Price               float64 // execution price
	Quantity            float64 // base-asset quantity
	Side                Side    // aggressor side, may be unknown
	ID                  string  // exchange trade id
}

// DelayMs returns receipt minus exchange time in milliseconds.
func (t *Trade) DelayMs() float64 {
	return float64(t.ReceiptTimestampUs-t.ExchangeTimestampUs) / float64(MicrosPerMilli)
}

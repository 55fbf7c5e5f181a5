package domain

import "fmt"

// DataType identifies a raw tick feed.
type DataType string

const (
	DataTypeTrades           DataType = "trades"
	DataTypeBookSnapshot5    DataType = "book_snapshot_5"
	DataTypeDerivativeTicker DataType = "derivative_ticker"
	DataTypeLiquidations     DataType = "liquidations"
	DataTypeOptionsChain     DataType = "options_chain"
)

// AllDataTypes lists every known raw feed.
var AllDataTypes = []DataType{
	DataTypeTrades, DataTypeBookSnapshot5, DataTypeDerivativeTicker, DataTypeLiquidations, DataTypeOptionsChain,
}

// String returns the string representation of DataType.
func (d DataType) String() string {
	return string(d)
}

// IsValid checks if the data type is a known feed.
func (d DataType) IsValid() bool {
	for _, known := range AllDataTypes {
		if d == known {
			return true
		}
	}
	return false
}

// ParseDataType validates s against the known feeds.
func ParseDataType(s string) (DataType, error) {
	d := DataType(s)
	if !d.IsValid() {
		return "", fmt.Errorf("unknown data type %q", s)
	}
	return d, nil
}

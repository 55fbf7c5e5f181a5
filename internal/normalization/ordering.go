package normalization

import (
	"sort"

	"market-candle-lab/internal/domain"
)

// SortTrades orders trades by (exchange_timestamp ASC, receipt_timestamp ASC, id ASC).
// This gives a deterministic open/close when trades share an exchange timestamp.
func SortTrades(trades []domain.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		return compareTrades(&trades[i], &trades[j]) < 0
	})
}

// SortLiquidations orders liquidations by (exchange_timestamp ASC, receipt_timestamp ASC, id ASC).
func SortLiquidations(liqs []domain.Liquidation) {
	sort.SliceStable(liqs, func(i, j int) bool {
		a, b := &liqs[i], &liqs[j]
		if c := compareTimes(a.ExchangeTimestampUs, a.ReceiptTimestampUs, b.ExchangeTimestampUs, b.ReceiptTimestampUs); c != 0 {
			return c < 0
		}
		return a.ID < b.ID
	})
}

// SortTickers orders ticker updates by (exchange_timestamp ASC, receipt_timestamp ASC).
// Ties keep input order so "last value" stays the last delivered update.
func SortTickers(tickers []domain.DerivativeTicker) {
	sort.SliceStable(tickers, func(i, j int) bool {
		a, b := &tickers[i], &tickers[j]
		return compareTimes(a.ExchangeTimestampUs, a.ReceiptTimestampUs, b.ExchangeTimestampUs, b.ReceiptTimestampUs) < 0
	})
}

// SortOptionsChain orders options-chain rows by (exchange_timestamp ASC, receipt_timestamp ASC, symbol ASC).
func SortOptionsChain(recs []domain.OptionsChainRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := &recs[i], &recs[j]
		if c := compareTimes(a.ExchangeTimestampUs, a.ReceiptTimestampUs, b.ExchangeTimestampUs, b.ReceiptTimestampUs); c != 0 {
			return c < 0
		}
		return a.Symbol < b.Symbol
	})
}

// compareTrades returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
func compareTrades(a, b *domain.Trade) int {
	if c := compareTimes(a.ExchangeTimestampUs, a.ReceiptTimestampUs, b.ExchangeTimestampUs, b.ReceiptTimestampUs); c != 0 {
		return c
	}
	if a.ID != b.ID {
		if a.ID < b.ID {
			return -1
		}
		return 1
	}
	return 0
}

func compareTimes(aEx, aRx, bEx, bRx int64) int {
	if aEx != bEx {
		if aEx < bEx {
			return -1
		}
		return 1
	}
	if aRx != bRx {
		if aRx < bRx {
			return -1
		}
		return 1
	}
	return 0
}

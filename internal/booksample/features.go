// Package booksample picks one order-book snapshot per interval and derives
// spread, imbalance and depth features from it.
package booksample

import (
	"math"

	"market-candle-lab/internal/domain"
)

const bps = 10_000

// NaNFeature returns the record for an interval without a snapshot.
func NaNFeature(symbol, exchange string, tf domain.Timeframe, startUs, timestampOutUs int64) domain.BookSnapshotFeature {
	nan := math.NaN()
	f := domain.BookSnapshotFeature{
		Symbol:         symbol,
		Exchange:       exchange,
		Timeframe:      tf,
		TimestampUs:    startUs,
		TimestampOutUs: timestampOutUs,
		MidPrice:       nan,
		SpreadAbs:      nan,
		SpreadBps:      nan,
		Imbalance:      nan,
		BidVWAP:        nan,
		AskVWAP:        nan,
	}
	for i := range domain.BookDepth {
		f.BidDistanceBps[i] = nan
		f.AskDistanceBps[i] = nan
		f.LevelVolumeRatio[i] = nan
	}
	return f
}

// DeriveFeatures computes the book metrics of one snapshot into f.
// A missing best level on either side leaves mid, spread and distances NaN.
// Fields that only need one side are still computed from that side.
func DeriveFeatures(s *domain.BookSnapshot, f *domain.BookSnapshotFeature) {
	f.Sampled = true
	f.SnapshotTimestampUs = s.ExchangeTimestampUs

	bestBid, bestAsk := s.Bids[0], s.Asks[0]
	if bestBid.IsPresent() && bestAsk.IsPresent() {
		f.MidPrice = (bestBid.Price + bestAsk.Price) / 2
		f.SpreadAbs = bestAsk.Price - bestBid.Price
		if f.MidPrice > 0 {
			f.SpreadBps = f.SpreadAbs / f.MidPrice * bps
		}
	}

	var bidQty, askQty float64
	bidPresent, askPresent := false, false
	for i := range domain.BookDepth {
		bid, ask := s.Bids[i], s.Asks[i]
		if bid.IsPresent() {
			bidQty += bid.Quantity
			bidPresent = true
			if !math.IsNaN(f.MidPrice) && f.MidPrice > 0 {
				f.BidDistanceBps[i] = (f.MidPrice - bid.Price) / f.MidPrice * bps
			}
		}
		if ask.IsPresent() {
			askQty += ask.Quantity
			askPresent = true
			if !math.IsNaN(f.MidPrice) && f.MidPrice > 0 {
				f.AskDistanceBps[i] = (ask.Price - f.MidPrice) / f.MidPrice * bps
			}
		}
		if bid.IsPresent() && ask.IsPresent() && bid.Quantity+ask.Quantity > 0 {
			f.LevelVolumeRatio[i] = bid.Quantity / (bid.Quantity + ask.Quantity)
		}
	}

	if bidPresent && askPresent && bidQty+askQty > 0 {
		f.Imbalance = (bidQty - askQty) / (bidQty + askQty)
	}
	f.BidVWAP = sideVWAP(s.Bids)
	f.AskVWAP = sideVWAP(s.Asks)
}

// sideVWAP is the quantity-weighted price over the present levels of one side.
func sideVWAP(levels [domain.BookDepth]domain.BookLevel) float64 {
	var notional, qty float64
	for _, l := range levels {
		if !l.IsPresent() {
			continue
		}
		notional += l.Price * l.Quantity
		qty += l.Quantity
	}
	if qty == 0 {
		return math.NaN()
	}
	return notional / qty
}

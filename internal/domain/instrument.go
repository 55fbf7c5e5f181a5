package domain

import "sort"

// InstrumentType is the contract kind of an instrument.
type InstrumentType string

const (
	InstrumentSpot      InstrumentType = "spot"
	InstrumentPerpetual InstrumentType = "perpetual"
	InstrumentFuture    InstrumentType = "future"
	InstrumentOption    InstrumentType = "option"
)

// IsValid checks if the instrument type is known.
func (t InstrumentType) IsValid() bool {
	switch t {
	case InstrumentSpot, InstrumentPerpetual, InstrumentFuture, InstrumentOption:
		return true
	}
	return false
}

// Instrument is one row of the instrument registry for a day.
type Instrument struct {
	Key        string         // exchange instrument id, e.g. BTC-PERPETUAL
	Venue      string         // exchange name
	Type       InstrumentType // spot / perpetual / future / option
	BaseAsset  string
	QuoteAsset string
	Underlying string // set for options, empty otherwise
}

// GroupKey returns the underlying key used to group sibling instruments.
// Options group by their underlying; everything else by base asset.
func (i *Instrument) GroupKey() string {
	if i.Type == InstrumentOption && i.Underlying != "" {
		return i.Underlying
	}
	return i.BaseAsset
}

// UnderlyingGroup is the set of instruments sharing one underlying for a day.
// Read-only after construction.
type UnderlyingGroup struct {
	UnderlyingKey string
	Members       []Instrument // sorted by Key
}

// MemberKeys returns the member instrument keys in order.
func (g *UnderlyingGroup) MemberKeys() []string {
	keys := make([]string, len(g.Members))
	for i, m := range g.Members {
		keys[i] = m.Key
	}
	return keys
}

// AvailabilityPair is one (instrument, data type) combination.
type AvailabilityPair struct {
	InstrumentKey string
	DataType      DataType
}

// AvailabilityReport enumerates the raw feeds that were actually persisted for a day.
type AvailabilityReport struct {
	Exchange   string
	DayStartUs int64
	pairs      map[AvailabilityPair]struct{}
}

// NewAvailabilityReport creates an empty report.
func NewAvailabilityReport(exchange string, dayStartUs int64) *AvailabilityReport {
	return &AvailabilityReport{
		Exchange:   exchange,
		DayStartUs: dayStartUs,
		pairs:      make(map[AvailabilityPair]struct{}),
	}
}

// Add marks a pair as available.
func (r *AvailabilityReport) Add(instrumentKey string, dt DataType) {
	if r.pairs == nil {
		r.pairs = make(map[AvailabilityPair]struct{})
	}
	r.pairs[AvailabilityPair{InstrumentKey: instrumentKey, DataType: dt}] = struct{}{}
}

// Has reports whether the pair is available.
func (r *AvailabilityReport) Has(instrumentKey string, dt DataType) bool {
	if r == nil {
		return false
	}
	_, ok := r.pairs[AvailabilityPair{InstrumentKey: instrumentKey, DataType: dt}]
	return ok
}

// Pairs returns all available pairs sorted by instrument then data type.
func (r *AvailabilityReport) Pairs() []AvailabilityPair {
	out := make([]AvailabilityPair, 0, len(r.pairs))
	for p := range r.pairs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].InstrumentKey != out[j].InstrumentKey {
			return out[i].InstrumentKey < out[j].InstrumentKey
		}
		return out[i].DataType < out[j].DataType
	})
	return out
}

// Len returns the number of available pairs.
func (r *AvailabilityReport) Len() int {
	if r == nil {
		return 0
	}
	return len(r.pairs)
}

package domain

import "time"

// UnitStatus is the outcome of one instrument-day unit of work.
type UnitStatus string

const (
	UnitRunning   UnitStatus = "running"
	UnitSucceeded UnitStatus = "succeeded"
	UnitFailed    UnitStatus = "failed"
	UnitSkipped   UnitStatus = "skipped"
)

// UnitRecord is the run-ledger row for one (exchange, instrument, date) unit.
type UnitRecord struct {
	RunID          string
	UnitID         string // deterministic, see idhash.ComputeUnitID
	Exchange       string
	Date           string // YYYY-MM-DD
	InstrumentKey  string
	Status         UnitStatus
	CandleCounts   map[string]int // timeframe -> candles written
	SnapshotCounts map[string]int // timeframe -> book feature rows written
	MissingInputs  []string       // data types that were absent or unreadable
	Errors         []string
	StartedAt      time.Time
	FinishedAt     time.Time
}

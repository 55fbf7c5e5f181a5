package reporting

import "time"

// Report summarises one pipeline run from its ledger records.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	RunID       string
	Exchange    string

	Summary RunSummary

	// Units sorted by date, instrument_key
	Units []UnitRow

	// Missing raw feeds by data type, sorted by data type
	MissingInputs []MissingInputRow

	// Gate skips and failures, in unit order
	Issues []IssueRow
}

// RunSummary contains run-level totals.
type RunSummary struct {
	TotalUnits   int
	Succeeded    int
	Failed       int
	Skipped      int
	DateStart    string // YYYY-MM-DD
	DateEnd      string
	CandlesTotal int
	BookRows     int
}

// UnitRow represents one row in the unit table.
type UnitRow struct {
	Date           string
	InstrumentKey  string
	Status         string
	CandleCounts   string // "15s=5760 1m=1440 ..." in timeframe order
	SnapshotCounts string
	MissingInputs  string // comma separated
	Duration       time.Duration
}

// MissingInputRow counts units that lacked one raw feed.
type MissingInputRow struct {
	DataType string
	Units    int
}

// IssueRow lists one recorded error of a unit.
type IssueRow struct {
	Date          string
	InstrumentKey string
	Status        string
	Message       string
}

package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"
)

// RenderCSV renders the unit table as CSV string.
func RenderCSV(r *Report) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	// Header
	if err := w.Write([]string{"date", "instrument_key", "status", "candle_counts", "snapshot_counts", "missing_inputs", "duration_ms"}); err != nil {
		return "", err
	}

	// Rows
	for _, u := range r.Units {
		err := w.Write([]string{
			u.Date,
			u.InstrumentKey,
			u.Status,
			u.CandleCounts,
			u.SnapshotCounts,
			u.MissingInputs,
			strconv.FormatInt(u.Duration.Milliseconds(), 10),
		})
		if err != nil {
			return "", err
		}
	}

	w.Flush()
	return sb.String(), w.Error()
}

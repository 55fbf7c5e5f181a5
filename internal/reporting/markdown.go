package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Candle Run Report\n\n")
	sb.WriteString(fmt.Sprintf("Run: `%s`\n\n", r.RunID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Exchange | %s |\n", r.Exchange))
	sb.WriteString(fmt.Sprintf("| Dates | %s .. %s |\n", r.Summary.DateStart, r.Summary.DateEnd))
	sb.WriteString(fmt.Sprintf("| Units | %d |\n", r.Summary.TotalUnits))
	sb.WriteString(fmt.Sprintf("| Succeeded | %d |\n", r.Summary.Succeeded))
	sb.WriteString(fmt.Sprintf("| Failed | %d |\n", r.Summary.Failed))
	sb.WriteString(fmt.Sprintf("| Skipped | %d |\n", r.Summary.Skipped))
	sb.WriteString(fmt.Sprintf("| Candles Written | %d |\n", r.Summary.CandlesTotal))
	sb.WriteString(fmt.Sprintf("| Book Rows Written | %d |\n", r.Summary.BookRows))
	sb.WriteString("\n")

	// Missing inputs
	sb.WriteString("## Missing Inputs\n\n")
	if len(r.MissingInputs) > 0 {
		sb.WriteString("| Data Type | Units |\n")
		sb.WriteString("|-----------|-------|\n")
		for _, m := range r.MissingInputs {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", m.DataType, m.Units))
		}
	} else {
		sb.WriteString("Every unit had all raw feeds.\n")
	}
	sb.WriteString("\n")

	// Units
	sb.WriteString("## Units\n\n")
	sb.WriteString("| Date | Instrument | Status | Candles | Book Rows | Missing | Duration |\n")
	sb.WriteString("|------|------------|--------|---------|-----------|---------|----------|\n")
	for _, u := range r.Units {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s |\n",
			u.Date, u.InstrumentKey, u.Status, u.CandleCounts, u.SnapshotCounts, u.MissingInputs,
			u.Duration.Round(time.Millisecond)))
	}
	sb.WriteString("\n")

	// Issues
	if len(r.Issues) > 0 {
		sb.WriteString("## Issues\n\n")
		for _, is := range r.Issues {
			sb.WriteString(fmt.Sprintf("- %s %s (%s): %s\n", is.Date, is.InstrumentKey, is.Status, is.Message))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

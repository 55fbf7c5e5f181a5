// Package columnar reads and writes per-day parquet files whose row groups
// approximate contiguous time windows, so timestamp-scoped reads can skip
// row groups by their min/max statistics.
package columnar

import (
	"fmt"
	"io"
	"sort"

	"github.com/parquet-go/parquet-go"
)

// DefaultRowGroupSize is the target number of rows per row group.
const DefaultRowGroupSize = 100_000

// WriteOptions configures Write.
type WriteOptions struct {
	RowGroupSize int // rows per row group, DefaultRowGroupSize when <= 0
}

// Write sorts rows by ts and writes them as a zstd-compressed parquet file,
// flushing a row group every RowGroupSize rows. rows is not modified.
// Timestamp columns should carry the `delta` tag option so they are
// DELTA_BINARY_PACKED encoded.
func Write[T any](w io.Writer, rows []T, ts func(*T) int64, opts WriteOptions) error {
	size := opts.RowGroupSize
	if size <= 0 {
		size = DefaultRowGroupSize
	}

	sorted := make([]T, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return ts(&sorted[i]) < ts(&sorted[j])
	})

	pw := parquet.NewGenericWriter[T](w,
		parquet.Compression(&parquet.Zstd),
		parquet.MaxRowsPerRowGroup(int64(size)),
		parquet.DataPageStatistics(true),
	)

	for start := 0; start < len(sorted); start += size {
		end := start + size
		if end > len(sorted) {
			end = len(sorted)
		}
		if _, err := pw.Write(sorted[start:end]); err != nil {
			return fmt.Errorf("write rows [%d,%d): %w", start, end, err)
		}
		// one row group per chunk
		if err := pw.Flush(); err != nil {
			return fmt.Errorf("flush row group: %w", err)
		}
	}

	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

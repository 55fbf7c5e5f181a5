package columnar

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/parquet-go/parquet-go"
)

// DefaultBatchSize is the chunk size used when decoding rows.
const DefaultBatchSize = 8192

// ScanObserver is notified after each read with the number of row groups decoded and skipped.
type ScanObserver func(scanned, skipped int)

// Option configures a Reader.
type Option func(*readerConfig)

type readerConfig struct {
	observer ScanObserver
}

// WithScanObserver reports row-group pruning results.
func WithScanObserver(fn ScanObserver) Option {
	return func(c *readerConfig) { c.observer = fn }
}

// Reader reads rows of T from one parquet file using row-group statistics on a
// timestamp column. All read modes return rows ordered by timestamp.
type Reader[T any] struct {
	src       io.ReaderAt
	ts        func(*T) int64
	groups    []RowGroupStats
	statsOK   bool
	numRows   int64
	numGroups int
	rows      *parquet.GenericReader[T]
	observer  ScanObserver
}

// Open inspects the file footer and prepares a reader keyed on column.
// Statistics that are missing or inconsistent switch the reader to full scans.
func Open[T any](src io.ReaderAt, size int64, column string, ts func(*T) int64, opts ...Option) (*Reader[T], error) {
	var cfg readerConfig
	for _, o := range opts {
		o(&cfg)
	}

	f, err := parquet.OpenFile(src, size)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	md := f.Metadata()
	groups, ok := ExtractStats(md, column)
	return &Reader[T]{
		src:       src,
		ts:        ts,
		groups:    groups,
		statsOK:   ok,
		numRows:   f.NumRows(),
		numGroups: len(md.RowGroups),
		rows:      parquet.NewGenericReader[T](src),
		observer:  cfg.observer,
	}, nil
}

// Close releases the decoder.
func (r *Reader[T]) Close() error {
	return r.rows.Close()
}

// NumRows returns the total row count of the file.
func (r *Reader[T]) NumRows() int64 {
	return r.numRows
}

// StatsReliable reports whether row-group pruning is in effect.
func (r *Reader[T]) StatsReliable() bool {
	return r.statsOK
}

// RowGroups returns the per-group statistics, nil when unreliable.
func (r *Reader[T]) RowGroups() []RowGroupStats {
	return r.groups
}

// ReadRange returns rows with timestamp in [startUs, endUs).
func (r *Reader[T]) ReadRange(startUs, endUs int64) ([]T, error) {
	if !r.statsOK {
		return r.ScanRange(startUs, endUs)
	}
	w := Window{StartUs: startUs, EndUs: endUs}
	var out []T
	err := r.readPlanned([]Window{w}, DefaultBatchSize, func(rows []T) error {
		out = append(out, rows...)
		return nil
	})
	return out, err
}

// ReadSparse returns, for each instant, the rows with timestamp in
// [instant-buffer, instant+buffer). Result i corresponds to instants[i].
// Row groups that intersect no window are never decoded.
func (r *Reader[T]) ReadSparse(instants []int64, bufferUs int64) ([][]T, error) {
	if !r.statsOK {
		return r.ScanSparse(instants, bufferUs)
	}
	windows := sparseWindows(instants, bufferUs)
	var candidates []T
	err := r.readPlanned(windows, DefaultBatchSize, func(rows []T) error {
		candidates = append(candidates, rows...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.distribute(candidates, windows), nil
}

// Stream yields rows with timestamp in [startUs, endUs) in batches of at most batchSize.
func (r *Reader[T]) Stream(startUs, endUs int64, batchSize int, fn func([]T) error) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	w := Window{StartUs: startUs, EndUs: endUs}
	if !r.statsOK {
		return r.scan([]Window{w}, batchSize, fn)
	}
	return r.readPlanned([]Window{w}, batchSize, fn)
}

// ScanRange is the full-scan equivalent of ReadRange.
func (r *Reader[T]) ScanRange(startUs, endUs int64) ([]T, error) {
	var out []T
	err := r.scan([]Window{{StartUs: startUs, EndUs: endUs}}, DefaultBatchSize, func(rows []T) error {
		out = append(out, rows...)
		return nil
	})
	return out, err
}

// ScanSparse is the full-scan equivalent of ReadSparse.
func (r *Reader[T]) ScanSparse(instants []int64, bufferUs int64) ([][]T, error) {
	windows := sparseWindows(instants, bufferUs)
	var candidates []T
	err := r.scan(windows, DefaultBatchSize, func(rows []T) error {
		candidates = append(candidates, rows...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.distribute(candidates, windows), nil
}

func sparseWindows(instants []int64, bufferUs int64) []Window {
	windows := make([]Window, len(instants))
	for i, at := range instants {
		windows[i] = Window{StartUs: at - bufferUs, EndUs: at + bufferUs}
	}
	return windows
}

// distribute assigns candidate rows to each window by binary search.
func (r *Reader[T]) distribute(candidates []T, windows []Window) [][]T {
	sort.SliceStable(candidates, func(i, j int) bool {
		return r.ts(&candidates[i]) < r.ts(&candidates[j])
	})
	out := make([][]T, len(windows))
	for i, w := range windows {
		lo := sort.Search(len(candidates), func(k int) bool { return r.ts(&candidates[k]) >= w.StartUs })
		hi := sort.Search(len(candidates), func(k int) bool { return r.ts(&candidates[k]) >= w.EndUs })
		if hi > lo {
			out[i] = append([]T(nil), candidates[lo:hi]...)
		}
	}
	return out
}

// readPlanned decodes only the row groups intersecting windows.
func (r *Reader[T]) readPlanned(windows []Window, batchSize int, fn func([]T) error) error {
	planned := PlanRowGroups(r.groups, windows)
	if r.observer != nil {
		r.observer(len(planned), len(r.groups)-len(planned))
	}

	emit := newBatcher(batchSize, fn)
	for _, gi := range planned {
		g := r.groups[gi]
		if err := r.decode(g.Offset, g.NumRows, windows, emit); err != nil {
			return fmt.Errorf("row group %d: %w", gi, err)
		}
	}
	return emit.flush()
}

// scan decodes every row and filters in memory. Every row group in the
// footer counts as scanned, whether or not its statistics were usable.
func (r *Reader[T]) scan(windows []Window, batchSize int, fn func([]T) error) error {
	if r.observer != nil {
		r.observer(r.numGroups, 0)
	}
	emit := newBatcher(batchSize, fn)
	if err := r.decode(0, r.numRows, windows, emit); err != nil {
		return fmt.Errorf("full scan: %w", err)
	}
	return emit.flush()
}

func (r *Reader[T]) decode(offset, n int64, windows []Window, emit *batcher[T]) error {
	if n <= 0 {
		return nil
	}
	keep := mergeWindows(windows)
	if err := r.rows.SeekToRow(offset); err != nil {
		return fmt.Errorf("seek to row %d: %w", offset, err)
	}

	buf := make([]T, min(int64(DefaultBatchSize), n))
	remaining := n
	for remaining > 0 {
		k := min(int64(len(buf)), remaining)
		got, err := r.rows.Read(buf[:k])
		for i := 0; i < got; i++ {
			if keep.contains(r.ts(&buf[i])) {
				if perr := emit.add(buf[i]); perr != nil {
					return perr
				}
			}
		}
		remaining -= int64(got)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("read rows: %w", err)
		}
		if got == 0 {
			break
		}
	}
	return nil
}

// windowSet is a sorted union of disjoint windows.
type windowSet []Window

func mergeWindows(windows []Window) windowSet {
	ws := make([]Window, 0, len(windows))
	for _, w := range windows {
		if w.EndUs > w.StartUs {
			ws = append(ws, w)
		}
	}
	sort.Slice(ws, func(i, j int) bool { return ws[i].StartUs < ws[j].StartUs })

	var merged windowSet
	for _, w := range ws {
		n := len(merged)
		if n > 0 && w.StartUs <= merged[n-1].EndUs {
			if w.EndUs > merged[n-1].EndUs {
				merged[n-1].EndUs = w.EndUs
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}

func (s windowSet) contains(ts int64) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i].EndUs > ts })
	return i < len(s) && ts >= s[i].StartUs
}

type batcher[T any] struct {
	size int
	buf  []T
	fn   func([]T) error
}

func newBatcher[T any](size int, fn func([]T) error) *batcher[T] {
	return &batcher[T]{size: size, buf: make([]T, 0, size), fn: fn}
}

func (b *batcher[T]) add(row T) error {
	b.buf = append(b.buf, row)
	if len(b.buf) >= b.size {
		return b.flush()
	}
	return nil
}

func (b *batcher[T]) flush() error {
	if len(b.buf) == 0 {
		return nil
	}
	out := b.buf
	b.buf = make([]T, 0, b.size)
	return b.fn(out)
}

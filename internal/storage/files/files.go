// Package files implements the storage interfaces on parquet objects laid out
// by the objectstore key scheme.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"

	"market-candle-lab/internal/columnar"
	"market-candle-lab/internal/objectstore"
	"market-candle-lab/internal/storage"
)

// Options configures the parquet-backed stores.
type Options struct {
	RowGroupSize int                   // rows per row group, columnar default when zero
	Observer     columnar.ScanObserver // optional row-group pruning observer
}

// putRows writes rows as one parquet object unless the key already exists.
func putRows[T any](ctx context.Context, objects *objectstore.Store, key string, rows []T, ts func(*T) int64, opts Options) error {
	exists, err := objects.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check %s: %w", key, err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}
	return objects.Put(ctx, key, func(w io.Writer) error {
		return columnar.Write(w, rows, ts, columnar.WriteOptions{RowGroupSize: opts.RowGroupSize})
	})
}

// openRows opens a parquet object keyed on column. The returned close func
// releases both the reader and the object.
func openRows[T any](ctx context.Context, objects *objectstore.Store, key, column string, ts func(*T) int64, opts Options) (*columnar.Reader[T], func(), error) {
	obj, err := objects.Open(ctx, key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, nil, err
	}

	var ropts []columnar.Option
	if opts.Observer != nil {
		ropts = append(ropts, columnar.WithScanObserver(opts.Observer))
	}
	r, err := columnar.Open[T](obj, obj.Size(), column, ts, ropts...)
	if err != nil {
		obj.Close()
		return nil, nil, fmt.Errorf("open %s: %w", key, err)
	}
	return r, func() {
		_ = r.Close()
		_ = obj.Close()
	}, nil
}

// readRange reads rows in [startUs, endUs) and converts them.
func readRange[T, D any](ctx context.Context, objects *objectstore.Store, key, column string, ts func(*T) int64, conv func(*T) D, startUs, endUs int64, opts Options) ([]D, error) {
	r, closeFn, err := openRows[T](ctx, objects, key, column, ts, opts)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	rows, err := r.ReadRange(startUs, endUs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	out := make([]D, len(rows))
	for i := range rows {
		out[i] = conv(&rows[i])
	}
	return out, nil
}

// Package objectstore maps the deterministic object key scheme onto a
// filesystem. Puts are all-or-nothing: the object is written to a temporary
// key and renamed into place.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"market-candle-lab/internal/domain"
)

var (
	// ErrNotExist is returned when a key has no object.
	ErrNotExist = errors.New("object does not exist")

	// ErrInvalidKey is returned for a key that is empty, absolute or leaves the root.
	ErrInvalidKey = errors.New("invalid object key")
)

// Object is an opened object. Callers must Close it.
type Object interface {
	io.ReaderAt
	io.Reader
	io.Seeker
	io.Closer
	Size() int64
}

// Store is a key/object store rooted at a directory of an afero filesystem.
type Store struct {
	fs   afero.Fs
	root string
}

// New creates a store on fs rooted at root.
func New(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: root}
}

// NewOS creates a store on the local filesystem.
func NewOS(root string) *Store {
	return New(afero.NewOsFs(), root)
}

func (s *Store) path(key string) (string, error) {
	clean := path.Clean(key)
	if key == "" || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") || strings.ContainsRune(key, '\\') {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Put writes an object through write. The object becomes visible only if
// write and the final rename succeed.
func (s *Store) Put(ctx context.Context, key string, write func(io.Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	final, err := s.path(key)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", key, err)
	}

	tmp := final + ".tmp-" + uuid.NewString()
	f, err := s.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp object for %s: %w", key, err)
	}

	if err := write(f); err != nil {
		f.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := s.fs.Rename(tmp, final); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("commit %s: %w", key, err)
	}
	return nil
}

// Open opens an object for reading. Returns ErrNotExist if absent.
func (s *Store) Open(ctx context.Context, key string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, key)
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return &object{File: f, size: info.Size()}, nil
}

// Exists reports whether key has an object.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	return afero.Exists(s.fs, p)
}

// Delete removes an object. Deleting a missing key is not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	err = s.fs.Remove(p)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// List returns the keys under prefix in lexical order. Temporary objects are hidden.
func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	base, err := s.path(prefix)
	if err != nil {
		return nil, err
	}
	ok, err := afero.DirExists(s.fs, base)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var keys []string
	err = afero.Walk(s.fs, base, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.Contains(info.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

type object struct {
	afero.File
	size int64
}

func (o *object) Size() int64 { return o.size }

// Key kinds.
const (
	KindRaw          = "raw"
	KindCandles      = "candles"
	KindBookFeatures = "book_snapshot_features"
)

const objectExt = ".parquet"

// RawKey is the object key of one raw feed file.
func RawKey(exchange string, dt domain.DataType, date, instrument string) string {
	return path.Join(KindRaw, escapeSegment(exchange), dt.String(), date, escapeSegment(instrument)+objectExt)
}

// CandleKey is the object key of one day of candles.
func CandleKey(exchange string, tf domain.Timeframe, date, instrument string) string {
	return path.Join(KindCandles, escapeSegment(exchange), tf.String(), date, escapeSegment(instrument)+objectExt)
}

// BookFeatureKey is the object key of one day of sampled book features.
func BookFeatureKey(exchange string, tf domain.Timeframe, date, instrument string) string {
	return path.Join(KindBookFeatures, escapeSegment(exchange), tf.String(), date, escapeSegment(instrument)+objectExt)
}

// InstrumentFromKey recovers the instrument key from the file name of key.
func InstrumentFromKey(key string) (string, error) {
	name := path.Base(key)
	if !strings.HasSuffix(name, objectExt) {
		return "", fmt.Errorf("%w: %q has no %s suffix", ErrInvalidKey, key, objectExt)
	}
	inst, err := url.PathUnescape(strings.TrimSuffix(name, objectExt))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidKey, key, err)
	}
	return inst, nil
}

// escapeSegment keeps a name inside one path segment: separators and '%' are
// percent-encoded, and "." or ".." have their dots encoded.
func escapeSegment(name string) string {
	esc := url.PathEscape(name)
	if esc == "." || esc == ".." {
		esc = strings.ReplaceAll(esc, ".", "%2E")
	}
	return esc
}

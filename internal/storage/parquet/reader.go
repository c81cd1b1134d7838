package parquet

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

const readBufferSize = 1 << 20

// Reader reads records of one row type from a Parquet file.
type Reader[R any] struct {
	file   *os.File
	reader *parquet.GenericReader[R]
	path   string
}

// NewReader opens a Parquet file for reading.
func NewReader[R any](path string) (*Reader[R], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	// Footer and schema errors surface here; NewGenericReader panics on them.
	pf, err := parquet.OpenFile(f, info.Size(), parquet.ReadBufferSize(readBufferSize))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}

	return &Reader[R]{
		file:   f,
		reader: parquet.NewGenericReader[R](pf),
		path:   path,
	}, nil
}

// ReadAll reads every remaining record.
func (r *Reader[R]) ReadAll() ([]R, error) {
	rows := make([]R, r.reader.NumRows())

	n, err := r.reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	return rows[:n], nil
}

// NumRows returns the total number of rows in the file.
func (r *Reader[R]) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *Reader[R]) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *Reader[R]) Path() string {
	return r.path
}

// ReadRaw reads a raw export file.
func ReadRaw(path string) ([]RawRecord, error) {
	r, err := NewReader[RawRecord](path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadAll()
}

// ReadBuckets reads a bucket export file.
func ReadBuckets(path string) ([]BucketRecord, error) {
	r, err := NewReader[BucketRecord](path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadAll()
}

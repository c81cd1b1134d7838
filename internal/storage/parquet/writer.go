package parquet

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/hostwatch/internal/errors"
)

// Options configures the Parquet writer.
type Options struct {
	// Compression defaults to zstd when empty.
	Compression Compression

	// RowGroupSize is the maximum number of rows buffered per row group.
	RowGroupSize int64
}

// Compression names a Parquet codec.
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionSnappy Compression = "snappy"
	CompressionZstd   Compression = "zstd"
	CompressionLZ4    Compression = "lz4"
	CompressionGzip   Compression = "gzip"
)

var codecs = map[Compression]compress.Codec{
	CompressionNone:   &parquet.Uncompressed,
	CompressionSnappy: &parquet.Snappy,
	CompressionZstd:   &parquet.Zstd,
	CompressionLZ4:    &parquet.Lz4Raw,
	CompressionGzip:   &parquet.Gzip,
}

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{
		Compression:  CompressionZstd,
		RowGroupSize: 100000,
	}
}

// ParseCompression resolves a codec name, case-insensitively.
func ParseCompression(s string) (Compression, error) {
	c := Compression(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return CompressionZstd, nil
	}
	if _, ok := codecs[c]; !ok {
		return "", errors.NewInvalidValue("compression", s, "want none, snappy, zstd, lz4 or gzip")
	}
	return c, nil
}

func (c Compression) codec() compress.Codec {
	if codec, ok := codecs[c]; ok {
		return codec
	}
	return &parquet.Zstd
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = errors.New("parquet writer is closed")

// Writer writes records of one row type to a Parquet file.
type Writer[R any] struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[R]
	rowCount int64
	closed   bool
}

// NewWriter creates the file (and its directory) and opens a writer on it.
func NewWriter[R any](path string, opts Options) (*Writer[R], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writerOpts := []parquet.WriterOption{
		parquet.Compression(opts.Compression.codec()),
	}
	if opts.RowGroupSize > 0 {
		writerOpts = append(writerOpts, parquet.MaxRowsPerRowGroup(opts.RowGroupSize))
	}

	return &Writer[R]{
		path:   path,
		file:   f,
		writer: parquet.NewGenericWriter[R](f, writerOpts...),
	}, nil
}

// Write appends records to the file.
func (w *Writer[R]) Write(rows []R) error {
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close flushes the footer and closes the file.
func (w *Writer[R]) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *Writer[R]) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *Writer[R]) Path() string {
	return w.path
}

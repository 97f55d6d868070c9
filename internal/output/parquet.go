package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// ParquetWriter writes records of type T to a zstd-compressed Parquet file.
// Data lands in a temporary sibling first; Close fsyncs and renames it into
// place, so a reader never observes a half-written file.
type ParquetWriter[T any] struct {
	path   string
	tmp    *os.File
	writer *parquet.GenericWriter[T]
	count  int64
}

// NewParquetWriter creates the parent directory and a temporary file next to path.
func NewParquetWriter[T any](path string) (*ParquetWriter[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dir for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create parquet file: %w", err)
	}
	w := parquet.NewGenericWriter[T](tmp,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedDefault}),
		parquet.PageBufferSize(8*1024),
		parquet.DataPageStatistics(true),
		parquet.CreatedBy("pricepanel", "1.0", ""),
	)
	return &ParquetWriter[T]{path: path, tmp: tmp, writer: w}, nil
}

// Write writes a batch of rows.
func (w *ParquetWriter[T]) Write(rows []T) (int, error) {
	n, err := w.writer.Write(rows)
	w.count += int64(n)
	if err != nil {
		return n, fmt.Errorf("write parquet rows: %w", err)
	}
	return n, nil
}

// Count returns the number of rows written so far.
func (w *ParquetWriter[T]) Count() int64 { return w.count }

// Close flushes, fsyncs and atomically renames the file into place. The
// containing directory is fsynced so the rename itself is durable.
func (w *ParquetWriter[T]) Close() error {
	if err := w.writer.Close(); err != nil {
		w.Abort()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	if err := w.tmp.Sync(); err != nil {
		w.Abort()
		return fmt.Errorf("sync parquet file: %w", err)
	}
	if err := w.tmp.Close(); err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("close parquet file: %w", err)
	}
	if err := os.Rename(w.tmp.Name(), w.path); err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("rename parquet file: %w", err)
	}
	return SyncDir(filepath.Dir(w.path))
}

// Abort discards the temporary file.
func (w *ParquetWriter[T]) Abort() {
	w.tmp.Close()
	os.Remove(w.tmp.Name())
}

// WriteParquet writes rows to path in one call.
func WriteParquet[T any](path string, rows []T) error {
	w, err := NewParquetWriter[T](path)
	if err != nil {
		return err
	}
	if _, err := w.Write(rows); err != nil {
		w.Abort()
		return err
	}
	return w.Close()
}

// SyncDir fsyncs a directory so that entries created or renamed in it survive a crash.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir for sync: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir %s: %w", dir, err)
	}
	return nil
}

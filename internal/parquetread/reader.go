package parquetread

import (
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

// Reader wraps a parquet GenericReader for streaming records of type T. When
// the file schema is wider than T, only T's columns are materialized.
type Reader[T any] struct {
	file   *os.File
	pf     *parquet.File
	reader *parquet.GenericReader[T]
}

// Open opens a Parquet file and returns a streaming Reader.
func Open[T any](path string) (*Reader[T], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat parquet file: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	r, err := newGenericReader[T](pf)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Reader[T]{file: f, pf: pf, reader: r}, nil
}

// newGenericReader converts the panic parquet-go raises when the file schema
// cannot be converted to T into an error.
func newGenericReader[T any](pf *parquet.File) (r *parquet.GenericReader[T], err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("incompatible parquet schema: %v", p)
		}
	}()
	return parquet.NewGenericReader[T](pf), nil
}

// NumRows returns the total number of rows in the Parquet file.
func (r *Reader[T]) NumRows() int64 {
	return r.reader.NumRows()
}

// Read reads up to len(rows) records into the provided slice.
// Returns the number of rows read and io.EOF when done.
func (r *Reader[T]) Read(rows []T) (int, error) {
	n, err := r.reader.Read(rows)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("read parquet rows: %w", err)
	}
	return n, err
}

// Schema returns the schema of the file on disk, for validation.
func (r *Reader[T]) Schema() *parquet.Schema {
	return r.pf.Schema()
}

// Close releases all resources.
func (r *Reader[T]) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// ForEach streams every row of path through fn in batches of batchSize.
// fn's slice is reused between calls but zeroed before each read, so
// pointer fields of rows copied out by fn are never overwritten.
func ForEach[T any](path string, batchSize int, fn func([]T) error) (int64, error) {
	r, err := Open[T](path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	buf := make([]T, batchSize)
	var total int64
	for {
		clear(buf)
		n, readErr := r.Read(buf)
		if n > 0 {
			total += int64(n)
			if err := fn(buf[:n]); err != nil {
				return total, err
			}
		}
		if readErr == io.EOF {
			return total, nil
		}
		if readErr != nil {
			return total, fmt.Errorf("%s at row %d: %w", path, total, readErr)
		}
	}
}

// ReadAll loads every row of path.
func ReadAll[T any](path string) ([]T, error) {
	var out []T
	_, err := ForEach[T](path, 1024, func(rows []T) error {
		out = append(out, rows...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

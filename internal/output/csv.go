package output

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
)

// CSVWriter writes a header plus one line per record. Paths ending in ".gz"
// are compressed with pgzip.
type CSVWriter struct {
	path  string
	file  *os.File
	buf   *bufio.Writer
	gz    *pgzip.Writer
	csv   *csv.Writer
	count int64
}

// NewCSVWriter creates path (and its directory) and writes the header.
func NewCSVWriter(path string, header []string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}
	w := &CSVWriter{path: path, file: f, buf: bufio.NewWriterSize(f, 256*1024)}

	var dst io.Writer = w.buf
	if strings.HasSuffix(path, ".gz") {
		w.gz = pgzip.NewWriter(w.buf)
		dst = w.gz
	}
	w.csv = csv.NewWriter(dst)
	if err := w.csv.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return w, nil
}

// Write appends one record.
func (w *CSVWriter) Write(record []string) error {
	if err := w.csv.Write(record); err != nil {
		return fmt.Errorf("write csv record: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of records written, header excluded.
func (w *CSVWriter) Count() int64 { return w.count }

// Path returns the destination path.
func (w *CSVWriter) Path() string { return w.path }

// Close flushes every layer and closes the file.
func (w *CSVWriter) Close() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.file.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			w.file.Close()
			return fmt.Errorf("close gzip: %w", err)
		}
	}
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("flush file: %w", err)
	}
	return w.file.Close()
}

// Record is anything that renders itself as a CSV line.
type Record interface {
	CSVValues() []string
}

// WriteCSV writes header and rows to path and returns the row count.
func WriteCSV[T any, P interface {
	*T
	Record
}](path string, header []string, rows []T) (int64, error) {
	w, err := NewCSVWriter(path, header)
	if err != nil {
		return 0, err
	}
	for i := range rows {
		if err := w.Write(P(&rows[i]).CSVValues()); err != nil {
			w.Close()
			return w.Count(), err
		}
	}
	return w.Count(), w.Close()
}

// OpenCSV opens a CSV file for reading, transparently decompressing ".gz".
// The returned closer releases the file and any gzip reader.
func OpenCSV(path string) (*csv.Reader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open csv: %w", err)
	}
	if !strings.HasSuffix(path, ".gz") {
		r := csv.NewReader(bufio.NewReaderSize(f, 256*1024))
		r.FieldsPerRecord = -1
		return r, f, nil
	}
	gz, err := pgzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("open gzip: %w", err)
	}
	r := csv.NewReader(gz)
	r.FieldsPerRecord = -1
	return r, multiCloser{gz, f}, nil
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

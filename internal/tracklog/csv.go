// Package tracklog persists per-cycle pose history: a flat CSV log for
// offline analysis and a SQLite recorder for queryable run archives.
package tracklog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
)

// CSVLogger writes the cycle log as CSV: one header row, then one data
// row per cycle. Rows are flushed as they arrive so a crash loses at
// most the in-flight row.
type CSVLogger struct {
	mu      sync.Mutex
	w       *csv.Writer
	closer  io.Closer
	columns int
}

// NewCSVLogger wraps an io.Writer. The caller keeps ownership of the
// underlying writer.
func NewCSVLogger(w io.Writer) *CSVLogger {
	return &CSVLogger{w: csv.NewWriter(w)}
}

// OpenCSVLogger creates or truncates a CSV log file.
func OpenCSVLogger(path string) (*CSVLogger, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create cycle log: %w", err)
	}
	l := NewCSVLogger(f)
	l.closer = f
	return l, nil
}

// WriteHeader writes the column row and pins the schema width: every
// subsequent row must carry the same number of fields.
func (l *CSVLogger) WriteHeader(cols []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.columns = len(cols)
	if err := l.w.Write(cols); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

// WriteRow appends one cycle record.
func (l *CSVLogger) WriteRow(fields []float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.columns != 0 && len(fields) != l.columns {
		return fmt.Errorf("row has %d fields, header has %d columns", len(fields), l.columns)
	}

	record := make([]string, len(fields))
	for i, v := range fields {
		record[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	if err := l.w.Write(record); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

// Close flushes and closes the underlying file, if this logger owns one.
func (l *CSVLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return err
	}
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

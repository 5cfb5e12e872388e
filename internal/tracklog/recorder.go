package tracklog

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// flushEvery is the number of buffered rows per insert transaction.
// At 250 Hz a batch lands roughly once a second.
const flushEvery = 256

// Recorder archives cycle records into SQLite, one table row per cycle,
// tagged with a per-run UUID so multiple sessions share one database.
// Rows are buffered and written in batched transactions; the 250 Hz
// loop must never wait on disk.
type Recorder struct {
	db    *sql.DB
	runID string

	mu      sync.Mutex
	columns []string
	insert  string
	pending [][]float64
	closed  bool
}

// NewRecorder opens (or creates) the database at path and registers a
// new run.
func NewRecorder(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recorder database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id     TEXT PRIMARY KEY,
			started    TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create runs table: %w", err)
	}

	r := &Recorder{db: db, runID: uuid.NewString()}
	if _, err := db.Exec(`INSERT INTO runs (run_id) VALUES (?)`, r.runID); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register run: %w", err)
	}
	return r, nil
}

// RunID returns the UUID tagging this session's rows.
func (r *Recorder) RunID() string { return r.runID }

// WriteHeader creates the cycles table from the column schema. Must be
// called once before WriteRow.
func (r *Recorder) WriteHeader(cols []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(cols) == 0 {
		return fmt.Errorf("empty column schema")
	}
	for _, c := range cols {
		if !validColumnName(c) {
			return fmt.Errorf("invalid column name %q", c)
		}
	}

	defs := make([]string, 0, len(cols))
	marks := make([]string, 0, len(cols)+1)
	quoted := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		defs = append(defs, fmt.Sprintf("%q DOUBLE", c))
		quoted = append(quoted, fmt.Sprintf("%q", c))
		marks = append(marks, "?")
	}
	quoted = append(quoted, "run_id")
	marks = append(marks, "?")

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS cycles (
			%s,
			run_id     TEXT,
			timestamp  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
	`, strings.Join(defs, ",\n\t\t\t"))
	if _, err := r.db.Exec(ddl); err != nil {
		return fmt.Errorf("failed to create cycles table: %w", err)
	}

	r.columns = append([]string(nil), cols...)
	r.insert = fmt.Sprintf("INSERT INTO cycles (%s) VALUES (%s)",
		strings.Join(quoted, ", "), strings.Join(marks, ", "))
	return nil
}

// WriteRow buffers one cycle record, flushing a full batch to disk.
func (r *Recorder) WriteRow(fields []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("recorder is closed")
	}
	if r.insert == "" {
		return fmt.Errorf("WriteHeader must be called before WriteRow")
	}
	if len(fields) != len(r.columns) {
		return fmt.Errorf("row has %d fields, schema has %d columns", len(fields), len(r.columns))
	}

	r.pending = append(r.pending, append([]float64(nil), fields...))
	if len(r.pending) < flushEvery {
		return nil
	}
	return r.flushLocked()
}

// Flush writes all buffered rows immediately.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked()
}

func (r *Recorder) flushLocked() error {
	if len(r.pending) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin batch: %w", err)
	}
	stmt, err := tx.Prepare(r.insert)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}

	args := make([]interface{}, len(r.columns)+1)
	for _, row := range r.pending {
		for i, v := range row {
			args[i] = v
		}
		args[len(args)-1] = r.runID
		if _, err := stmt.Exec(args...); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("failed to insert cycle row: %w", err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	r.pending = r.pending[:0]
	return nil
}

// Close drains the buffer and closes the database.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	flushErr := r.flushLocked()
	if err := r.db.Close(); err != nil {
		return err
	}
	return flushErr
}

// validColumnName restricts schema identifiers to word characters so
// header strings can be embedded in DDL safely.
func validColumnName(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		ok := c == '_' ||
			(c >= 'a' && c <= 'z') ||
			(c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9')
		if !ok {
			return false
		}
	}
	return true
}

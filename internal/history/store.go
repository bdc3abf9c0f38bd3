// Package history persists a local audit trail of batch runs. Every run
// records what operation ran, over how many channels, and how it ended, so
// a long unattended processing session can be reviewed afterwards.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/zjrosen/spmbatch/internal/batch"
	"github.com/zjrosen/spmbatch/internal/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	operation TEXT NOT NULL,
	outcome TEXT NOT NULL,
	selected INTEGER NOT NULL,
	total INTEGER NOT NULL,
	succeeded INTEGER NOT NULL,
	errors TEXT NOT NULL DEFAULT '[]',
	started_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Run is one recorded batch execution.
type Run struct {
	ID         int64
	Operation  string
	Outcome    string
	Selected   int
	Total      int
	Succeeded  int
	Errors     []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store is a SQLite-backed run log.
type Store struct {
	db *sql.DB
}

// Open creates the parent directory if needed, opens the database and
// ensures the schema exists. WAL mode keeps concurrent readers cheap.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	log.Debug(log.CatHistory, "opening history database", "path", path)
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Record inserts one finished run derived from a batch report.
func (s *Store) Record(operation string, report batch.Report, started, finished time.Time) (int64, error) {
	errs := make([]string, 0, len(report.Errors))
	for _, ie := range report.Errors {
		errs = append(errs, ie.Error())
	}
	encoded, err := json.Marshal(errs)
	if err != nil {
		return 0, fmt.Errorf("encode run errors: %w", err)
	}

	result, err := s.db.Exec(
		`INSERT INTO runs (operation, outcome, selected, total, succeeded, errors, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		operation, report.Outcome().String(),
		report.Selected, report.Total, report.Succeeded,
		string(encoded), started.Unix(), finished.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read run id: %w", err)
	}
	log.Info(log.CatHistory, "recorded run", "id", id, "operation", operation, "outcome", report.Outcome())
	return id, nil
}

// List returns the most recent runs, newest first. A limit of zero or less
// returns everything.
func (s *Store) List(limit int) ([]Run, error) {
	query := `SELECT id, operation, outcome, selected, total, succeeded, errors, started_at, finished_at
	          FROM runs ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			errsJSON string
			started  int64
			finished int64
		)
		if err := rows.Scan(&r.ID, &r.Operation, &r.Outcome, &r.Selected, &r.Total,
			&r.Succeeded, &errsJSON, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(errsJSON), &r.Errors); err != nil {
			return nil, fmt.Errorf("decode run errors: %w", err)
		}
		r.StartedAt = time.Unix(started, 0)
		r.FinishedAt = time.Unix(finished, 0)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Persistent history of ingestion runs, one row per run, in an embedded
// sqlite database. Replaces print-only run summaries with something the
// operator can query after the fact.
package runlog

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"parliasearch/internal/pkg/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS ingest_runs (
    id          TEXT PRIMARY KEY,
    source      TEXT NOT NULL,
    indexed     INTEGER NOT NULL,
    rejected    INTEGER NOT NULL,
    duplicates  INTEGER NOT NULL,
    errors      TEXT NOT NULL DEFAULT '',
    started_at  TEXT NOT NULL,
    finished_at TEXT NOT NULL
);`

// One recorded run.
type Entry struct {
	ID         string
	Source     string
	Indexed    int
	Rejected   int
	Duplicates int
	Errors     []string
	StartedAt  time.Time
	FinishedAt time.Time
}

type Store struct {
	db *sql.DB
}

// Opens (and if needed initializes) the run database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Persists one run summary and returns its generated id.
func (s *Store) Record(ctx context.Context, source string, summary pipeline.Summary, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, source, indexed, rejected, duplicates, errors, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, source,
		summary.Indexed, summary.Rejected, summary.Duplicates,
		strings.Join(summary.Errors, "\n"),
		startedAt.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", err
	}
	return id, nil
}

// Returns the most recent runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, indexed, rejected, duplicates, errors, started_at, finished_at
		 FROM ingest_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var errs, started, finished string
		if err := rows.Scan(&e.ID, &e.Source, &e.Indexed, &e.Rejected, &e.Duplicates, &errs, &started, &finished); err != nil {
			return nil, err
		}
		if errs != "" {
			e.Errors = strings.Split(errs, "\n")
		}
		e.StartedAt, _ = time.Parse(time.RFC3339, started)
		e.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		out = append(out, e)
	}
	return out, rows.Err()
}

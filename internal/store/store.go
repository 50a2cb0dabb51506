// Package store keeps a history of search runs in SQLite so results can be
// compared across sessions.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/OpenTraceLab/OpenTraceVmin/pkg/datalog"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/search"
)

//go:embed schema.sql
var schemaSQL string

// Run is one stored search run.
type Run struct {
	ID        string
	Name      string
	StartedAt time.Time
	Passed    bool
	Targets   []string
	Results   int
}

// Result is one stored repetition record.
type Result struct {
	RunID           string
	RepetitionIndex int
	Suffix          string
	Payload         string
	Patterns        string
	Increments      string
	Passed          bool
	Exhausted       bool
	Overshoot       bool
}

// Record decodes the stored main payload.
func (r Result) Record() (*datalog.Record, error) {
	return datalog.ParsePayload(r.Payload)
}

// Store manages the history database.
type Store struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// Open creates or opens the database at dbPath. ":memory:" opens a private
// in-memory database.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes
	// writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA journal_mode=WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath, now: time.Now}, nil
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordRun stores every result of one run and returns the new run ID.
func (s *Store) RecordRun(ctx context.Context, name string, targets []string, passed bool, results []*search.Result, f datalog.Formatter) (string, error) {
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, name, started_at, passed, targets) VALUES (?, ?, ?, ?, ?)`,
		id, name, s.now().UTC().Format(time.RFC3339Nano), passed, strings.Join(targets, ","))
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for _, r := range results {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO results (run_id, repetition_index, suffix, payload, patterns, increments, passed, exhausted, overshoot)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, r.RepetitionIndex, r.Suffix, f.Payload(r), f.PatternPayload(r), f.IncrementPayload(r),
			r.Passed, r.Exhausted, r.Overshoot)
		if err != nil {
			return "", fmt.Errorf("insert result %d: %w", r.RepetitionIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// ListRuns returns the most recent runs first. A limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT r.id, r.name, r.started_at, r.passed, r.targets, COUNT(x.id)
		FROM runs r LEFT JOIN results x ON x.run_id = r.id
		GROUP BY r.id ORDER BY r.started_at DESC, r.rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run     Run
			started string
			targets string
		)
		if err := rows.Scan(&run.ID, &run.Name, &started, &run.Passed, &targets, &run.Results); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt, err = time.Parse(time.RFC3339Nano, started)
		if err != nil {
			return nil, fmt.Errorf("run %s: bad timestamp %q: %w", run.ID, started, err)
		}
		if targets != "" {
			run.Targets = strings.Split(targets, ",")
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Results returns the stored results of one run in repetition order.
func (s *Store) Results(ctx context.Context, runID string) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, repetition_index, suffix, payload, patterns, increments, passed, exhausted, overshoot
		 FROM results WHERE run_id = ? ORDER BY repetition_index, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.RunID, &r.RepetitionIndex, &r.Suffix, &r.Payload, &r.Patterns, &r.Increments,
			&r.Passed, &r.Exhausted, &r.Overshoot); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Package store keeps the history of finished runs so interrupted sweeps can
// be resumed.
package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Record is the outcome of one run of a sweep.
type Record struct {
	SweepKey   string
	SweepID    string
	Index      int
	Algorithm  string
	EnvID      string
	Seed       int
	Status     string
	Attempts   int
	ExitCode   int
	StartedAt  time.Time
	FinishedAt time.Time
	PeakRSS    uint64
	Error      string
}

// Duration is the wall clock time of the last attempt.
func (r Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

// SaveRecord inserts or replaces the record for (sweep key, run index).
func (s *SQLiteStore) SaveRecord(ctx context.Context, r Record) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (sweep_key, run_index, sweep_id, algorithm, env_id, seed, status,
			attempts, exit_code, started_at, finished_at, peak_rss, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sweep_key, run_index) DO UPDATE SET
			sweep_id = excluded.sweep_id,
			algorithm = excluded.algorithm,
			env_id = excluded.env_id,
			seed = excluded.seed,
			status = excluded.status,
			attempts = excluded.attempts,
			exit_code = excluded.exit_code,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			peak_rss = excluded.peak_rss,
			error = excluded.error
	`, r.SweepKey, r.Index, r.SweepID, r.Algorithm, r.EnvID, r.Seed, r.Status,
		r.Attempts, r.ExitCode, r.StartedAt.UnixMicro(), r.FinishedAt.UnixMicro(),
		int64(r.PeakRSS), r.Error)
	return err
}

// IndicesWithStatus returns the run indices of a sweep whose last recorded
// status matches.
func (s *SQLiteStore) IndicesWithStatus(ctx context.Context, sweepKey, status string) (map[int]bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT run_index FROM runs WHERE sweep_key = ? AND status = ?`, sweepKey, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]bool)
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, err
		}
		out[idx] = true
	}
	return out, rows.Err()
}

// ListRecords returns up to limit records, most recently finished first.
func (s *SQLiteStore) ListRecords(ctx context.Context, limit int) ([]Record, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT sweep_key, run_index, sweep_id, algorithm, env_id, seed, status,
			attempts, exit_code, started_at, finished_at, peak_rss, error
		FROM runs
		ORDER BY finished_at DESC, sweep_key, run_index
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                 Record
			started, finished int64
			peakRSS           int64
		)
		if err := rows.Scan(&r.SweepKey, &r.Index, &r.SweepID, &r.Algorithm, &r.EnvID, &r.Seed, &r.Status,
			&r.Attempts, &r.ExitCode, &started, &finished, &peakRSS, &r.Error); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMicro(started)
		r.FinishedAt = time.UnixMicro(finished)
		r.PeakRSS = uint64(peakRSS)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errors.New("sqlite store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			sweep_key TEXT NOT NULL,
			run_index INTEGER NOT NULL,
			sweep_id TEXT NOT NULL,
			algorithm TEXT NOT NULL,
			env_id TEXT NOT NULL,
			seed INTEGER NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			exit_code INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			peak_rss INTEGER NOT NULL,
			error TEXT NOT NULL,
			PRIMARY KEY (sweep_key, run_index)
		)
	`)
	return err
}

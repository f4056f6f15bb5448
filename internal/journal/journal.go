// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package journal persists run summaries in SQLite.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const schemaVersion = 1

// CameraResult is the persisted outcome of one camera.
type CameraResult struct {
	Camera       string
	Outcome      string
	Completed    int
	Skipped      int
	Failed       int
	MediaSeconds int64
	Error        string
}

// Run is one orchestrator run.
type Run struct {
	ID         string
	Mode       string
	StartedAt  time.Time
	FinishedAt time.Time
	Cameras    []CameraResult
}

// Succeeded returns the number of cameras whose outcome is "succeeded".
func (r Run) Succeeded() int {
	n := 0
	for _, c := range r.Cameras {
		if c.Outcome == "succeeded" {
			n++
		}
	}
	return n
}

// Store is the SQLite journal.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the journal at path and applies migrations.
func Open(path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS camera_results (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		camera TEXT NOT NULL,
		outcome TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		media_seconds INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, camera)
	);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordRun stores run and its camera results in one transaction.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, mode, started_at, finished_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Mode, run.StartedAt.UTC().Format(time.RFC3339Nano), run.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal: insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO camera_results (run_id, camera, outcome, completed, skipped, failed, media_seconds, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range run.Cameras {
		if _, err := stmt.ExecContext(ctx, run.ID, c.Camera, c.Outcome, c.Completed, c.Skipped, c.Failed, c.MediaSeconds, c.Error); err != nil {
			return fmt.Errorf("journal: insert result %s/%s: %w", run.ID, c.Camera, err)
		}
	}
	return tx.Commit()
}

// Runs returns up to limit runs, newest first, with their camera results
// ordered by camera name.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mode, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Mode, &started, &finished); err != nil {
			rows.Close()
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range runs {
		cams, err := s.cameraResults(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Cameras = cams
	}
	return runs, nil
}

func (s *Store) cameraResults(ctx context.Context, runID string) ([]CameraResult, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT camera, outcome, completed, skipped, failed, media_seconds, error
	FROM camera_results WHERE run_id = ? ORDER BY camera`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CameraResult
	for rows.Next() {
		var c CameraResult
		if err := rows.Scan(&c.Camera, &c.Outcome, &c.Completed, &c.Skipped, &c.Failed, &c.MediaSeconds, &c.Error); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

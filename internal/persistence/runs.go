package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when recording a task for an unknown run.
var ErrRunNotFound = errors.New("run not found")

// StartRun records a new run and returns its ID.
func (s *SQLiteStore) StartRun(ctx context.Context, phase, trigger, fingerprint string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, phase, trigger, config_fingerprint, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, phase, trigger, fingerprint, time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// RecordTask stores the outcome of one task in a run.
func (s *SQLiteStore) RecordTask(ctx context.Context, tr TaskRun) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	artifacts := tr.Artifacts
	if artifacts == nil {
		artifacts = []string{}
	}
	encoded, err := json.Marshal(artifacts)
	if err != nil {
		return fmt.Errorf("failed to encode artifacts: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, tr.RunID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrRunNotFound, tr.RunID)
	}
	if err != nil {
		return fmt.Errorf("failed to check run existence: %w", err)
	}

	started := tr.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_runs (run_id, task_id, status, message, started_at, duration_ms, artifacts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, tr.RunID, tr.TaskID, tr.Status, tr.Message, started.UnixMilli(), tr.Duration.Milliseconds(), string(encoded))
	if err != nil {
		return fmt.Errorf("failed to insert task run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first, with task counts.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.phase, r.trigger, r.config_fingerprint, r.started_at,
			COUNT(t.id),
			COALESCE(SUM(CASE WHEN t.status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM runs r
		LEFT JOIN task_runs t ON t.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC, r.rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r       Run
			started int64
		)
		if err := rows.Scan(&r.ID, &r.Phase, &r.Trigger, &r.ConfigFingerprint, &started, &r.Tasks, &r.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// TaskRuns returns the task outcomes of a run in the order they were recorded.
func (s *SQLiteStore) TaskRuns(ctx context.Context, runID string) ([]TaskRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, task_id, status, message, started_at, duration_ms, artifacts
		FROM task_runs
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task runs: %w", err)
	}
	defer rows.Close()

	var out []TaskRun
	for rows.Next() {
		var (
			tr        TaskRun
			started   int64
			durMillis int64
			artifacts string
		)
		if err := rows.Scan(&tr.RunID, &tr.TaskID, &tr.Status, &tr.Message, &started, &durMillis, &artifacts); err != nil {
			return nil, fmt.Errorf("failed to scan task run: %w", err)
		}
		tr.StartedAt = time.UnixMilli(started)
		tr.Duration = time.Duration(durMillis) * time.Millisecond
		if err := json.Unmarshal([]byte(artifacts), &tr.Artifacts); err != nil {
			return nil, fmt.Errorf("failed to decode artifacts: %w", err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task runs: %w", err)
	}
	return out, nil
}

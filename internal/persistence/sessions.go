package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveWorkerSession upserts the worker session token recorded for a
// task, so continuation invocations survive a process restart.
func (s *SQLiteStore) SaveWorkerSession(ctx context.Context, taskID, token, workerKind string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO worker_sessions (task_id, session_token, worker_kind)
		VALUES (?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			session_token = excluded.session_token,
			worker_kind = excluded.worker_kind
	`, taskID, token, workerKind)
	if err != nil {
		return fmt.Errorf("failed to save worker session: %w", err)
	}
	return nil
}

// GetWorkerSession retrieves the worker session token for a task.
func (s *SQLiteStore) GetWorkerSession(ctx context.Context, taskID string) (token, workerKind string, err error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = s.db.QueryRowContext(ctx, `
		SELECT session_token, worker_kind
		FROM worker_sessions
		WHERE task_id = ?
	`, taskID).Scan(&token, &workerKind)

	if err == sql.ErrNoRows {
		return "", "", fmt.Errorf("no worker session for task %q: %w", taskID, err)
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to query worker session: %w", err)
	}

	return token, workerKind, nil
}

// StartSession records a new session row.
func (s *SQLiteStore) StartSession(ctx context.Context, sessionID string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at)
		VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET started_at = excluded.started_at
	`, sessionID, startedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	return nil
}

// FinishSession records a session's final tallies.
func (s *SQLiteStore) FinishSession(ctx context.Context, sessionID string, finishedAt time.Time, completed, failed, skipped int, success bool) error {
	succ := 0
	if success {
		succ = 1
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET finished_at = ?, completed = ?, failed = ?, skipped = ?, success = ?
		WHERE id = ?
	`, finishedAt.UTC(), completed, failed, skipped, succ, sessionID)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	return nil
}

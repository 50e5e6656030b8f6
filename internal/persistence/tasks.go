package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/aristath/taskdriver/internal/task"
)

// Task status values as stored.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// SaveTask upserts a task's declared form and its dependency list.
// Dependency position is preserved: declared order drives branch base
// selection and must round-trip intact.
func (s *SQLiteStore) SaveTask(ctx context.Context, t *task.Task) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	enabled := 0
	if t.IsEnabled() {
		enabled = 1
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, type, priority, title, requirements, estimated_minutes, tags, files, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			priority = excluded.priority,
			title = excluded.title,
			requirements = excluded.requirements,
			estimated_minutes = excluded.estimated_minutes,
			tags = excluded.tags,
			files = excluded.files,
			enabled = excluded.enabled,
			updated_at = CURRENT_TIMESTAMP
	`, t.ID, string(t.Type), t.Priority, t.Title, t.Requirements, t.EstimatedMinutes,
		strings.Join(t.Tags, ","), strings.Join(t.Files, ","), enabled)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE task_id = ?`, t.ID); err != nil {
		return fmt.Errorf("failed to delete old dependencies: %w", err)
	}

	for i, depID := range t.Dependencies {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO task_dependencies (task_id, depends_on_id, position)
			VALUES (?, ?, ?)
		`, t.ID, depID, i)
		if err != nil {
			return fmt.Errorf("failed to insert dependency %s -> %s: %w", t.ID, depID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// UpdateTaskStatus updates a task's status and error message.
func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, taskID, status, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, errMsg, taskID)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task not found: %s", taskID)
	}

	return nil
}

// RecordBranch stores the branch created for a task.
func (s *SQLiteStore) RecordBranch(ctx context.Context, taskID, branchName string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET branch = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, branchName, taskID)
	if err != nil {
		return fmt.Errorf("failed to record branch: %w", err)
	}
	return nil
}

// RecordPR stores the PR URL opened for a task.
func (s *SQLiteStore) RecordPR(ctx context.Context, taskID, url string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET pr_url = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, url, taskID)
	if err != nil {
		return fmt.Errorf("failed to record PR: %w", err)
	}
	return nil
}

// GetTask retrieves a task's declared form plus stored status.
func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*task.Task, string, error) {
	t := &task.Task{}
	var typeStr, tags, files, status string
	var requirements sql.NullString
	var enabled int

	err := s.db.QueryRowContext(ctx, `
		SELECT id, type, priority, title, requirements, estimated_minutes, tags, files, enabled, status
		FROM tasks
		WHERE id = ?
	`, taskID).Scan(&t.ID, &typeStr, &t.Priority, &t.Title, &requirements,
		&t.EstimatedMinutes, &tags, &files, &enabled, &status)

	if err == sql.ErrNoRows {
		return nil, "", fmt.Errorf("task not found: %s", taskID)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to query task: %w", err)
	}

	t.Type = task.Type(typeStr)
	t.Requirements = requirements.String
	if tags != "" {
		t.Tags = strings.Split(tags, ",")
	}
	if files != "" {
		t.Files = strings.Split(files, ",")
	}
	e := enabled == 1
	t.Enabled = &e

	rows, err := s.db.QueryContext(ctx, `
		SELECT depends_on_id
		FROM task_dependencies
		WHERE task_id = ?
		ORDER BY position
	`, taskID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var depID string
		if err := rows.Scan(&depID); err != nil {
			return nil, "", fmt.Errorf("failed to scan dependency: %w", err)
		}
		t.Dependencies = append(t.Dependencies, depID)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating dependencies: %w", err)
	}

	return t, status, nil
}

// ListTaskStatuses returns id -> status for every stored task.
func (s *SQLiteStore) ListTaskStatuses(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, status FROM tasks`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	statuses := make(map[string]string)
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		statuses[id] = status
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return statuses, nil
}

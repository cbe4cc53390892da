package database

import (
	"context"
	"fmt"
	"time"

	"agendazap/internal/models"
)

const taskColumns = `id, task_type, tenant_id, appointment_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at`

func (db *DB) CreateTask(ctx context.Context, task *models.Task) error {
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	query := `INSERT INTO tasks (task_type, tenant_id, appointment_id, payload, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		task.TaskType,
		task.TenantID,
		task.AppointmentID,
		task.Payload,
		task.Status,
		task.RetryCount,
		task.LastError,
		now,
		utcPtr(task.NextRetryAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now
	return nil
}

func (db *DB) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	var t models.Task
	err := db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id).Scan(
		&t.ID, &t.TaskType, &t.TenantID, &t.AppointmentID, &t.Payload, &t.Status,
		&t.RetryCount, &t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt,
	)
	if err != nil {
		return nil, notFound(err, "task", id)
	}
	return &t, nil
}

// GetPendingTasks returns tasks due at now, oldest first.
func (db *DB) GetPendingTasks(ctx context.Context, now time.Time, limit int) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
              WHERE status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY created_at ASC LIMIT ?`
	return db.queryTasks(ctx, query, models.TaskStatusPending, now.UTC(), limit)
}

func (db *DB) GetFailedTasks(ctx context.Context) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = ? ORDER BY created_at DESC`
	return db.queryTasks(ctx, query, models.TaskStatusFailed)
}

func (db *DB) queryTasks(ctx context.Context, query string, args ...interface{}) ([]models.Task, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		err := rows.Scan(
			&t.ID, &t.TaskType, &t.TenantID, &t.AppointmentID, &t.Payload, &t.Status,
			&t.RetryCount, &t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// ClaimTask moves a pending task to processing. It returns false when
// another worker got there first.
func (db *DB) ClaimTask(ctx context.Context, id int64) (bool, error) {
	result, err := db.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ? AND status = ?`,
		models.TaskStatusProcessing, id, models.TaskStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

// UpdateTaskStatus records the outcome of one attempt. A pending status with
// nextRetryAt schedules a retry and bumps retry_count.
func (db *DB) UpdateTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now().UTC()

	var lastErr *string
	if errMsg != "" {
		lastErr = &errMsg
	}

	switch status {
	case models.TaskStatusPending:
		query = `UPDATE tasks SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, lastErr, utcPtr(nextRetryAt), id}
	case models.TaskStatusDone, models.TaskStatusFailed:
		query = `UPDATE tasks SET status = ?, last_error = ?, next_retry_at = NULL, processed_at = ? WHERE id = ?`
		args = []interface{}{status, lastErr, now, id}
	default:
		query = `UPDATE tasks SET status = ?, last_error = ? WHERE id = ?`
		args = []interface{}{status, lastErr, id}
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return requireAffected(result, "task", id)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

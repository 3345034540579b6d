package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fixit/internal/models"
)

const syncTaskColumns = `id, task_type, booking_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at`

func scanSyncTask(row rowScanner) (models.SyncTask, error) {
	var t models.SyncTask
	err := row.Scan(&t.ID, &t.TaskType, &t.BookingID, &t.Payload, &t.Status, &t.RetryCount,
		&t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt)
	return t, err
}

// CreateSyncTask appends a ledger task; an empty status means pending.
func (db *DB) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	if task.Status == "" {
		task.Status = models.SyncStatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO sync_queue (task_type, booking_id, payload, status, retry_count, last_error, created_at, next_retry_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.TaskType, task.BookingID, task.Payload, task.Status, task.RetryCount, task.LastError, task.CreatedAt, task.NextRetryAt)
	if err != nil {
		return fmt.Errorf("insert sync task: %w", err)
	}
	if task.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("sync task id: %w", err)
	}
	return nil
}

func (db *DB) listSyncTasks(ctx context.Context, where string, args ...any) ([]models.SyncTask, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+syncTaskColumns+` FROM sync_queue `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query sync tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		t, err := scanSyncTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sync task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// GetPendingSyncTasks returns due pending and retry tasks, oldest first.
func (db *DB) GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	return db.listSyncTasks(ctx,
		`WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
         ORDER BY created_at ASC, id ASC LIMIT ?`,
		models.SyncStatusPending, models.SyncStatusRetry, time.Now(), limit)
}

func (db *DB) GetSyncTask(ctx context.Context, id int64) (*models.SyncTask, error) {
	t, err := scanSyncTask(db.QueryRowContext(ctx, `SELECT `+syncTaskColumns+` FROM sync_queue WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sync task %d: %w", id, err)
	}
	return &t, nil
}

// UpdateSyncTaskStatus records an attempt outcome. Retry bumps retry_count;
// completed and failed are terminal and stamp processed_at.
func (db *DB) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var lastError *string
	if errMsg != "" {
		lastError = &errMsg
	}
	var processedAt *time.Time
	if status == models.SyncStatusCompleted || status == models.SyncStatusFailed {
		now := time.Now()
		processedAt = &now
	}
	bump := 0
	if status == models.SyncStatusRetry {
		bump = 1
	}

	_, err := db.ExecContext(ctx,
		`UPDATE sync_queue
         SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + ?,
             processed_at = COALESCE(?, processed_at)
         WHERE id = ?`,
		status, lastError, nextRetryAt, bump, processedAt, id)
	if err != nil {
		return fmt.Errorf("update sync task %d: %w", id, err)
	}
	return nil
}

// RequeueFailedSyncTasks moves dead tasks back to pending with a fresh retry
// budget and reports how many were moved.
func (db *DB) RequeueFailedSyncTasks(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE sync_queue
         SET status = ?, retry_count = 0, next_retry_at = NULL, processed_at = NULL
         WHERE status = ?`,
		models.SyncStatusPending, models.SyncStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("requeue failed sync tasks: %w", err)
	}
	return res.RowsAffected()
}

// PurgeSyncTasks deletes completed tasks processed before cutoff.
func (db *DB) PurgeSyncTasks(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM sync_queue WHERE status = ? AND processed_at < ?`,
		models.SyncStatusCompleted, before)
	if err != nil {
		return 0, fmt.Errorf("purge sync tasks: %w", err)
	}
	return res.RowsAffected()
}

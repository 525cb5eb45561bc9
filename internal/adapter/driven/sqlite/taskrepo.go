package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/datawipe/internal/domain/model"
	"github.com/ericfisherdev/datawipe/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TaskStore = (*TaskRepo)(nil)

// TaskRepo is the SQLite implementation of the TaskStore port interface.
// The one-active-task-per-account rule is enforced by a partial unique index,
// and violations surface as driven.ErrActiveTaskExists.
type TaskRepo struct {
	db *DB
}

// NewTaskRepo creates a new TaskRepo backed by the given DB.
func NewTaskRepo(db *DB) *TaskRepo {
	return &TaskRepo{db: db}
}

const taskColumns = `
	id, account_id, method, status, attempts, last_error, retry_count, retry_after,
	deletion_url, privacy_email, fallback_reason, confirmation_text,
	created_at, confirmed_at, completed_at`

// Create inserts a task and returns it with ID and CreatedAt set.
func (r *TaskRepo) Create(ctx context.Context, t model.DeletionTask) (model.DeletionTask, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = nowUTC()
	}

	const query = `
		INSERT INTO deletion_tasks (
			account_id, method, status, attempts, last_error, retry_count, retry_after,
			deletion_url, privacy_email, fallback_reason, confirmation_text,
			created_at, confirmed_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Writer.ExecContext(ctx, query,
		t.AccountID, string(t.Method), string(t.Status), t.Attempts, t.LastError,
		t.RetryCount, formatNullTime(t.RetryAfter),
		t.DeletionURL, t.PrivacyEmail, t.FallbackReason, t.ConfirmationText,
		formatTime(t.CreatedAt), formatNullTime(t.ConfirmedAt), formatNullTime(t.CompletedAt),
	)
	if isUniqueViolation(err) {
		return model.DeletionTask{}, fmt.Errorf("create task for account %d: %w", t.AccountID, driven.ErrActiveTaskExists)
	}
	if err != nil {
		return model.DeletionTask{}, fmt.Errorf("create task for account %d: %w", t.AccountID, err)
	}

	t.ID, err = result.LastInsertId()
	if err != nil {
		return model.DeletionTask{}, fmt.Errorf("read task id: %w", err)
	}
	t.CreatedAt = t.CreatedAt.UTC()

	return t, nil
}

// Get returns the task or ErrTaskNotFound. It reads through the writer so a
// caller always sees its own preceding update.
func (r *TaskRepo) Get(ctx context.Context, id int64) (model.DeletionTask, error) {
	query := `SELECT ` + taskColumns + ` FROM deletion_tasks WHERE id = ?`

	t, err := scanTask(r.db.Writer.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.DeletionTask{}, fmt.Errorf("get task %d: %w", id, driven.ErrTaskNotFound)
	}
	if err != nil {
		return model.DeletionTask{}, fmt.Errorf("get task %d: %w", id, err)
	}
	return t, nil
}

// Update writes every mutable field of the task.
func (r *TaskRepo) Update(ctx context.Context, t model.DeletionTask) error {
	const query = `
		UPDATE deletion_tasks SET
			method = ?, status = ?, attempts = ?, last_error = ?, retry_count = ?, retry_after = ?,
			deletion_url = ?, privacy_email = ?, fallback_reason = ?, confirmation_text = ?,
			confirmed_at = ?, completed_at = ?
		WHERE id = ?
	`

	result, err := r.db.Writer.ExecContext(ctx, query,
		string(t.Method), string(t.Status), t.Attempts, t.LastError, t.RetryCount,
		formatNullTime(t.RetryAfter),
		t.DeletionURL, t.PrivacyEmail, t.FallbackReason, t.ConfirmationText,
		formatNullTime(t.ConfirmedAt), formatNullTime(t.CompletedAt),
		t.ID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("update task %d: %w", t.ID, driven.ErrActiveTaskExists)
	}
	if err != nil {
		return fmt.Errorf("update task %d: %w", t.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update task %d: %w", t.ID, driven.ErrTaskNotFound)
	}

	return nil
}

// Delete removes the task. Deleting a missing task is not an error.
func (r *TaskRepo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM deletion_tasks WHERE id = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}

// ActiveForAccount returns the account's pending or in-progress task, or nil.
func (r *TaskRepo) ActiveForAccount(ctx context.Context, accountID int64) (*model.DeletionTask, error) {
	query := `SELECT ` + taskColumns + `
		FROM deletion_tasks
		WHERE account_id = ? AND status IN ('pending', 'in_progress')`

	t, err := scanTask(r.db.Writer.QueryRowContext(ctx, query, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active task for account %d: %w", accountID, err)
	}
	return &t, nil
}

// ListAll returns every task, oldest first.
func (r *TaskRepo) ListAll(ctx context.Context) ([]model.DeletionTask, error) {
	query := `SELECT ` + taskColumns + ` FROM deletion_tasks ORDER BY id`
	return r.list(ctx, query)
}

// ListByStatus returns the tasks in the given status, oldest first.
func (r *TaskRepo) ListByStatus(ctx context.Context, status model.TaskStatus) ([]model.DeletionTask, error) {
	query := `SELECT ` + taskColumns + ` FROM deletion_tasks WHERE status = ? ORDER BY id`
	return r.list(ctx, query, string(status))
}

func (r *TaskRepo) list(ctx context.Context, query string, args ...any) ([]model.DeletionTask, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.DeletionTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	return tasks, nil
}

func scanTask(s scanner) (model.DeletionTask, error) {
	var (
		t                                    model.DeletionTask
		method, status, createdAt            string
		retryAfter, confirmedAt, completedAt sql.NullString
	)

	err := s.Scan(
		&t.ID, &t.AccountID, &method, &status, &t.Attempts, &t.LastError, &t.RetryCount, &retryAfter,
		&t.DeletionURL, &t.PrivacyEmail, &t.FallbackReason, &t.ConfirmationText,
		&createdAt, &confirmedAt, &completedAt,
	)
	if err != nil {
		return model.DeletionTask{}, err
	}

	t.Method = model.DeletionMethod(method)
	t.Status = model.TaskStatus(status)

	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.DeletionTask{}, fmt.Errorf("parse created_at: %w", err)
	}
	if t.RetryAfter, err = parseNullTime(retryAfter); err != nil {
		return model.DeletionTask{}, fmt.Errorf("parse retry_after: %w", err)
	}
	if t.ConfirmedAt, err = parseNullTime(confirmedAt); err != nil {
		return model.DeletionTask{}, fmt.Errorf("parse confirmed_at: %w", err)
	}
	if t.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return model.DeletionTask{}, fmt.Errorf("parse completed_at: %w", err)
	}

	return t, nil
}

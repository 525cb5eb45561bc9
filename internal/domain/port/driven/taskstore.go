package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/datawipe/internal/domain/model"
)

var (
	// ErrTaskNotFound is returned when a task ID does not exist.
	ErrTaskNotFound = errors.New("deletion task not found")

	// ErrActiveTaskExists is returned when creating or reactivating a task
	// would give an account a second pending or in-progress task.
	ErrActiveTaskExists = errors.New("account already has an active deletion task")
)

// TaskStore defines the driven port for deletion task persistence.
type TaskStore interface {
	// Create inserts a task and returns it with ID and CreatedAt set.
	// Returns ErrActiveTaskExists if the account already has an active task.
	Create(ctx context.Context, task model.DeletionTask) (model.DeletionTask, error)

	// Get returns the task or ErrTaskNotFound.
	Get(ctx context.Context, id int64) (model.DeletionTask, error)

	// Update writes every mutable field of the task. Returns ErrTaskNotFound
	// if the task was deleted, or ErrActiveTaskExists if reactivating it
	// would violate the one-active-task rule.
	Update(ctx context.Context, task model.DeletionTask) error

	// Delete removes the task. Deleting a missing task is not an error.
	Delete(ctx context.Context, id int64) error

	// ActiveForAccount returns the account's pending or in-progress task, or nil.
	ActiveForAccount(ctx context.Context, accountID int64) (*model.DeletionTask, error)

	ListAll(ctx context.Context) ([]model.DeletionTask, error)
	ListByStatus(ctx context.Context, status model.TaskStatus) ([]model.DeletionTask, error)
}

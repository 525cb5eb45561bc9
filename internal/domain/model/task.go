package model

import "time"

// TaskStatus is the state of a deletion task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Active reports whether a task in this status blocks a new task for the same account.
func (s TaskStatus) Active() bool {
	return s == TaskStatusPending || s == TaskStatusInProgress
}

// DeletionMethod is how a task is trying to delete its account.
type DeletionMethod string

const (
	MethodAutomated DeletionMethod = "automated"
	MethodEmail     DeletionMethod = "email"
)

// DeletionTask tracks one attempt to remove one account.
type DeletionTask struct {
	ID        int64
	AccountID int64
	Method    DeletionMethod
	Status    TaskStatus

	// Attempts counts transitions into in_progress and never decreases.
	Attempts   int
	LastError  string
	RetryCount int
	RetryAfter *time.Time

	DeletionURL      string
	PrivacyEmail     string
	FallbackReason   string
	ConfirmationText string

	CreatedAt   time.Time
	ConfirmedAt *time.Time
	CompletedAt *time.Time
}

// RetryScheduled reports whether the task is waiting on a retry timer.
func (t DeletionTask) RetryScheduled() bool {
	return t.Status == TaskStatusPending && t.RetryAfter != nil
}

package application

import "errors"

var (
	// ErrTaskNotPending is returned when an operation needs a pending task.
	ErrTaskNotPending = errors.New("deletion task is not pending")

	// ErrTaskInFlight is returned when a task already has a run in progress.
	ErrTaskInFlight = errors.New("deletion task is already running")

	// ErrTaskNotFailed is returned when scheduling a retry for a task that has not failed.
	ErrTaskNotFailed = errors.New("deletion task has not failed")

	// ErrRetryNotScheduled is returned when cancelling a retry that is not waiting.
	ErrRetryNotScheduled = errors.New("no retry is scheduled for this task")

	// ErrRetryPending is returned when confirming a task whose retry delay has not elapsed.
	ErrRetryPending = errors.New("deletion task is waiting for a scheduled retry")

	// ErrUnknownCategory is returned when overriding an account with a category the catalog does not define.
	ErrUnknownCategory = errors.New("unknown category")

	// ErrUnknownRiskLevel is returned for a risk level outside critical, high, medium and low.
	ErrUnknownRiskLevel = errors.New("unknown risk level")

	// ErrUnknownService is returned for credential services datawipe does not use.
	ErrUnknownService = errors.New("unknown credential service")

	// ErrEnricherUnavailable is returned by EnricherProvider when no oracle is configured.
	ErrEnricherUnavailable = errors.New("enrichment oracle not configured")
)

// ErrRetryExhausted is returned when a failed task may not be retried again.
var ErrRetryExhausted = errors.New("retries exhausted for this task")

package model

import "time"

// AuditAction names an audited event.
type AuditAction string

const (
	AuditCSVUploaded       AuditAction = "csv_uploaded"
	AuditTaskCreated       AuditAction = "deletion_task_created"
	AuditTaskConfirmed     AuditAction = "deletion_confirmed"
	AuditTaskStarted       AuditAction = "deletion_started"
	AuditAutomationSkipped AuditAction = "automation_skipped"
	AuditAutomationFailed  AuditAction = "automation_failed"
	AuditFallbackEmail     AuditAction = "deletion_fallback_email"
	AuditEmailSent         AuditAction = "deletion_email_sent"
	AuditTaskCompleted     AuditAction = "deletion_completed"
	AuditTaskFailed        AuditAction = "deletion_failed"
	AuditTaskCancelled     AuditAction = "deletion_cancelled"
	AuditRetryScheduled    AuditAction = "task_retry_scheduled"
	AuditRetryExhausted    AuditAction = "retry_exhausted"
	AuditRetryCancelled    AuditAction = "retry_cancelled"
	AuditTaskInterrupted   AuditAction = "deletion_interrupted"
	AuditCredentialStored  AuditAction = "credential_stored"
	AuditCredentialRemoved AuditAction = "credential_removed"
	AuditCategoryChanged   AuditAction = "category_updated"
)

// AuditRecord is an immutable entry in the audit trail.
type AuditRecord struct {
	ID        string
	Action    AuditAction
	AccountID int64 // 0 when the event is not tied to an account.
	TaskID    int64 // 0 when the event is not tied to a task.
	Details   map[string]any
	CreatedAt time.Time
}

// AuditSummary counts audit entries overall, since a cutoff, and per action.
type AuditSummary struct {
	Total    int
	Recent   int
	Since    time.Time
	ByAction map[AuditAction]int
}

package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/datawipe/internal/domain/model"
)

// AuditFilter narrows an audit query. Zero fields do not filter.
type AuditFilter struct {
	Action    model.AuditAction
	AccountID int64
	TaskID    int64
	Limit     int
	Offset    int
}

// AuditLog reads the audit trail back for operators. The deletion pipeline
// only writes through AuditSink and never depends on it.
type AuditLog interface {
	// List returns matching records, newest first.
	List(ctx context.Context, filter AuditFilter) ([]model.AuditRecord, error)

	// Summary counts all records and those created at or after since.
	Summary(ctx context.Context, since time.Time) (model.AuditSummary, error)
}

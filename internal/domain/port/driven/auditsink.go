package driven

import (
	"context"

	"github.com/ericfisherdev/datawipe/internal/domain/model"
)

// AuditSink records immutable audit entries. It is write-only: nothing in the
// deletion pipeline reads records back.
type AuditSink interface {
	Record(ctx context.Context, record model.AuditRecord) error
}

package application

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/datawipe/internal/domain/model"
	"github.com/ericfisherdev/datawipe/internal/domain/port/driven"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
	recentAuditWindow = 24 * time.Hour
)

// AuditService reads the audit trail for operators.
type AuditService struct {
	log driven.AuditLog
	now func() time.Time
}

// NewAuditService creates an AuditService. A nil clock uses time.Now.
func NewAuditService(log driven.AuditLog, clock func() time.Time) *AuditService {
	if clock == nil {
		clock = time.Now
	}
	return &AuditService{log: log, now: clock}
}

// List returns matching records, newest first. The page size defaults to 100
// and is capped at 1000.
func (s *AuditService) List(ctx context.Context, filter driven.AuditFilter) ([]model.AuditRecord, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultAuditLimit
	case filter.Limit > maxAuditLimit:
		filter.Limit = maxAuditLimit
	}
	filter.Offset = max(filter.Offset, 0)

	records, err := s.log.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return records, nil
}

// Summary counts records per action and over the last 24 hours.
func (s *AuditService) Summary(ctx context.Context) (model.AuditSummary, error) {
	summary, err := s.log.Summary(ctx, s.now().UTC().Add(-recentAuditWindow))
	if err != nil {
		return model.AuditSummary{}, fmt.Errorf("audit summary: %w", err)
	}
	return summary, nil
}

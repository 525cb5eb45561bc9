package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/datawipe/internal/domain/model"
	"github.com/ericfisherdev/datawipe/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.AuditSink = (*AuditRepo)(nil)
	_ driven.AuditLog  = (*AuditRepo)(nil)
)

const maskedValue = "***"

// sensitiveKeyParts mark detail keys whose values are never persisted.
var sensitiveKeyParts = []string{"password", "token", "key", "secret", "credential"}

// AuditRepo appends audit records to the audit_log table and reads them back
// for operators. Rows are never updated or deleted.
type AuditRepo struct {
	db *DB
}

// NewAuditRepo creates a new AuditRepo backed by the given DB.
func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Record stores one audit entry. Missing IDs and timestamps are filled in and
// sensitive detail values are masked before the details are serialized.
func (r *AuditRepo) Record(ctx context.Context, rec model.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = nowUTC()
	}

	details, err := json.Marshal(maskDetails(rec.Details))
	if err != nil {
		return fmt.Errorf("marshal audit details for %s: %w", rec.Action, err)
	}

	const query = `
		INSERT INTO audit_log (id, action, account_id, task_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Writer.ExecContext(ctx, query,
		rec.ID, string(rec.Action), nullID(rec.AccountID), nullID(rec.TaskID),
		string(details), formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("record audit %s: %w", rec.Action, err)
	}
	return nil
}

// List returns records matching filter, newest first. A zero Limit returns
// every match.
func (r *AuditRepo) List(ctx context.Context, filter driven.AuditFilter) ([]model.AuditRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.AccountID != 0 {
		where = append(where, "account_id = ?")
		args = append(args, filter.AccountID)
	}
	if filter.TaskID != 0 {
		where = append(where, "task_id = ?")
		args = append(args, filter.TaskID)
	}

	query := `SELECT id, action, account_id, task_id, details, created_at FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, max(filter.Offset, 0))
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var records []model.AuditRecord
	for rows.Next() {
		rec, err := scanAuditRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}

// Summary counts records per action and those created at or after since.
func (r *AuditRepo) Summary(ctx context.Context, since time.Time) (model.AuditSummary, error) {
	summary := model.AuditSummary{Since: since.UTC(), ByAction: make(map[model.AuditAction]int)}

	rows, err := r.db.Reader.QueryContext(ctx, `SELECT action, COUNT(*) FROM audit_log GROUP BY action`)
	if err != nil {
		return summary, fmt.Errorf("count audit actions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			action string
			n      int
		)
		if err := rows.Scan(&action, &n); err != nil {
			return summary, fmt.Errorf("scan audit count: %w", err)
		}
		summary.ByAction[model.AuditAction(action)] = n
		summary.Total += n
	}
	if err := rows.Err(); err != nil {
		return summary, fmt.Errorf("iterate audit counts: %w", err)
	}

	err = r.db.Reader.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_log WHERE julianday(created_at) >= julianday(?)`, formatTime(since),
	).Scan(&summary.Recent)
	if err != nil {
		return summary, fmt.Errorf("count recent audit records: %w", err)
	}
	return summary, nil
}

func scanAuditRecord(s scanner) (model.AuditRecord, error) {
	var (
		rec               model.AuditRecord
		action, details   string
		accountID, taskID sql.NullInt64
		createdAt         string
	)
	if err := s.Scan(&rec.ID, &action, &accountID, &taskID, &details, &createdAt); err != nil {
		return model.AuditRecord{}, err
	}

	rec.Action = model.AuditAction(action)
	rec.AccountID = accountID.Int64
	rec.TaskID = taskID.Int64
	if err := json.Unmarshal([]byte(details), &rec.Details); err != nil {
		return model.AuditRecord{}, fmt.Errorf("decode details of %s: %w", rec.ID, err)
	}

	var err error
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.AuditRecord{}, fmt.Errorf("parse created_at: %w", err)
	}
	return rec, nil
}

// maskDetails returns a copy of details with sensitive values replaced.
// Nested maps are masked recursively.
func maskDetails(details map[string]any) map[string]any {
	if details == nil {
		return map[string]any{}
	}

	out := make(map[string]any, len(details))
	for k, v := range details {
		if isSensitiveKey(k) {
			out[k] = maskedValue
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			v = maskDetails(nested)
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(k, part) {
			return true
		}
	}
	return false
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

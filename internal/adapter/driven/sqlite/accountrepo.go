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
var _ driven.AccountStore = (*AccountRepo)(nil)

// AccountRepo is the SQLite implementation of the AccountStore port interface.
// Account secrets are encrypted the same way as credentials.
type AccountRepo struct {
	db     *DB
	sealer *sealer
}

// NewAccountRepo creates a new AccountRepo. key must be 32 bytes, or nil, in
// which case writes and reads return ErrEncryptionKeyNotSet.
func NewAccountRepo(db *DB, key []byte) (*AccountRepo, error) {
	s, err := newSealer(key)
	if err != nil {
		return nil, err
	}
	return &AccountRepo{db: db, sealer: s}, nil
}

const accountColumns = `
	id, site_name, site_url, username, email, secret, notes,
	category, category_confidence, category_reason, risk_level, data_sensitivity,
	deletion_priority, priority_label, has_breach, status, source_format, import_id,
	created_at, updated_at`

// Upsert inserts the account or refreshes the row with the same site URL and
// identity. An existing row keeps its status so a re-import never resets an
// account that is mid-deletion.
func (r *AccountRepo) Upsert(ctx context.Context, a model.Account) (model.Account, error) {
	id, err := r.upsert(ctx, r.db.Writer, a)
	if err != nil {
		return model.Account{}, err
	}
	return r.get(ctx, r.db.Writer, id)
}

// UpsertAll upserts accounts in a single transaction. Either every account is
// stored or none is.
func (r *AccountRepo) UpsertAll(ctx context.Context, accounts []model.Account) ([]model.Account, error) {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin account batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	stored := make([]model.Account, 0, len(accounts))
	for _, a := range accounts {
		id, err := r.upsert(ctx, tx, a)
		if err != nil {
			return nil, err
		}
		saved, err := r.get(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		stored = append(stored, saved)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit account batch: %w", err)
	}
	return stored, nil
}

func (r *AccountRepo) upsert(ctx context.Context, q querier, a model.Account) (int64, error) {
	secret, err := r.sealer.seal(a.Secret.Reveal())
	if err != nil {
		return 0, err
	}

	status := a.Status
	if status == "" {
		status = model.AccountStatusDiscovered
	}
	now := formatTime(nowUTC())

	const query = `
		INSERT INTO accounts (
			site_name, site_url, username, email, identity, secret, notes,
			category, category_confidence, category_reason, risk_level, data_sensitivity,
			deletion_priority, priority_label, has_breach, status, source_format, import_id,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(site_url, identity) DO UPDATE SET
			site_name = excluded.site_name,
			username = excluded.username,
			email = excluded.email,
			secret = excluded.secret,
			notes = excluded.notes,
			category = excluded.category,
			category_confidence = excluded.category_confidence,
			category_reason = excluded.category_reason,
			risk_level = excluded.risk_level,
			data_sensitivity = excluded.data_sensitivity,
			deletion_priority = excluded.deletion_priority,
			priority_label = excluded.priority_label,
			has_breach = excluded.has_breach,
			source_format = excluded.source_format,
			import_id = excluded.import_id,
			updated_at = excluded.updated_at
		RETURNING id
	`

	var id int64
	err = q.QueryRowContext(ctx, query,
		a.SiteName, a.SiteURL, a.Username, a.Email, a.Identity(), secret, a.Notes,
		string(a.Category), a.CategoryConfidence, a.CategoryReason,
		string(a.RiskLevel), string(a.DataSensitivity),
		a.DeletionPriority, string(a.PriorityLabel), a.HasBreach, string(status),
		a.SourceFormat, a.ImportID, now, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert account %s: %w", a.SiteURL, err)
	}
	return id, nil
}

// Get returns the account or ErrAccountNotFound.
func (r *AccountRepo) Get(ctx context.Context, id int64) (model.Account, error) {
	return r.get(ctx, r.db.Reader, id)
}

func (r *AccountRepo) get(ctx context.Context, conn querier, id int64) (model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`

	a, err := r.scanAccount(conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, fmt.Errorf("get account %d: %w", id, driven.ErrAccountNotFound)
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("get account %d: %w", id, err)
	}
	return a, nil
}

// ListAll returns every account, highest deletion priority first.
func (r *AccountRepo) ListAll(ctx context.Context) ([]model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY deletion_priority DESC, site_name, id`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := r.scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	return accounts, nil
}

// UpdateStatus sets the account's status. Returns ErrAccountNotFound if the
// account does not exist.
func (r *AccountRepo) UpdateStatus(ctx context.Context, id int64, status model.AccountStatus) error {
	const query = `UPDATE accounts SET status = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, string(status), formatTime(nowUTC()), id)
	if err != nil {
		return fmt.Errorf("update account %d status: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update account %d status: %w", id, driven.ErrAccountNotFound)
	}

	return nil
}

// UpdateClassification overwrites the category and the risk fields derived
// from it. Returns ErrAccountNotFound if the account does not exist.
func (r *AccountRepo) UpdateClassification(ctx context.Context, a model.Account) error {
	const query = `
		UPDATE accounts SET
			category = ?, category_confidence = ?, category_reason = ?,
			risk_level = ?, data_sensitivity = ?,
			deletion_priority = ?, priority_label = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Writer.ExecContext(ctx, query,
		string(a.Category), a.CategoryConfidence, a.CategoryReason,
		string(a.RiskLevel), string(a.DataSensitivity),
		a.DeletionPriority, string(a.PriorityLabel), formatTime(nowUTC()), a.ID,
	)
	if err != nil {
		return fmt.Errorf("update account %d classification: %w", a.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update account %d classification: %w", a.ID, driven.ErrAccountNotFound)
	}
	return nil
}

func (r *AccountRepo) scanAccount(s scanner) (model.Account, error) {
	var (
		a                    model.Account
		secret               string
		category, risk, sens string
		label, status        string
		createdAt, updatedAt string
	)

	err := s.Scan(
		&a.ID, &a.SiteName, &a.SiteURL, &a.Username, &a.Email, &secret, &a.Notes,
		&category, &a.CategoryConfidence, &a.CategoryReason, &risk, &sens,
		&a.DeletionPriority, &label, &a.HasBreach, &status, &a.SourceFormat, &a.ImportID,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return model.Account{}, err
	}

	plaintext, err := r.sealer.open(secret)
	if err != nil {
		return model.Account{}, fmt.Errorf("decrypt secret for account %d: %w", a.ID, err)
	}
	a.Secret = model.Secret(plaintext)

	a.Category = model.Category(category)
	a.RiskLevel = model.Level(risk)
	a.DataSensitivity = model.Level(sens)
	a.PriorityLabel = model.PriorityLabel(label)
	a.Status = model.AccountStatus(status)

	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Account{}, fmt.Errorf("parse created_at: %w", err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Account{}, fmt.Errorf("parse updated_at: %w", err)
	}

	return a, nil
}

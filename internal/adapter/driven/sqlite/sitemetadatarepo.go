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
var _ driven.SiteMetadataStore = (*SiteMetadataRepo)(nil)

// SiteMetadataRepo caches enrichment results keyed by domain.
type SiteMetadataRepo struct {
	db *DB
}

// NewSiteMetadataRepo creates a new SiteMetadataRepo backed by the given DB.
func NewSiteMetadataRepo(db *DB) *SiteMetadataRepo {
	return &SiteMetadataRepo{db: db}
}

// Get retrieves cached metadata for a domain. Returns (nil, nil) if nothing
// is cached; callers should then ask the enricher.
func (r *SiteMetadataRepo) Get(ctx context.Context, domain string) (*model.SiteMetadata, error) {
	const query = `
		SELECT domain, site_name, site_url, deletion_url, deletion_contact_email,
		       deletion_difficulty, privacy_policy_url, instructions, updated_at
		FROM site_metadata
		WHERE domain = ?
	`

	var m model.SiteMetadata
	var updatedAt string

	err := r.db.Reader.QueryRowContext(ctx, query, domain).Scan(
		&m.Domain, &m.SiteName, &m.SiteURL, &m.DeletionURL, &m.DeletionContactEmail,
		&m.DeletionDifficulty, &m.PrivacyPolicyURL, &m.Instructions, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get site metadata for %s: %w", domain, err)
	}

	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for %s: %w", domain, err)
	}

	return &m, nil
}

// Put inserts or replaces the metadata for meta.Domain.
func (r *SiteMetadataRepo) Put(ctx context.Context, m model.SiteMetadata) error {
	if m.Domain == "" {
		return errors.New("put site metadata: empty domain")
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = nowUTC()
	}

	const query = `
		INSERT INTO site_metadata (
			domain, site_name, site_url, deletion_url, deletion_contact_email,
			deletion_difficulty, privacy_policy_url, instructions, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			site_name = excluded.site_name,
			site_url = excluded.site_url,
			deletion_url = excluded.deletion_url,
			deletion_contact_email = excluded.deletion_contact_email,
			deletion_difficulty = excluded.deletion_difficulty,
			privacy_policy_url = excluded.privacy_policy_url,
			instructions = excluded.instructions,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		m.Domain, m.SiteName, m.SiteURL, m.DeletionURL, m.DeletionContactEmail,
		m.DeletionDifficulty, m.PrivacyPolicyURL, m.Instructions, formatTime(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put site metadata for %s: %w", m.Domain, err)
	}

	return nil
}

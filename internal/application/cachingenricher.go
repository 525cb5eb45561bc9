package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/datawipe/internal/classify"
	"github.com/ericfisherdev/datawipe/internal/domain/model"
	"github.com/ericfisherdev/datawipe/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Enricher = (*CachingEnricher)(nil)

// DefaultMetadataTTL is how long cached site metadata is trusted.
const DefaultMetadataTTL = 30 * 24 * time.Hour

// CachingEnricher answers from the site metadata cache and only asks the
// wrapped oracle about domains it has not seen within the TTL.
type CachingEnricher struct {
	next   driven.Enricher
	store  driven.SiteMetadataStore
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewCachingEnricher wraps next with a cache in store. A ttl of zero uses
// DefaultMetadataTTL.
func NewCachingEnricher(next driven.Enricher, store driven.SiteMetadataStore, ttl time.Duration, logger *slog.Logger) *CachingEnricher {
	if ttl <= 0 {
		ttl = DefaultMetadataTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingEnricher{next: next, store: store, ttl: ttl, now: time.Now, logger: logger}
}

// Discover returns cached metadata for the site's domain when fresh.
// Cache read and write failures are logged and never fail the lookup.
func (c *CachingEnricher) Discover(ctx context.Context, siteName, siteURL string) (model.SiteMetadata, error) {
	domain := classify.ExtractDomain(siteURL)

	if domain != "" {
		cached, err := c.store.Get(ctx, domain)
		if err != nil {
			c.logger.Warn("site metadata cache read failed", "domain", domain, "error", err)
		}
		if cached != nil && c.now().Sub(cached.UpdatedAt) < c.ttl {
			return *cached, nil
		}
	}

	meta, err := c.next.Discover(ctx, siteName, siteURL)
	if err != nil {
		return model.SiteMetadata{}, fmt.Errorf("discover %s: %w", siteName, err)
	}

	if domain != "" {
		meta.Domain = domain
		meta.UpdatedAt = c.now().UTC()
		if err := c.store.Put(ctx, meta); err != nil {
			c.logger.Warn("site metadata cache write failed", "domain", domain, "error", err)
		}
	}

	return meta, nil
}

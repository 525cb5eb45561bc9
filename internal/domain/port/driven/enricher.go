package driven

import (
	"context"

	"github.com/ericfisherdev/datawipe/internal/domain/model"
)

// Enricher discovers how to delete an account on a site. It is optional;
// callers must cope with it being absent or failing.
type Enricher interface {
	Discover(ctx context.Context, siteName, siteURL string) (model.SiteMetadata, error)
}

// SiteMetadataStore caches enrichment results per domain.
type SiteMetadataStore interface {
	// Get returns the cached metadata for domain, or nil if none is cached.
	Get(ctx context.Context, domain string) (*model.SiteMetadata, error)
	Put(ctx context.Context, meta model.SiteMetadata) error
}

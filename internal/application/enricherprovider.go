package application

import (
	"context"
	"sync"

	"github.com/ericfisherdev/datawipe/internal/domain/model"
	"github.com/ericfisherdev/datawipe/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Enricher = (*EnricherProvider)(nil)

// EnricherProvider enables runtime hot-swap of the enrichment oracle.
// It holds a mutex-protected reference to the current driven.Enricher,
// allowing an API key stored through the credentials endpoint to take
// effect without restarting the application.
type EnricherProvider struct {
	mu       sync.RWMutex
	enricher driven.Enricher
}

// NewEnricherProvider creates a provider with the given initial oracle.
// enricher may be nil if no API key is available at startup.
func NewEnricherProvider(enricher driven.Enricher) *EnricherProvider {
	return &EnricherProvider{enricher: enricher}
}

// Get returns the current oracle, or nil.
func (p *EnricherProvider) Get() driven.Enricher {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enricher
}

// Replace swaps the current oracle. nil disables enrichment.
func (p *EnricherProvider) Replace(enricher driven.Enricher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enricher = enricher
}

// Available reports whether an oracle is configured.
func (p *EnricherProvider) Available() bool {
	return p.Get() != nil
}

// Discover delegates to the current oracle, or returns ErrEnricherUnavailable.
func (p *EnricherProvider) Discover(ctx context.Context, siteName, siteURL string) (model.SiteMetadata, error) {
	enricher := p.Get()
	if enricher == nil {
		return model.SiteMetadata{}, ErrEnricherUnavailable
	}
	return enricher.Discover(ctx, siteName, siteURL)
}

package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/datawipe/internal/domain/model"
	"github.com/ericfisherdev/datawipe/internal/domain/port/driven"
)

// ServiceGenAI is the credential service name of the enrichment oracle key.
const ServiceGenAI = "genai"

// EnricherFactory builds an enrichment oracle from an API key.
type EnricherFactory func(ctx context.Context, apiKey model.Secret) (driven.Enricher, error)

// CredentialService stores service credentials and applies them to the live
// components that use them.
type CredentialService struct {
	store       driven.CredentialStore
	provider    *EnricherProvider
	newEnricher EnricherFactory
	audit       driven.AuditSink
	logger      *slog.Logger

	envKey model.Secret
}

// NewCredentialService creates a CredentialService.
func NewCredentialService(store driven.CredentialStore, provider *EnricherProvider, newEnricher EnricherFactory, audit driven.AuditSink, logger *slog.Logger) *CredentialService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialService{
		store:       store,
		provider:    provider,
		newEnricher: newEnricher,
		audit:       audit,
		logger:      logger,
	}
}

// Bootstrap installs the enrichment oracle at startup. A stored key takes
// precedence over envKey, which is kept as the fallback after Delete.
func (s *CredentialService) Bootstrap(ctx context.Context, envKey model.Secret) error {
	s.envKey = envKey

	key := envKey
	stored, err := s.store.Get(ctx, ServiceGenAI)
	switch {
	case errors.Is(err, driven.ErrEncryptionKeyNotSet):
		// Nothing can be stored without a key; use envKey.
	case err != nil:
		return fmt.Errorf("load %s credential: %w", ServiceGenAI, err)
	case !stored.IsZero():
		key = stored
	}

	return s.apply(ctx, key)
}

func (s *CredentialService) apply(ctx context.Context, key model.Secret) error {
	if key.IsZero() {
		s.provider.Replace(nil)
		s.logger.Info("enrichment disabled: no API key configured")
		return nil
	}

	enricher, err := s.newEnricher(ctx, key)
	if err != nil {
		return fmt.Errorf("create enricher: %w", err)
	}
	s.provider.Replace(enricher)
	s.logger.Info("enrichment enabled")
	return nil
}

// Set validates and stores a credential, then swaps it into use.
func (s *CredentialService) Set(ctx context.Context, service string, value model.Secret) error {
	if service != ServiceGenAI {
		return fmt.Errorf("set credential %q: %w", service, ErrUnknownService)
	}
	if value.IsZero() {
		return fmt.Errorf("set credential %q: empty value", service)
	}

	enricher, err := s.newEnricher(ctx, value)
	if err != nil {
		return fmt.Errorf("set credential %q: %w", service, err)
	}

	if err := s.store.Set(ctx, service, value); err != nil {
		return fmt.Errorf("set credential %q: %w", service, err)
	}
	s.provider.Replace(enricher)

	recordAudit(ctx, s.audit, s.logger, model.AuditRecord{
		Action:  model.AuditCredentialStored,
		Details: map[string]any{"service": service},
	})
	s.logger.Info("credential stored", "service", service)
	return nil
}

// Delete removes a stored credential. The enrichment oracle falls back to the
// environment key, if any.
func (s *CredentialService) Delete(ctx context.Context, service string) error {
	if service != ServiceGenAI {
		return fmt.Errorf("delete credential %q: %w", service, ErrUnknownService)
	}

	if err := s.store.Delete(ctx, service); err != nil {
		return fmt.Errorf("delete credential %q: %w", service, err)
	}
	if err := s.apply(ctx, s.envKey); err != nil {
		return fmt.Errorf("delete credential %q: %w", service, err)
	}

	recordAudit(ctx, s.audit, s.logger, model.AuditRecord{
		Action:  model.AuditCredentialRemoved,
		Details: map[string]any{"service": service},
	})
	s.logger.Info("credential removed", "service", service)
	return nil
}

package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/datawipe/internal/catalog"
	"github.com/ericfisherdev/datawipe/internal/classify"
	"github.com/ericfisherdev/datawipe/internal/domain/model"
	"github.com/ericfisherdev/datawipe/internal/domain/port/driven"
)

// manualReason is the category reason recorded for a user override.
const manualReason = "manual override"

// CategoryOverride is a user's correction of an account's classification.
// RiskLevel is optional; the category's catalog level is used when empty.
type CategoryOverride struct {
	Category  model.Category
	RiskLevel model.Level
}

// AccountService provides views over stored accounts and lets the user
// correct their classification.
type AccountService struct {
	accounts driven.AccountStore
	audit    driven.AuditSink
	catalog  *catalog.Catalog
	logger   *slog.Logger
	now      func() time.Time
}

// NewAccountService creates a new AccountService with the required dependencies.
func NewAccountService(accounts driven.AccountStore, audit driven.AuditSink, c *catalog.Catalog, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{accounts: accounts, audit: audit, catalog: c, logger: logger, now: time.Now}
}

// List returns all accounts, optionally narrowed to one category.
func (s *AccountService) List(ctx context.Context, category model.Category) ([]model.Account, error) {
	all, err := s.accounts.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	if category == "" {
		return all, nil
	}

	var out []model.Account
	for _, a := range all {
		if a.Category == category {
			out = append(out, a)
		}
	}
	return out, nil
}

// Get returns one account.
func (s *AccountService) Get(ctx context.Context, id int64) (model.Account, error) {
	acct, err := s.accounts.Get(ctx, id)
	if err != nil {
		return model.Account{}, fmt.Errorf("get account %d: %w", id, err)
	}
	return acct, nil
}

// Stats summarizes stored accounts by category and risk, with recommendations.
func (s *AccountService) Stats(ctx context.Context) (classify.Stats, error) {
	all, err := s.accounts.ListAll(ctx)
	if err != nil {
		return classify.Stats{}, fmt.Errorf("account stats: %w", err)
	}
	return classify.Summarize(s.catalog, all), nil
}

// SetCategory replaces the account's category with full confidence and
// rescores its deletion priority. Sensitivity follows the new category.
func (s *AccountService) SetCategory(ctx context.Context, id int64, o CategoryOverride) (model.Account, error) {
	info, ok := s.catalog.Category(o.Category)
	if !ok {
		return model.Account{}, fmt.Errorf("set category %q: %w", o.Category, ErrUnknownCategory)
	}
	if o.RiskLevel != "" && !o.RiskLevel.Valid() {
		return model.Account{}, fmt.Errorf("set risk level %q: %w", o.RiskLevel, ErrUnknownRiskLevel)
	}

	acct, err := s.accounts.Get(ctx, id)
	if err != nil {
		return model.Account{}, fmt.Errorf("set category of account %d: %w", id, err)
	}
	previous := acct.Category

	risk := info.RiskLevel
	if o.RiskLevel != "" {
		risk = o.RiskLevel
	}
	prio := classify.AssessPriority(info.ID, risk, acct.HasBreach)

	acct.Category = info.ID
	acct.CategoryConfidence = 1.0
	acct.CategoryReason = manualReason
	acct.RiskLevel = risk
	acct.DataSensitivity = info.DataSensitivity
	acct.DeletionPriority = prio.Score
	acct.PriorityLabel = prio.Label

	if err := s.accounts.UpdateClassification(ctx, acct); err != nil {
		return model.Account{}, fmt.Errorf("set category of account %d: %w", id, err)
	}

	recordAudit(ctx, s.audit, s.logger, model.AuditRecord{
		Action:    model.AuditCategoryChanged,
		AccountID: acct.ID,
		Details: map[string]any{
			"site":     acct.SiteName,
			"from":     string(previous),
			"to":       string(acct.Category),
			"risk":     string(acct.RiskLevel),
			"priority": acct.DeletionPriority,
		},
		CreatedAt: s.now().UTC(),
	})
	s.logger.Info("account category overridden",
		"account_id", acct.ID, "from", previous, "to", acct.Category, "priority", acct.DeletionPriority)

	return acct, nil
}

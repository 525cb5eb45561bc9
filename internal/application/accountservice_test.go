package application_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/datawipe/internal/application"
	"github.com/ericfisherdev/datawipe/internal/catalog"
	"github.com/ericfisherdev/datawipe/internal/domain/model"
	"github.com/ericfisherdev/datawipe/internal/domain/port/driven"
)

func TestAccountService_SetCategoryRescoresPriority(t *testing.T) {
	accounts := newFakeAccountStore()
	audit := &fakeAudit{}
	svc := application.NewAccountService(accounts, audit, catalog.Default(), nil)
	acct := accounts.add(t, "Wallet", "https://wallet.example")

	got, err := svc.SetCategory(context.Background(), acct.ID, application.CategoryOverride{Category: model.CategoryFinance})
	require.NoError(t, err)

	assert.Equal(t, model.CategoryFinance, got.Category)
	assert.InDelta(t, 1.0, got.CategoryConfidence, 1e-9)
	assert.Equal(t, "manual override", got.CategoryReason)
	assert.Equal(t, model.LevelCritical, got.RiskLevel)
	assert.Equal(t, model.LevelCritical, got.DataSensitivity)
	assert.Equal(t, 9, got.DeletionPriority)
	assert.Equal(t, model.PriorityCritical, got.PriorityLabel)

	stored, err := svc.Get(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Category, stored.Category)
	assert.Equal(t, got.DeletionPriority, stored.DeletionPriority)

	rec, ok := audit.find(model.AuditCategoryChanged)
	require.True(t, ok)
	assert.Equal(t, acct.ID, rec.AccountID)
	assert.Equal(t, "social_media", rec.Details["from"])
	assert.Equal(t, "finance", rec.Details["to"])
}

func TestAccountService_SetCategoryWithRiskLevel(t *testing.T) {
	accounts := newFakeAccountStore()
	svc := application.NewAccountService(accounts, &fakeAudit{}, catalog.Default(), nil)
	acct := accounts.add(t, "Daily Bugle", "https://bugle.example")

	got, err := svc.SetCategory(context.Background(), acct.ID, application.CategoryOverride{
		Category:  model.CategoryNews,
		RiskLevel: model.LevelHigh,
	})
	require.NoError(t, err)

	assert.Equal(t, model.LevelHigh, got.RiskLevel)
	assert.Equal(t, model.LevelLow, got.DataSensitivity)
	assert.Equal(t, 6, got.DeletionPriority)
	assert.Equal(t, model.PriorityHigh, got.PriorityLabel)
}

func TestAccountService_SetCategoryRejects(t *testing.T) {
	accounts := newFakeAccountStore()
	audit := &fakeAudit{}
	svc := application.NewAccountService(accounts, audit, catalog.Default(), nil)
	acct := accounts.add(t, "Facebook", "https://facebook.com")
	ctx := context.Background()

	_, err := svc.SetCategory(ctx, acct.ID, application.CategoryOverride{Category: "gambling"})
	assert.ErrorIs(t, err, application.ErrUnknownCategory)

	_, err = svc.SetCategory(ctx, acct.ID, application.CategoryOverride{Category: model.CategoryNews, RiskLevel: "extreme"})
	assert.ErrorIs(t, err, application.ErrUnknownRiskLevel)

	_, err = svc.SetCategory(ctx, 404, application.CategoryOverride{Category: model.CategoryNews})
	assert.ErrorIs(t, err, driven.ErrAccountNotFound)

	stored, err := svc.Get(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CategorySocialMedia, stored.Category)
	assert.Empty(t, audit.actions())

	_, err = svc.Get(ctx, 404)
	assert.ErrorIs(t, err, driven.ErrAccountNotFound)
}

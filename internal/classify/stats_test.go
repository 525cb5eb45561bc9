package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/datawipe/internal/catalog"
	"github.com/ericfisherdev/datawipe/internal/domain/model"
)

func accountsIn(start int64, n int, cat model.Category, risk model.Level) []model.Account {
	out := make([]model.Account, n)
	for i := range out {
		out[i] = model.Account{ID: start + int64(i), Category: cat, RiskLevel: risk}
	}
	return out
}

func TestSummarize_Counts(t *testing.T) {
	var accounts []model.Account
	accounts = append(accounts, accountsIn(1, 2, model.CategoryFinance, model.LevelCritical)...)
	accounts = append(accounts, accountsIn(10, 1, model.CategoryNews, model.LevelLow)...)

	s := Summarize(catalog.Default(), accounts)

	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.ByRisk[model.LevelCritical])
	assert.Equal(t, 1, s.ByRisk[model.LevelLow])
	assert.Equal(t, []CategoryCount{
		{Category: model.CategoryFinance, Name: "Finance & Banking", Count: 2},
		{Category: model.CategoryNews, Name: "News & Media", Count: 1},
	}, s.ByCategory)

	require.Len(t, s.Recommendations, 1)
	assert.Equal(t, "filter_critical", s.Recommendations[0].Action)

	require.Len(t, s.BulkActions, 1)
	assert.Equal(t, model.CategoryFinance, s.BulkActions[0].Category)
	assert.Equal(t, []int64{1, 2}, s.BulkActions[0].AccountIDs)
}

func TestSummarize_LargeFootprints(t *testing.T) {
	var accounts []model.Account
	accounts = append(accounts, accountsIn(1, 11, model.CategorySocialMedia, model.LevelHigh)...)
	accounts = append(accounts, accountsIn(100, 4, model.CategoryEntertainment, model.LevelLow)...)

	s := Summarize(catalog.Default(), accounts)

	actions := make([]string, 0, len(s.Recommendations))
	for _, r := range s.Recommendations {
		actions = append(actions, r.Action)
	}
	assert.Equal(t, []string{"filter_social"}, actions)

	titles := make([]string, 0, len(s.BulkActions))
	for _, b := range s.BulkActions {
		titles = append(titles, b.Title)
	}
	assert.Equal(t, []string{"Clean up streaming services", "Reduce social media presence"}, titles)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(catalog.Default(), nil)

	assert.Equal(t, 0, s.Total)
	assert.Empty(t, s.ByCategory)
	assert.NotNil(t, s.Recommendations)
	assert.NotNil(t, s.BulkActions)
}

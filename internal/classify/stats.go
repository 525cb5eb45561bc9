package classify

import (
	"fmt"
	"slices"

	"github.com/ericfisherdev/datawipe/internal/catalog"
	"github.com/ericfisherdev/datawipe/internal/domain/model"
)

// Thresholds above which a category earns a recommendation.
const (
	manyFinance       = 5
	manySocial        = 10
	bulkEntertainment = 3
	bulkSocial        = 5
)

// CategoryCount is the number of accounts in one category.
type CategoryCount struct {
	Category model.Category
	Name     string
	Count    int
}

// Recommendation is advice derived from the account mix.
type Recommendation struct {
	Priority model.PriorityLabel
	Message  string
	Action   string
}

// BulkAction proposes handling a group of accounts together.
type BulkAction struct {
	Title       string
	Description string
	Category    model.Category
	AccountIDs  []int64
	Priority    model.PriorityLabel
}

// Stats summarizes a set of classified accounts.
type Stats struct {
	Total           int
	ByCategory      []CategoryCount
	ByRisk          map[model.Level]int
	Recommendations []Recommendation
	BulkActions     []BulkAction
}

// Summarize counts accounts by category and risk and derives recommendations.
// Categories appear in catalog order and only when non-empty.
func Summarize(c *catalog.Catalog, accounts []model.Account) Stats {
	stats := Stats{
		Total: len(accounts),
		ByRisk: map[model.Level]int{
			model.LevelCritical: 0,
			model.LevelHigh:     0,
			model.LevelMedium:   0,
			model.LevelLow:      0,
		},
		Recommendations: []Recommendation{},
		BulkActions:     []BulkAction{},
	}

	ids := make(map[model.Category][]int64)
	for _, a := range accounts {
		cat := a.Category
		if !cat.Valid() {
			cat = model.CategoryOther
		}
		ids[cat] = append(ids[cat], a.ID)
		if a.RiskLevel.Valid() {
			stats.ByRisk[a.RiskLevel]++
		} else {
			stats.ByRisk[model.LevelMedium]++
		}
	}

	for _, info := range c.Categories() {
		if n := len(ids[info.ID]); n > 0 {
			stats.ByCategory = append(stats.ByCategory, CategoryCount{Category: info.ID, Name: info.Name, Count: n})
		}
	}

	if n := stats.ByRisk[model.LevelCritical]; n > 0 {
		stats.Recommendations = append(stats.Recommendations, Recommendation{
			Priority: model.PriorityCritical,
			Message:  fmt.Sprintf("You have %d critical risk accounts. Delete these first.", n),
			Action:   "filter_critical",
		})
	}
	if len(ids[model.CategoryFinance]) > manyFinance {
		stats.Recommendations = append(stats.Recommendations, Recommendation{
			Priority: model.PriorityHigh,
			Message:  "You have many financial accounts. Consider consolidating.",
			Action:   "filter_finance",
		})
	}
	if len(ids[model.CategorySocialMedia]) > manySocial {
		stats.Recommendations = append(stats.Recommendations, Recommendation{
			Priority: model.PriorityMedium,
			Message:  "Large social media footprint detected. Review privacy settings.",
			Action:   "filter_social",
		})
	}

	if group := ids[model.CategoryEntertainment]; len(group) > bulkEntertainment {
		stats.BulkActions = append(stats.BulkActions, BulkAction{
			Title:       "Clean up streaming services",
			Description: fmt.Sprintf("You have %d entertainment accounts. Consider deleting unused subscriptions.", len(group)),
			Category:    model.CategoryEntertainment,
			AccountIDs:  slices.Clone(group),
			Priority:    model.PriorityLow,
		})
	}
	if group := ids[model.CategorySocialMedia]; len(group) > bulkSocial {
		stats.BulkActions = append(stats.BulkActions, BulkAction{
			Title:       "Reduce social media presence",
			Description: fmt.Sprintf("You have %d social media accounts. Consider deleting inactive profiles.", len(group)),
			Category:    model.CategorySocialMedia,
			AccountIDs:  slices.Clone(group),
			Priority:    model.PriorityMedium,
		})
	}
	if group := ids[model.CategoryFinance]; len(group) > 0 {
		stats.BulkActions = append(stats.BulkActions, BulkAction{
			Title:       "Secure financial accounts",
			Description: fmt.Sprintf("Review and secure your %d financial accounts before deletion.", len(group)),
			Category:    model.CategoryFinance,
			AccountIDs:  slices.Clone(group),
			Priority:    model.PriorityHigh,
		})
	}

	return stats
}

package classify

import "github.com/ericfisherdev/datawipe/internal/domain/model"

const (
	basePriority = 5
	minPriority  = 1
	maxPriority  = 10
	breachBoost  = 2
)

// Priority is a 1–10 deletion priority and its label.
type Priority struct {
	Score int
	Label model.PriorityLabel
}

// AssessPriority scores how urgently an account should be deleted. It is a
// pure function of its inputs.
func AssessPriority(category model.Category, risk model.Level, hasBreach bool) Priority {
	score := basePriority + risk.Rank()

	switch category {
	case model.CategoryFinance, model.CategoryHealth, model.CategoryEmail, model.CategorySocialMedia:
		score++
	case model.CategoryNews, model.CategoryEntertainment, model.CategoryEducation:
		score--
	}

	if hasBreach {
		score += breachBoost
	}

	score = max(minPriority, min(maxPriority, score))
	return Priority{Score: score, Label: PriorityLabelFor(score)}
}

// PriorityLabelFor buckets a priority score.
func PriorityLabelFor(score int) model.PriorityLabel {
	switch {
	case score >= 8:
		return model.PriorityCritical
	case score >= 6:
		return model.PriorityHigh
	case score >= 4:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

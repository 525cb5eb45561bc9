package model

// Category is the closed set of account categories. The catalog loader rejects
// any category identifier not listed here.
type Category string

const (
	CategorySocialMedia   Category = "social_media"
	CategoryFinance       Category = "finance"
	CategoryShopping      Category = "shopping"
	CategoryEntertainment Category = "entertainment"
	CategoryProductivity  Category = "productivity"
	CategoryEmail         Category = "email"
	CategoryTravel        Category = "travel"
	CategoryHealth        Category = "health"
	CategoryEducation     Category = "education"
	CategoryDating        Category = "dating"
	CategoryNews          Category = "news"
	CategoryDeveloper     Category = "developer"
	CategoryOther         Category = "other" // Catch-all.
)

// Categories returns every known category in declaration order.
func Categories() []Category {
	return []Category{
		CategorySocialMedia,
		CategoryFinance,
		CategoryShopping,
		CategoryEntertainment,
		CategoryProductivity,
		CategoryEmail,
		CategoryTravel,
		CategoryHealth,
		CategoryEducation,
		CategoryDating,
		CategoryNews,
		CategoryDeveloper,
		CategoryOther,
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// Level grades both risk and data sensitivity.
type Level string

const (
	LevelCritical Level = "critical"
	LevelHigh     Level = "high"
	LevelMedium   Level = "medium"
	LevelLow      Level = "low"
)

// Rank orders levels from low (0) to critical (3). Unknown levels rank as low.
func (l Level) Rank() int {
	switch l {
	case LevelCritical:
		return 3
	case LevelHigh:
		return 2
	case LevelMedium:
		return 1
	default:
		return 0
	}
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	switch l {
	case LevelCritical, LevelHigh, LevelMedium, LevelLow:
		return true
	}
	return false
}

// PriorityLabel is the bucketed form of a 1–10 deletion priority.
type PriorityLabel string

const (
	PriorityCritical PriorityLabel = "critical"
	PriorityHigh     PriorityLabel = "high"
	PriorityMedium   PriorityLabel = "medium"
	PriorityLow      PriorityLabel = "low"
)

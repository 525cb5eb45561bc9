package model

import "time"

// OutcomeResult distinguishes why an automated attempt did not complete.
type OutcomeResult string

const (
	OutcomeSucceeded OutcomeResult = "succeeded"
	OutcomeFailed    OutcomeResult = "failed"  // The navigator tried and the site did not cooperate.
	OutcomeSkipped   OutcomeResult = "skipped" // Automation was judged unsuitable and not tried.
)

// Reasons automation was skipped without being attempted.
const (
	SkipNoNavigator        = "navigator_unavailable"
	SkipNoEnrichment       = "enrichment_unavailable"
	SkipNoDeletionURL      = "no_deletion_url"
	SkipDifficultyTooHigh  = "difficulty_too_high"
	SkipNotSupported       = "not_supported"
	SkipRequiresTwoFactor  = "requires_two_factor"
	SkipMissingCredentials = "missing_credentials"
)

// DeletionOutcome is what a Navigator reports after an automated attempt.
type DeletionOutcome struct {
	Result           OutcomeResult
	ConfirmationText string
	Error            string
	SkipReason       string
}

// Succeeded reports whether the account was deleted.
func (o DeletionOutcome) Succeeded() bool { return o.Result == OutcomeSucceeded }

// Reason returns the skip reason or failure message, whichever applies.
func (o DeletionOutcome) Reason() string {
	if o.Result == OutcomeSkipped {
		return o.SkipReason
	}
	return o.Error
}

// SiteMetadata is what the enrichment oracle knows about deleting an account on a site.
type SiteMetadata struct {
	Domain               string
	SiteName             string
	SiteURL              string
	DeletionURL          string
	DeletionContactEmail string
	DeletionDifficulty   int // 1–10; 0 when unknown.
	PrivacyPolicyURL     string
	Instructions         string
	UpdatedAt            time.Time
}

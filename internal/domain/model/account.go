package model

import (
	"encoding/json"
	"log/slog"
	"time"
)

// redacted is the placeholder printed wherever a Secret would otherwise leak.
const redacted = "[REDACTED]"

// Secret holds a password taken from a password-manager export. It formats,
// logs, and marshals as a placeholder; call Reveal to get the plaintext.
type Secret string

// Reveal returns the plaintext secret.
func (s Secret) Reveal() string { return string(s) }

// IsZero reports whether the secret is empty.
func (s Secret) IsZero() bool { return s == "" }

// String implements fmt.Stringer.
func (s Secret) String() string { return redacted }

// GoString implements fmt.GoStringer so %#v does not print the plaintext either.
func (s Secret) GoString() string { return redacted }

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value { return slog.StringValue(redacted) }

// MarshalJSON implements json.Marshaler.
func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(redacted) }

// AccountStatus mirrors the state of an account's most recent deletion task.
type AccountStatus string

const (
	AccountStatusDiscovered     AccountStatus = "discovered"
	AccountStatusPending        AccountStatus = "pending"
	AccountStatusInProgress     AccountStatus = "in_progress"
	AccountStatusCompleted      AccountStatus = "completed"
	AccountStatusFailed         AccountStatus = "failed"
	AccountStatusNeedsAttention AccountStatus = "needs_attention" // Retries exhausted; manual follow-up required.
)

// CanonicalAccount is a single login extracted from a password-manager export,
// independent of the export format it came from.
type CanonicalAccount struct {
	SiteName string
	SiteURL  string // scheme://host only
	Username string
	Secret   Secret
	Email    string
	Notes    string
}

// Identity returns the username, or the email when no username is present.
func (a CanonicalAccount) Identity() string {
	if a.Username != "" {
		return a.Username
	}
	return a.Email
}

// Account is a persisted, classified account.
type Account struct {
	ID int64
	CanonicalAccount

	Category           Category
	CategoryConfidence float64
	CategoryReason     string
	RiskLevel          Level
	DataSensitivity    Level
	DeletionPriority   int
	PriorityLabel      PriorityLabel
	HasBreach          bool

	Status       AccountStatus
	SourceFormat string
	ImportID     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

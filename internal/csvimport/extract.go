package csvimport

import (
	"strings"

	"github.com/ericfisherdev/datawipe/internal/catalog"
	"github.com/ericfisherdev/datawipe/internal/domain/model"
)

// Reasons a row is left out of an extraction.
const (
	ReasonMissingSecret   = "missing password"
	ReasonMissingIdentity = "missing username and email"
	ReasonNonLogin        = "not a login item"
	ReasonMissingSite     = "missing site name and URL"
)

// SkipRecord explains why a row produced no account. Row is the 1-based data
// row number, not counting the header.
type SkipRecord struct {
	Row      int
	Reason   string
	SiteName string
}

// Extraction holds the accounts taken from a table, in row order, and the
// rows that were skipped.
type Extraction struct {
	Accounts []model.CanonicalAccount
	Skipped  []SkipRecord
}

// Extractor turns table rows into canonical accounts.
type Extractor struct {
	catalog *catalog.Catalog
}

// NewExtractor returns an extractor that uses c for URL guesses and
// non-login markers.
func NewExtractor(c *catalog.Catalog) *Extractor {
	return &Extractor{catalog: c}
}

// Extract maps every row through m. A bad row is recorded in Skipped and
// never stops the rest of the table.
func (e *Extractor) Extract(t *Table, m model.FormatMapping) Extraction {
	var out Extraction
	for i, row := range t.Rows {
		account, reason := e.extractRow(t, m, row)
		if reason != "" {
			out.Skipped = append(out.Skipped, SkipRecord{Row: i + 1, Reason: reason, SiteName: account.SiteName})
			continue
		}
		out.Accounts = append(out.Accounts, account)
	}
	return out
}

func (e *Extractor) extractRow(t *Table, m model.FormatMapping, row []string) (model.CanonicalAccount, string) {
	get := func(f model.Field) string {
		col := m.Column(f)
		if col == "" {
			return ""
		}
		return t.Value(row, col)
	}

	acct := model.CanonicalAccount{
		SiteName: get(model.FieldSiteName),
		Username: get(model.FieldUsername),
		Secret:   model.Secret(get(model.FieldSecret)),
		Email:    get(model.FieldEmail),
		Notes:    get(model.FieldNotes),
	}
	rawURL := get(model.FieldSiteURL)

	if acct.Secret.IsZero() {
		return acct, ReasonMissingSecret
	}
	if acct.Username == "" && acct.Email == "" {
		return acct, ReasonMissingIdentity
	}

	if acct.SiteName == "" && NormalizeURL(rawURL) != "" {
		acct.SiteName = SiteNameFromURL(rawURL)
	}
	if NormalizeURL(rawURL) == "" && acct.SiteName != "" {
		rawURL = e.guessURL(acct.SiteName)
	}
	acct.SiteURL = NormalizeURL(rawURL)

	if acct.Email == "" {
		acct.Email = ExtractEmail(acct.Username)
	}
	if acct.Email == "" {
		acct.Email = ExtractEmail(acct.Notes)
	}

	if e.isNonLogin(acct.SiteName, acct.SiteURL, get(model.FieldType)) {
		return acct, ReasonNonLogin
	}
	if acct.SiteURL == "" {
		return acct, ReasonMissingSite
	}
	return acct, ""
}

func (e *Extractor) guessURL(siteName string) string {
	if u, ok := e.catalog.GuessURL(siteName); ok {
		return u
	}
	return slugURL(siteName)
}

// isNonLogin reports whether a record is a note, card, key, or similar item
// rather than a website login.
func (e *Extractor) isNonLogin(siteName, siteURL, itemType string) bool {
	if itemType != "" && !strings.EqualFold(itemType, "login") {
		return true
	}
	combined := strings.ToLower(siteName + " " + siteURL)
	for _, marker := range e.catalog.NonLoginMarkers() {
		if strings.Contains(combined, marker) {
			return true
		}
	}
	return false
}

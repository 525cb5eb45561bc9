package csvimport

import (
	"slices"
	"strings"

	"github.com/ericfisherdev/datawipe/internal/domain/model"
)

// GenericFormatID identifies exports recognized by column-name heuristics
// rather than a known layout.
const GenericFormatID = "generic"

const (
	minKnownScore = 0.5
	criticalBonus = 0.1
	genericScore  = 0.5
)

// Substrings that make a column look like a password, an identifier, or a URL.
var (
	passwordHints   = []string{"password", "pass", "pwd"}
	identifierHints = []string{"username", "email", "login", "user"}
	urlHints        = []string{"url", "website", "site", "domain"}
)

// Detection is the outcome of format detection.
type Detection struct {
	FormatID   string
	FormatName string
	Confidence float64 // Clamped to [0, 1].
	Score      float64 // Raw score including critical-column bonuses.
	Generic    bool
	Mapping    model.FormatMapping
}

// Detector identifies which password manager produced an export.
type Detector struct {
	formats []model.FormatMapping
}

// NewDetector returns a detector over formats, which are scored in order.
func NewDetector(formats []model.FormatMapping) *Detector {
	return &Detector{formats: formats}
}

// Detect scores every known layout against the table header and returns the
// best. Below the acceptance threshold it falls back to generic heuristics;
// if those fail too the error is a *FormatError wrapping ErrNoFormatDetected.
func (d *Detector) Detect(t *Table) (Detection, error) {
	columns := t.ColumnSet()

	var best Detection
	found := false
	for _, f := range d.formats {
		score := Score(f, columns)
		if !found || score > best.Score {
			best = Detection{
				FormatID:   f.ID,
				FormatName: f.Name,
				Score:      score,
				Confidence: min(score, 1),
				Mapping:    f,
			}
			found = true
		}
	}
	if found && best.Score >= minKnownScore {
		return best, nil
	}

	if mapping, ok := genericMapping(t.DistinctColumns()); ok {
		return Detection{
			FormatID:   GenericFormatID,
			FormatName: mapping.Name,
			Score:      genericScore,
			Confidence: genericScore,
			Generic:    true,
			Mapping:    mapping,
		}, nil
	}

	return Detection{}, &FormatError{Columns: t.DistinctColumns(), Err: ErrNoFormatDetected}
}

// Score rates how well columns match format f: the fraction of f's columns
// present, plus a bonus for each URL, username, or password column present.
func Score(f model.FormatMapping, columns map[string]struct{}) float64 {
	if len(f.Columns) == 0 {
		return 0
	}
	matches := 0
	for _, c := range f.Columns {
		if _, ok := columns[c]; ok {
			matches++
		}
	}
	score := float64(matches) / float64(len(f.Columns))
	for _, c := range f.CriticalColumns() {
		if _, ok := columns[c]; ok {
			score += criticalBonus
		}
	}
	return score
}

func containsAny(s string, subs []string) bool {
	return slices.ContainsFunc(subs, func(sub string) bool { return strings.Contains(s, sub) })
}

// genericCandidates lists, per field and in resolution order, exact column
// names tried first and then substrings.
var genericCandidates = []struct {
	field  model.Field
	exact  []string
	substr []string
}{
	{model.FieldSecret, []string{"password", "pass", "pwd", "passwd"}, []string{"password", "pass", "pwd"}},
	{model.FieldSiteURL, []string{"url", "website", "web site", "login_uri", "uri", "site_url", "domain"}, []string{"url", "uri", "website", "domain"}},
	{model.FieldUsername, []string{"username", "user", "user name", "login", "login_username"}, []string{"username", "user", "login"}},
	{model.FieldEmail, []string{"email", "e-mail", "email address", "mail"}, []string{"email", "mail"}},
	{model.FieldNotes, []string{"notes", "note", "extra", "comments", "comment", "description"}, []string{"note", "comment", "extra"}},
	{model.FieldSiteName, []string{"name", "title", "site", "site_name", "service", "account"}, []string{"name", "title", "site"}},
}

// genericMapping builds a mapping from column-name heuristics. It requires a
// password-like column plus an identifier-like or URL-like column.
func genericMapping(columns []string) (model.FormatMapping, bool) {
	hasPassword := slices.ContainsFunc(columns, func(c string) bool { return containsAny(c, passwordHints) })
	hasIdentifier := slices.ContainsFunc(columns, func(c string) bool { return containsAny(c, identifierHints) })
	hasURL := slices.ContainsFunc(columns, func(c string) bool { return containsAny(c, urlHints) })
	if !hasPassword || (!hasIdentifier && !hasURL) {
		return model.FormatMapping{}, false
	}

	claimed := make(map[string]bool)
	fields := make(map[model.Field]string)
	for _, cand := range genericCandidates {
		col := resolveColumn(columns, claimed, cand.exact, cand.substr)
		if col != "" {
			fields[cand.field] = col
			claimed[col] = true
		}
	}
	if fields[model.FieldSecret] == "" {
		return model.FormatMapping{}, false
	}

	return model.FormatMapping{
		ID:      GenericFormatID,
		Name:    "Generic",
		Columns: slices.Clone(columns),
		Fields:  fields,
	}, true
}

func resolveColumn(columns []string, claimed map[string]bool, exact, substr []string) string {
	for _, name := range exact {
		if !claimed[name] && slices.Contains(columns, name) {
			return name
		}
	}
	for _, sub := range substr {
		for _, c := range columns {
			if !claimed[c] && strings.Contains(c, sub) {
				return c
			}
		}
	}
	return ""
}

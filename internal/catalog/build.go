package catalog

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ericfisherdev/datawipe/internal/domain/model"
)

type formatsDoc struct {
	Formats []formatEntry `yaml:"formats"`
}

type formatEntry struct {
	ID      string            `yaml:"id"`
	Name    string            `yaml:"name"`
	Columns []string          `yaml:"columns"`
	Fields  map[string]string `yaml:"fields"`
}

type categoriesDoc struct {
	Categories []categoryEntry `yaml:"categories"`
}

type categoryEntry struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	Description     string   `yaml:"description"`
	Keywords        []string `yaml:"keywords"`
	Domains         []string `yaml:"domains"`
	RiskLevel       string   `yaml:"risk_level"`
	DataSensitivity string   `yaml:"data_sensitivity"`
	CatchAll        bool     `yaml:"catch_all"`
}

type sitesDoc struct {
	URLGuesses      map[string]string `yaml:"url_guesses"`
	NonLoginMarkers []string          `yaml:"non_login_markers"`
	PrivacyAliases  []string          `yaml:"privacy_aliases"`
}

var knownFields = []model.Field{
	model.FieldSiteName,
	model.FieldSiteURL,
	model.FieldUsername,
	model.FieldSecret,
	model.FieldEmail,
	model.FieldNotes,
	model.FieldType,
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func buildFormats(entries []formatEntry) ([]model.FormatMapping, error) {
	if len(entries) == 0 {
		return nil, errors.New("no formats defined")
	}

	seen := make(map[string]bool, len(entries))
	formats := make([]model.FormatMapping, 0, len(entries))
	for _, e := range entries {
		id := normalize(e.ID)
		if id == "" {
			return nil, fmt.Errorf("format %q: missing id", e.Name)
		}
		if id == "generic" {
			return nil, errors.New(`format id "generic" is reserved`)
		}
		if seen[id] {
			return nil, fmt.Errorf("format %q: duplicate id", id)
		}
		seen[id] = true

		if len(e.Columns) == 0 {
			return nil, fmt.Errorf("format %q: no columns", id)
		}
		columns := make([]string, 0, len(e.Columns))
		for _, col := range e.Columns {
			col = normalize(col)
			if col == "" || slices.Contains(columns, col) {
				return nil, fmt.Errorf("format %q: empty or duplicate column", id)
			}
			columns = append(columns, col)
		}

		fields := make(map[model.Field]string, len(e.Fields))
		for key, col := range e.Fields {
			field := model.Field(normalize(key))
			if !slices.Contains(knownFields, field) {
				return nil, fmt.Errorf("format %q: unknown field %q", id, key)
			}
			col = normalize(col)
			if !slices.Contains(columns, col) {
				return nil, fmt.Errorf("format %q: field %s maps to unlisted column %q", id, field, col)
			}
			fields[field] = col
		}
		if fields[model.FieldSecret] == "" {
			return nil, fmt.Errorf("format %q: no secret column", id)
		}
		if fields[model.FieldSiteURL] == "" && fields[model.FieldSiteName] == "" {
			return nil, fmt.Errorf("format %q: needs a site_url or site_name column", id)
		}

		name := strings.TrimSpace(e.Name)
		if name == "" {
			name = id
		}
		formats = append(formats, model.FormatMapping{ID: id, Name: name, Columns: columns, Fields: fields})
	}
	return formats, nil
}

func buildCategories(entries []categoryEntry) ([]CategoryInfo, int, error) {
	categories := make([]CategoryInfo, 0, len(entries))
	catchAll := -1
	for i, e := range entries {
		id := model.Category(normalize(e.ID))
		if !id.Valid() {
			return nil, 0, fmt.Errorf("unknown category %q", e.ID)
		}
		if slices.ContainsFunc(categories, func(c CategoryInfo) bool { return c.ID == id }) {
			return nil, 0, fmt.Errorf("category %q: duplicate id", id)
		}

		risk := model.Level(normalize(e.RiskLevel))
		sensitivity := model.Level(normalize(e.DataSensitivity))
		if !risk.Valid() || !sensitivity.Valid() {
			return nil, 0, fmt.Errorf("category %q: invalid risk_level or data_sensitivity", id)
		}

		if e.CatchAll {
			if catchAll >= 0 {
				return nil, 0, fmt.Errorf("category %q: more than one catch_all", id)
			}
			catchAll = i
		}

		keywords := make([]string, 0, len(e.Keywords))
		for _, k := range e.Keywords {
			if k = normalize(k); k != "" {
				keywords = append(keywords, k)
			}
		}
		domains := make([]string, 0, len(e.Domains))
		for _, d := range e.Domains {
			d = normalize(d)
			if d == "" || strings.ContainsAny(d, "/:") || !strings.Contains(d, ".") {
				return nil, 0, fmt.Errorf("category %q: invalid domain %q", id, d)
			}
			domains = append(domains, strings.TrimPrefix(d, "www."))
		}

		categories = append(categories, CategoryInfo{
			ID:              id,
			Name:            strings.TrimSpace(e.Name),
			Description:     strings.TrimSpace(e.Description),
			Keywords:        keywords,
			Domains:         domains,
			RiskLevel:       risk,
			DataSensitivity: sensitivity,
			CatchAll:        e.CatchAll,
		})
	}

	for _, id := range model.Categories() {
		if !slices.ContainsFunc(categories, func(c CategoryInfo) bool { return c.ID == id }) {
			return nil, 0, fmt.Errorf("category %q is not defined", id)
		}
	}
	if catchAll < 0 {
		return nil, 0, errors.New("no catch_all category")
	}
	return categories, catchAll, nil
}

func (c *Catalog) buildSites(doc sitesDoc) error {
	c.urlGuesses = make(map[string]string, len(doc.URLGuesses))
	for name, u := range doc.URLGuesses {
		u = strings.TrimSpace(u)
		if !strings.HasPrefix(u, "https://") && !strings.HasPrefix(u, "http://") {
			return fmt.Errorf("url guess %q: %q is not an http(s) URL", name, u)
		}
		c.urlGuesses[normalize(name)] = u
	}

	for _, m := range doc.NonLoginMarkers {
		if m = normalize(m); m != "" {
			c.nonLogin = append(c.nonLogin, m)
		}
	}

	for _, a := range doc.PrivacyAliases {
		a = normalize(a)
		if a == "" || strings.ContainsAny(a, "@ ") {
			return fmt.Errorf("invalid privacy alias %q", a)
		}
		c.aliases = append(c.aliases, a)
	}
	if len(c.aliases) == 0 {
		return errors.New("no privacy aliases")
	}
	return nil
}

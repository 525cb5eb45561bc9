// Package catalog holds the static reference data used to import and classify
// accounts: export formats, categories, URL guesses, non-login markers, and
// privacy aliases. The data ships embedded in the binary and is loaded once.
package catalog

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/datawipe/internal/domain/model"
)

//go:embed data/*.yaml
var dataFS embed.FS

const (
	formatsFile    = "formats.yaml"
	categoriesFile = "categories.yaml"
	sitesFile      = "sites.yaml"
)

// CategoryInfo is the static description of one category.
type CategoryInfo struct {
	ID              model.Category
	Name            string
	Description     string
	Keywords        []string
	Domains         []string
	RiskLevel       model.Level
	DataSensitivity model.Level
	CatchAll        bool
}

// Catalog is an immutable view of the reference data. Accessors return copies.
type Catalog struct {
	formats    []model.FormatMapping
	categories []CategoryInfo
	catchAll   int
	urlGuesses map[string]string
	nonLogin   []string
	aliases    []string
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	c, err := Load(embedded())
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded data is invalid: %v", err))
	}
	return c
})

// Default returns the catalog built from the embedded data.
func Default() *Catalog {
	return defaultCatalog()
}

// Open loads the catalog with any of formats.yaml, categories.yaml, or
// sites.yaml found in dir replacing the embedded copy. An empty dir returns
// Default().
func Open(dir string) (*Catalog, error) {
	if dir == "" {
		return Default(), nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open catalog dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open catalog dir: %s is not a directory", dir)
	}
	return Load(overlayFS{primary: os.DirFS(dir), fallback: embedded()})
}

// Load reads and validates the three catalog files from the root of fsys.
func Load(fsys fs.FS) (*Catalog, error) {
	var formats formatsDoc
	if err := decodeFile(fsys, formatsFile, &formats); err != nil {
		return nil, err
	}
	var categories categoriesDoc
	if err := decodeFile(fsys, categoriesFile, &categories); err != nil {
		return nil, err
	}
	var sites sitesDoc
	if err := decodeFile(fsys, sitesFile, &sites); err != nil {
		return nil, err
	}

	c := &Catalog{}
	var err error
	if c.formats, err = buildFormats(formats.Formats); err != nil {
		return nil, fmt.Errorf("%s: %w", formatsFile, err)
	}
	if c.categories, c.catchAll, err = buildCategories(categories.Categories); err != nil {
		return nil, fmt.Errorf("%s: %w", categoriesFile, err)
	}
	if err := c.buildSites(sites); err != nil {
		return nil, fmt.Errorf("%s: %w", sitesFile, err)
	}
	return c, nil
}

// Formats returns the export formats in detection order.
func (c *Catalog) Formats() []model.FormatMapping {
	out := make([]model.FormatMapping, len(c.formats))
	for i, f := range c.formats {
		out[i] = cloneFormat(f)
	}
	return out
}

// Format returns the format with the given ID.
func (c *Catalog) Format(id string) (model.FormatMapping, bool) {
	for _, f := range c.formats {
		if f.ID == id {
			return cloneFormat(f), true
		}
	}
	return model.FormatMapping{}, false
}

// Categories returns every category in classification order, catch-all included.
func (c *Catalog) Categories() []CategoryInfo {
	out := make([]CategoryInfo, len(c.categories))
	for i, cat := range c.categories {
		out[i] = cloneCategory(cat)
	}
	return out
}

// Category returns the category with the given ID.
func (c *Catalog) Category(id model.Category) (CategoryInfo, bool) {
	for _, cat := range c.categories {
		if cat.ID == id {
			return cloneCategory(cat), true
		}
	}
	return CategoryInfo{}, false
}

// CatchAll returns the category used when nothing else matches.
func (c *Catalog) CatchAll() CategoryInfo {
	return cloneCategory(c.categories[c.catchAll])
}

// GuessURL looks up a well-known site's login URL by site name.
func (c *Catalog) GuessURL(siteName string) (string, bool) {
	u, ok := c.urlGuesses[strings.ToLower(strings.TrimSpace(siteName))]
	return u, ok
}

// NonLoginMarkers returns the lower-case substrings that identify non-login records.
func (c *Catalog) NonLoginMarkers() []string {
	return slices.Clone(c.nonLogin)
}

// PrivacyAliases returns the mailbox local parts to guess, in order.
func (c *Catalog) PrivacyAliases() []string {
	return slices.Clone(c.aliases)
}

func cloneFormat(f model.FormatMapping) model.FormatMapping {
	f.Columns = slices.Clone(f.Columns)
	f.Fields = maps.Clone(f.Fields)
	return f
}

func cloneCategory(c CategoryInfo) CategoryInfo {
	c.Keywords = slices.Clone(c.Keywords)
	c.Domains = slices.Clone(c.Domains)
	return c
}

func embedded() fs.FS {
	sub, err := fs.Sub(dataFS, "data")
	if err != nil {
		panic(err)
	}
	return sub
}

// decodeFile strictly decodes a YAML file, rejecting unknown keys.
func decodeFile(fsys fs.FS, name string, v any) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// overlayFS serves files from primary, falling back to fallback when a file
// is absent.
type overlayFS struct {
	primary  fs.FS
	fallback fs.FS
}

func (o overlayFS) Open(name string) (fs.File, error) {
	f, err := o.primary.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return o.fallback.Open(name)
	}
	return f, err
}

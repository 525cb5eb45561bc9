package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/datawipe/internal/domain/model"
)

func TestDefault_LoadsEmbeddedData(t *testing.T) {
	c := Default()

	ids := make([]string, 0)
	for _, f := range c.Formats() {
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []string{
		"bitwarden", "nordpass", "firefox", "dashlane", "roboform",
		"lastpass", "1password", "enpass", "keepass", "chrome",
	}, ids)

	assert.Len(t, c.Categories(), len(model.Categories()))
	assert.Equal(t, model.CategoryOther, c.CatchAll().ID)
	assert.Equal(t, []string{"privacy", "data-protection", "gdpr", "legal", "support"}, c.PrivacyAliases())
	assert.Contains(t, c.NonLoginMarkers(), "secure note")
}

func TestDefault_FacebookIsHighRiskSocial(t *testing.T) {
	info, ok := Default().Category(model.CategorySocialMedia)
	require.True(t, ok)

	assert.Equal(t, "Social Media", info.Name)
	assert.Equal(t, model.LevelHigh, info.RiskLevel)
	assert.Contains(t, info.Domains, "facebook.com")
}

func TestCatalog_AccessorsReturnCopies(t *testing.T) {
	c := Default()

	formats := c.Formats()
	formats[0].Columns[0] = "mutated"
	formats[0].Fields[model.FieldSecret] = "mutated"

	again, ok := c.Format(formats[0].ID)
	require.True(t, ok)
	assert.Equal(t, "folder", again.Columns[0])
	assert.Equal(t, "login_password", again.Column(model.FieldSecret))

	aliases := c.PrivacyAliases()
	aliases[0] = "mutated"
	assert.Equal(t, "privacy", c.PrivacyAliases()[0])
}

func TestCatalog_GuessURL(t *testing.T) {
	c := Default()

	u, ok := c.GuessURL("  Google ")
	assert.True(t, ok)
	assert.Equal(t, "https://accounts.google.com", u)

	_, ok = c.GuessURL("UnknownSite")
	assert.False(t, ok)
}

func TestFormat_CriticalColumns(t *testing.T) {
	bw, ok := Default().Format("bitwarden")
	require.True(t, ok)

	assert.ElementsMatch(t, []string{"login_uri", "login_username", "login_password"}, bw.CriticalColumns())
	assert.False(t, bw.HasEmailField())

	np, ok := Default().Format("nordpass")
	require.True(t, ok)
	assert.True(t, np.HasEmailField())
}

func embeddedFile(t *testing.T, name string) []byte {
	t.Helper()
	data, err := dataFS.ReadFile("data/" + name)
	require.NoError(t, err)
	return data
}

func TestLoad_RejectsUnknownCategory(t *testing.T) {
	fsys := fstest.MapFS{
		formatsFile: {Data: embeddedFile(t, formatsFile)},
		sitesFile:   {Data: embeddedFile(t, sitesFile)},
		categoriesFile: {Data: []byte(`categories:
  - id: gambling
    name: Gambling
    risk_level: high
    data_sensitivity: high
`)},
	}

	_, err := Load(fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown category "gambling"`)
}

func TestLoad_RejectsFieldOnUnlistedColumn(t *testing.T) {
	fsys := fstest.MapFS{
		categoriesFile: {Data: embeddedFile(t, categoriesFile)},
		sitesFile:      {Data: embeddedFile(t, sitesFile)},
		formatsFile: {Data: []byte(`formats:
  - id: broken
    columns: [url, password]
    fields:
      site_url: url
      secret: pass
`)},
	}

	_, err := Load(fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unlisted column")
}

func TestLoad_RejectsUnknownYAMLKeys(t *testing.T) {
	fsys := fstest.MapFS{
		formatsFile:    {Data: embeddedFile(t, formatsFile)},
		categoriesFile: {Data: embeddedFile(t, categoriesFile)},
		sitesFile:      {Data: []byte("privacy_aliases: [privacy]\nunexpected: true\n")},
	}

	_, err := Load(fsys)
	require.Error(t, err)
}

func TestOpen_OverridesOnlyPresentFiles(t *testing.T) {
	dir := t.TempDir()
	sites := []byte("url_guesses:\n  acme: https://login.acme.test\nprivacy_aliases: [dpo]\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, sitesFile), sites, 0o600))

	c, err := Open(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"dpo"}, c.PrivacyAliases())
	u, ok := c.GuessURL("ACME")
	assert.True(t, ok)
	assert.Equal(t, "https://login.acme.test", u)

	// Formats still come from the embedded copy.
	assert.Len(t, c.Formats(), len(Default().Formats()))
}

func TestOpen_EmptyDirReturnsDefault(t *testing.T) {
	c, err := Open("")
	require.NoError(t, err)
	assert.Same(t, Default(), c)
}

func TestOpen_MissingDir(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bitwardenExport = `folder,favorite,type,name,notes,fields,reprompt,login_uri,login_username,login_password,login_totp
,,login,GitHub,,,0,https://github.com/login,alice,hunter2,
,,login,Chase,,,0,https://www.chase.com,alice@example.com,pa55word,
,,note,Wifi,,,0,,,,
`

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.Execute()
	return out.String(), err
}

func TestInspect_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(path, []byte(bitwardenExport), 0o600))

	out, err := run(t, "", "inspect", "--skipped", path)
	require.NoError(t, err)

	assert.Contains(t, out, "[bitwarden]")
	assert.Contains(t, out, "GitHub")
	assert.Contains(t, out, "Chase")
	assert.Contains(t, out, "ROW")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "pa55word")

	// The finance account outranks the developer one.
	assert.Less(t, strings.Index(out, "Chase"), strings.Index(out, "GitHub"))
}

func TestInspect_Stdin(t *testing.T) {
	out, err := run(t, bitwardenExport, "inspect", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "Accounts:   2")
}

func TestInspect_Errors(t *testing.T) {
	_, err := run(t, "", "inspect", filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read export")

	_, err = run(t, "colour,shape\nred,square\n", "inspect", "-")
	assert.Error(t, err)

	_, err = run(t, "", "inspect")
	assert.Error(t, err, "an export path is required")
}

func TestFormats(t *testing.T) {
	out, err := run(t, "", "formats")
	require.NoError(t, err)

	assert.Contains(t, out, "bitwarden")
	assert.Contains(t, out, "firefox")
}

func TestStrategies(t *testing.T) {
	out, err := run(t, "", "strategies")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 7)
	assert.True(t, strings.HasPrefix(lines[1], "auth_failed"))
	assert.Contains(t, out, "rate_limit")
	assert.Contains(t, out, "5m0s")
}

func TestServe_RequiresSecretKey(t *testing.T) {
	t.Setenv("DATAWIPE_SECRET_KEY", "")

	_, err := run(t, "", "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATAWIPE_SECRET_KEY")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	newLogger(&buf, slog.LevelInfo, "json").Info("hello", "k", "v")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "v", rec["k"])

	buf.Reset()
	logger := newLogger(&buf, slog.LevelWarn, "text")
	logger.Info("dropped")
	logger.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "msg=kept")
}

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
terminal_id: term-1
employee_id: emp-1
backend:
  base_url: http://pos.local:8080
transport: sse
capabilities:
  age_verification: true
  fraud_detection: true
  purchase_recommender: false
currency: GBP
journal_path: /var/lib/basketd/journal.db
listen_addr: ":7143"
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRoot_InvalidFormatRejected(t *testing.T) {
	_, err := execute(t, "--format", "xml", "validate", "whatever.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestValidate_ValidConfig(t *testing.T) {
	path := writeFile(t, "terminal.yaml", validConfig)

	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "true")
}

func TestValidate_InvalidConfigExitsFailure(t *testing.T) {
	path := writeFile(t, "terminal.yaml", `
employee_id: emp-1
backend:
  base_url: not-a-url
`)

	out, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "base_url")
}

func TestValidate_MissingFileIsCommandError(t *testing.T) {
	_, err := execute(t, "validate", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReplay_MissingJournalIsCommandError(t *testing.T) {
	_, err := execute(t, "replay", filepath.Join(t.TempDir(), "nope.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGetExitCode_PlainErrorIsFailure(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "boom")))
}

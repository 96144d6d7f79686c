package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useTempDatabase(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", filepath.Join(t.TempDir(), "pdfgate.db"))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd("test")
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

var rawKeyPattern = regexp.MustCompile(`Key:\s+(epf_\S+)`)

func createKey(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, append([]string{"key", "create"}, args...)...)
	require.NoError(t, err)
	m := rawKeyPattern.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	return m[1]
}

func TestKeyCreateAndList(t *testing.T) {
	useTempDatabase(t)

	raw := createKey(t, "--plan", "pro", "--email", "ops@example.com")
	assert.Contains(t, raw, "epf_")

	out, err := execute(t, "key", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "pro")
	assert.Contains(t, out, "ops@example.com")
	assert.Contains(t, out, raw[:12])
	assert.NotContains(t, out, raw, "raw keys are never listed")

	out, err = execute(t, "key", "list", "--json")
	require.NoError(t, err)
	var keys []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &keys))
	require.Len(t, keys, 1)
	assert.Equal(t, "pro", keys[0]["plan"])
	assert.NotContains(t, keys[0], "key_hash")
}

func TestKeyCreate_UnknownPlan(t *testing.T) {
	useTempDatabase(t)

	_, err := execute(t, "key", "create", "--plan", "enterprise")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown plan")
}

func TestKeyList_Empty(t *testing.T) {
	useTempDatabase(t)

	out, err := execute(t, "key", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No API keys issued")
}

func TestKeyRevoke(t *testing.T) {
	useTempDatabase(t)
	raw := createKey(t)

	out, err := execute(t, "key", "revoke", raw[:12])
	require.NoError(t, err)
	assert.Contains(t, out, "Revoked 1 API key(s)")

	_, err = execute(t, "key", "revoke", raw[:12])
	require.Error(t, err, "already revoked")

	_, err = execute(t, "usage", "--key", raw)
	require.Error(t, err)
}

func TestUsage(t *testing.T) {
	useTempDatabase(t)
	raw := createKey(t, "--plan", "starter")

	out, err := execute(t, "usage", "--key", raw)
	require.NoError(t, err)
	assert.Contains(t, out, "(starter)")
	assert.Contains(t, out, "0 of 500 requests used")

	out, err = execute(t, "usage", "--ip", "203.0.113.9", "--month", "2026-09")
	require.NoError(t, err)
	assert.Contains(t, out, "ip 203.0.113.9 (free) in 2026-09: 0 of 50 requests used")
}

func TestUsage_FlagValidation(t *testing.T) {
	useTempDatabase(t)

	for _, args := range [][]string{
		{"usage"},
		{"usage", "--key", "epf_x", "--ip", "203.0.113.9"},
		{"usage", "--ip", "203.0.113.9", "--month", "September"},
	} {
		_, err := execute(t, args...)
		assert.Error(t, err, args)
	}
}

func TestPlans_AppliesOverrides(t *testing.T) {
	useTempDatabase(t)
	t.Setenv("PLAN_FREE_MONTHLY_LIMIT", "25")

	out, err := execute(t, "plans")
	require.NoError(t, err)
	assert.Regexp(t, `free\s+25\s+true`, out)
	assert.Regexp(t, `business\s+20000\s+false\s+true`, out)
}

func TestMigrate(t *testing.T) {
	useTempDatabase(t)

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema is up to date.")
}

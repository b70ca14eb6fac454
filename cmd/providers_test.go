package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reconcile-cli/internal/ai"
	"github.com/sells-group/reconcile-cli/internal/config"
)

func rosterConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.yaml")
	withConfig(t, &config.Config{AI: config.AIConfig{RosterFile: path}})
	return path
}

func runCmd(t *testing.T, c *cobra.Command, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	c.SetOut(&buf)
	t.Cleanup(func() { c.SetOut(nil) })
	require.NoError(t, c.RunE(c, args))
	return buf.String()
}

func TestPrintRoster(t *testing.T) {
	r, err := ai.NewRoster(ai.DefaultProviders(), nil)
	require.NoError(t, err)
	require.NoError(t, r.EnableEmergencyMode("openai"))

	var buf bytes.Buffer
	require.NoError(t, printRoster(&buf, r))
	out := buf.String()
	assert.Contains(t, out, "PRIORITY")
	assert.Contains(t, out, "glm-4.5")
	assert.Contains(t, out, "gpt-4o-mini")
	assert.Contains(t, out, "OFFLINE")
	assert.Contains(t, out, "emergency mode: openai")
}

func TestProvidersToggle_Persists(t *testing.T) {
	rosterConfig(t)

	out := runCmd(t, providersToggleCmd, "glm")
	assert.Contains(t, out, "glm enabled=false")

	r, err := initRoster(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"openai"}, enabledNames(r))
}

func TestProvidersSwapAndModel(t *testing.T) {
	rosterConfig(t)

	runCmd(t, providersSwapCmd, "glm", "openai")
	runCmd(t, providersModelCmd, "openai", "gpt-4o")

	r, err := initRoster(nil)
	require.NoError(t, err)
	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "openai", snap[0].Name)
	assert.Equal(t, "gpt-4o", snap[0].Model)

	err = providersModelCmd.RunE(providersModelCmd, []string{"openai", "glm-4.5"})
	assert.Error(t, err)
}

func TestProvidersEmergency_AcrossInvocations(t *testing.T) {
	rosterConfig(t)

	runCmd(t, providersEmergencyCmd, "openai")
	r, err := initRoster(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"openai"}, enabledNames(r))

	runCmd(t, providersEmergencyCmd, "off")
	r, err = initRoster(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"glm", "openai"}, enabledNames(r))
	_, on := r.Emergency()
	assert.False(t, on)
}

func TestProvidersExportImport(t *testing.T) {
	path := rosterConfig(t)

	exported := runCmd(t, providersExportCmd)
	assert.Contains(t, exported, "providers:")

	src := filepath.Join(t.TempDir(), "import.yaml")
	require.NoError(t, os.WriteFile(src, []byte(
		"providers:\n  - name: claude\n    kind: anthropic\n    enabled: true\n    priority: 1\n    model: claude-haiku-4-5-20251001\n",
	), 0o644))
	out := runCmd(t, providersImportCmd, src)
	assert.Contains(t, out, "claude")
	assert.FileExists(t, path)

	r, err := initRoster(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"claude"}, enabledNames(r))
}

func TestProvidersUnknown(t *testing.T) {
	rosterConfig(t)
	err := providersToggleCmd.RunE(providersToggleCmd, []string{"nope"})
	assert.ErrorIs(t, err, ai.ErrUnknownProvider)
}

func enabledNames(r *ai.Roster) []string {
	var out []string
	for _, p := range r.Enabled() {
		out = append(out, p.Name)
	}
	return out
}

package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mosaicwatch/internal/config"
)

func TestConfigCmd_Subcommands(t *testing.T) {
	cmd := newConfigCmd()

	names := make([]string, 0)
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}

	assert.ElementsMatch(t, []string{"init", "show", "path"}, names)
}

func TestConfigInit_CreatesUserConfig(t *testing.T) {
	// Given: no user configuration
	home := setupCLIEnv(t)
	expected := filepath.Join(home, "config", "mosaicwatch", "config.yaml")

	// When: running config init
	out, err := runCLI(t, "--no-color", "config", "init")

	// Then: the defaults are written to the XDG location
	require.NoError(t, err)
	assert.Contains(t, out, "Created configuration")
	assert.Contains(t, out, expected)
	data, err := os.ReadFile(expected)
	require.NoError(t, err)
	assert.Contains(t, string(data), "strategy: polling")
}

func TestConfigInit_ExistingRequiresForce(t *testing.T) {
	// Given: an existing, edited user configuration
	home := setupCLIEnv(t)
	path := filepath.Join(home, "config", "mosaicwatch", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("watch:\n  strategy: events\n"), 0o644))

	// When: running init without --force
	out, err := runCLI(t, "--no-color", "config", "init")

	// Then: the file is left alone
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
	data, _ := os.ReadFile(path)
	assert.Equal(t, "watch:\n  strategy: events\n", string(data))

	// When: running init with --force
	_, err = runCLI(t, "--no-color", "config", "init", "--force")

	// Then: the defaults replace it and the old file is kept
	require.NoError(t, err)
	data, _ = os.ReadFile(path)
	assert.Contains(t, string(data), "strategy: polling")
	assert.FileExists(t, path+".bak")
}

func TestConfigInit_Project(t *testing.T) {
	home := setupCLIEnv(t)

	_, err := runCLI(t, "--no-color", "config", "init", "--project")

	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(home, ProjectConfigName))
}

func TestConfigShow_Defaults(t *testing.T) {
	setupCLIEnv(t)

	out, err := runCLI(t, "--no-color", "config", "show", "--source", "defaults")

	require.NoError(t, err)
	assert.Contains(t, out, "Configuration source: defaults")
	assert.Contains(t, out, "strategy: polling")
}

func TestConfigShow_MergedAppliesProjectAndEnv(t *testing.T) {
	// Given: a project file choosing overwrite and an env var choosing events
	home := setupCLIEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, ProjectConfigName),
		[]byte("merge:\n  policy: overwrite\n"), 0o644))
	t.Setenv("MOSAICWATCH_STRATEGY", "events")

	// When: showing the merged configuration as JSON
	out, err := runCLI(t, "config", "show", "--json")

	// Then: both layers are applied
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "overwrite", cfg.Merge.Policy)
	assert.Equal(t, "events", cfg.Watch.Strategy)
}

func TestConfigShow_MissingUserConfig(t *testing.T) {
	setupCLIEnv(t)

	out, err := runCLI(t, "--no-color", "config", "show", "--source", "user")

	require.NoError(t, err)
	assert.Contains(t, out, "No user configuration file found")
}

func TestConfigShow_InvalidSource(t *testing.T) {
	setupCLIEnv(t)

	_, err := runCLI(t, "config", "show", "--source", "remote")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid source")
}

func TestConfigPath(t *testing.T) {
	home := setupCLIEnv(t)

	out, err := runCLI(t, "config", "path")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config", "mosaicwatch", "config.yaml")+"\n", out)
}

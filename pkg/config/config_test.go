package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/cadvc/pkg/resolve"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.Equal(t, "main", cfg.Branches.Default)
	assert.Equal(t, resolve.DefaultRules(), cfg.Merge.TrivialRules)
}

func TestLoadMissingReturnsDefault(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestTOMLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Storage.Backend = BackendSQLite
	cfg.Commit.Workers = 3
	cfg.Branches.Protected = []string{"main", "prod/*"}
	cfg.Merge.TrivialRules = []resolve.Rule{{Name: "notes", Pattern: "*notes*", Enabled: true}}

	require.NoError(t, Save(dir, cfg))
	assert.FileExists(t, filepath.Join(dir, TOMLFile))

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestYAMLPreferredWhenPresent(t *testing.T) {
	dir := t.TempDir()
	yml := []byte("storage:\n  backend: memory\nbranches:\n  protected: [\"stable\"]\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, YAMLFile), yml, 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, []string{"stable"}, cfg.Branches.Protected)
	// Unset sections keep their defaults.
	assert.Equal(t, "info", cfg.Logging.Level)

	cfg.Logging.Level = "debug"
	require.NoError(t, Save(dir, cfg))
	again, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", again.Logging.Level)
	assert.NoFileExists(t, filepath.Join(dir, TOMLFile))
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, TOMLFile), []byte("[storage]\nbackend = \"tape\"\n"), 0o644))
	_, err := Load(dir)
	assert.ErrorContains(t, err, "storage.backend")

	require.NoError(t, os.WriteFile(filepath.Join(dir, TOMLFile), []byte("[merge]\nstrategy = \"coinflip\"\n"), 0o644))
	_, err = Load(dir)
	assert.ErrorContains(t, err, "merge.strategy")
}

func TestIsProtected(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.IsProtected("main"))
	assert.True(t, cfg.IsProtected("release/1.0"))
	assert.False(t, cfg.IsProtected("release/1.0/hotfix"))
	assert.False(t, cfg.IsProtected("feature/x"))
}

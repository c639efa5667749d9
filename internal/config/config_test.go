package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, 32, cfg.Index.BatchSize)
	assert.Equal(t, 8, cfg.Index.Parallelism)
	assert.Equal(t, 50, cfg.Search.MaxResults)
	assert.Equal(t, 200, cfg.Query.RowCap)
	assert.Equal(t, 300, cfg.Watch.DebounceMs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NotEmpty(t, cfg.Storage.DBPath)
}

func TestLoadPartialFileFillsGaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[index]
batch_size = 64

[log]
level = "debug"
`), 0o644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Index.BatchSize)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Everything unset keeps its default.
	assert.Equal(t, 8, cfg.Index.Parallelism)
	assert.Equal(t, 200, cfg.Query.RowCap)
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("not [valid toml"), 0o644))

	_, err := LoadFrom(path)
	assert.Error(t, err)
}

func TestConfigDirEnvOverride(t *testing.T) {
	t.Setenv("SESSION_TRACE_DIR", "/custom/dir")
	assert.Equal(t, "/custom/dir", ConfigDir())
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, home, ExpandTilde("~"))
	assert.Equal(t, filepath.Join(home, "data"), ExpandTilde("~/data"))
	assert.Equal(t, "/abs/path", ExpandTilde("/abs/path"))
	assert.Equal(t, "rel/~path", ExpandTilde("rel/~path"))
}

func TestExpandTildePaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[storage]
base_dir = "~/sessions"
`), 0o644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, "sessions"), cfg.Storage.BaseDir)
}

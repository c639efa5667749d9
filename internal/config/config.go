// Package config loads user configuration for session-trace from a TOML file.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the TOML config file for user preferences.
const FileName = "config.toml"

// Config represents user-facing configuration in TOML format.
type Config struct {
	// Storage defines where session logs live and where the index is kept.
	Storage StorageSettings `toml:"storage"`

	// Index defines reindexing behavior.
	Index IndexSettings `toml:"index"`

	// Search defines full-text search limits.
	Search SearchSettings `toml:"search"`

	// Query defines ad-hoc SQL query limits.
	Query QuerySettings `toml:"query"`

	// Watch defines watch-mode behavior.
	Watch WatchSettings `toml:"watch"`

	// Log defines structured logging settings.
	Log LogSettings `toml:"log"`
}

// StorageSettings defines filesystem locations.
type StorageSettings struct {
	// BaseDir is the directory containing workspaceStorage/,
	// emptyWindowChatSessions/ and transferredChatSessions/.
	BaseDir string `toml:"base_dir"`

	// DBPath is the SQLite index file location.
	// Default: <config dir>/sessions.db
	DBPath string `toml:"db_path"`
}

// IndexSettings defines reindexing behavior.
type IndexSettings struct {
	// BatchSize bounds how many stale files are parsed per batch
	// (limits concurrently open file handles). Default: 32.
	BatchSize int `toml:"batch_size"`

	// Parallelism bounds concurrent file parses. Default: 8.
	Parallelism int `toml:"parallelism"`
}

// SearchSettings defines full-text search limits.
type SearchSettings struct {
	// MaxResults caps search hits returned. Default: 50.
	MaxResults int `toml:"max_results"`
}

// QuerySettings defines ad-hoc SQL query limits.
type QuerySettings struct {
	// RowCap caps rows returned from ad-hoc queries. Default: 200.
	RowCap int `toml:"row_cap"`
}

// WatchSettings defines watch-mode behavior.
type WatchSettings struct {
	// DebounceMs is how long to wait after the last write to a file
	// before reindexing. Default: 300.
	DebounceMs int `toml:"debounce_ms"`

	// ReindexPerMinute rate-limits background reindex passes. Default: 12.
	ReindexPerMinute int `toml:"reindex_per_minute"`
}

// LogSettings defines structured logging settings.
type LogSettings struct {
	// Dir is the log file directory. Empty discards logs.
	Dir string `toml:"dir"`

	// Level is "debug", "info", "warn" or "error". Default: "info".
	Level string `toml:"level"`

	// Format is "json" (default) or "text".
	Format string `toml:"format"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Storage: StorageSettings{
			DBPath:  filepath.Join(ConfigDir(), "sessions.db"),
			BaseDir: filepath.Join(home, ".vscode-session-trace", "storage"),
		},
		Index: IndexSettings{
			BatchSize:   32,
			Parallelism: 8,
		},
		Search: SearchSettings{
			MaxResults: 50,
		},
		Query: QuerySettings{
			RowCap: 200,
		},
		Watch: WatchSettings{
			DebounceMs:       300,
			ReindexPerMinute: 12,
		},
		Log: LogSettings{
			Level:  "info",
			Format: "json",
		},
	}
}

// ConfigDir returns the directory holding config.toml and the index DB.
func ConfigDir() string {
	if dir := os.Getenv("SESSION_TRACE_DIR"); dir != "" {
		return ExpandTilde(dir)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".vscode-session-trace")
}

// Load reads config.toml from the config dir, applying defaults for
// anything unset. A missing file yields defaults, never an error.
func Load() (*Config, error) {
	return LoadFrom(filepath.Join(ConfigDir(), FileName))
}

// LoadFrom reads a specific config file path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.Storage.BaseDir = ExpandTilde(cfg.Storage.BaseDir)
	cfg.Storage.DBPath = ExpandTilde(cfg.Storage.DBPath)
	cfg.Log.Dir = ExpandTilde(cfg.Log.Dir)
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = d.Storage.DBPath
	}
	if c.Storage.BaseDir == "" {
		c.Storage.BaseDir = d.Storage.BaseDir
	}
	if c.Index.BatchSize <= 0 {
		c.Index.BatchSize = d.Index.BatchSize
	}
	if c.Index.Parallelism <= 0 {
		c.Index.Parallelism = d.Index.Parallelism
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = d.Search.MaxResults
	}
	if c.Query.RowCap <= 0 {
		c.Query.RowCap = d.Query.RowCap
	}
	if c.Watch.DebounceMs <= 0 {
		c.Watch.DebounceMs = d.Watch.DebounceMs
	}
	if c.Watch.ReindexPerMinute <= 0 {
		c.Watch.ReindexPerMinute = d.Watch.ReindexPerMinute
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// ExpandTilde expands a leading ~ to the user's home directory.
func ExpandTilde(path string) string {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

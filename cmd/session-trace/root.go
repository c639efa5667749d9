package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/digitarald/vscode-session-trace/internal/config"
	"github.com/digitarald/vscode-session-trace/internal/logging"
	"github.com/digitarald/vscode-session-trace/internal/store"
)

func newRootCmd() *cobra.Command {
	var (
		configPath string
		baseDir    string
		dbPath     string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:           "session-trace",
		Short:         "Replay and index VS Code chat session logs",
		Long:          "session-trace replays chat session operation logs into full session state and maintains a searchable SQLite index over sessions, turns and annotations.",
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if baseDir != "" {
				cfg.Storage.BaseDir = config.ExpandTilde(baseDir)
			}
			if dbPath != "" {
				cfg.Storage.DBPath = config.ExpandTilde(dbPath)
			}

			level := cfg.Log.Level
			if debug {
				level = "debug"
			}
			logging.Init(logging.Config{
				LogDir: cfg.Log.Dir,
				Level:  level,
				Format: cfg.Log.Format,
				Debug:  debug,
			})

			cmd.SetContext(withConfig(cmd.Context(), cfg))
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			logging.Shutdown()
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $SESSION_TRACE_DIR/config.toml)")
	cmd.PersistentFlags().StringVar(&baseDir, "base-dir", "", "Session log base directory (overrides config)")
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "Index database path (overrides config)")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newTurnsCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newDescribeCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(config.ExpandTilde(path))
	}
	return config.Load()
}

// openStore opens the index database, creating the containing directory
// on first use.
func openStore(cfg *config.Config) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	return store.Open(cfg.Storage.DBPath)
}

// stdoutIsTTY decides between human tables and machine JSON.
func stdoutIsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

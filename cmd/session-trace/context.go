package main

import (
	"context"

	"github.com/digitarald/vscode-session-trace/internal/config"
)

type ctxKey int

const configKey ctxKey = iota

func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// configFrom returns the loaded configuration; PersistentPreRunE always
// stores one before a subcommand runs.
func configFrom(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

package config

import (
	"context"
)

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads every config found under the given paths and resolves its
	// build-time variables.
	Load(ctx context.Context, paths ...string) (*Store, error)

	// ResolveRun resolves the run-time section of a previously loaded
	// config, applying run-time variable overrides.
	ResolveRun(ctx context.Context, cfg *Config, overrides map[string]string) (*Run, error)
}

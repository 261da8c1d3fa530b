package main

import (
	"fmt"

	"github.com/taskhopper/hopper/pkg/config"
)

// resolveConfig builds the fully-resolved configuration: documented
// defaults, then HOPPER_-prefixed environment overrides. Command-specific
// flag overrides (run's --dry-run, --disable-blocking, --agent-limit) are
// layered on top by the caller.
func resolveConfig() (config.Config, error) {
	cfg, err := config.LoadFromEnv(config.Default())
	if err != nil {
		return config.Config{}, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

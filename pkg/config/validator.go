package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// defaultRegistrySeed is written when --fix is passed and no registry file
// exists, so a fresh installation has something to reconcile against.
const defaultRegistrySeed = `[
  {"agentName": "vaela", "agentType": "dev"},
  {"agentName": "damien", "agentType": "dev"}
]
`

// Validate runs the pre-flight checks from the config validator component:
// required directories and the external binary exist, at least one agent
// limit is configured, the endpoint URL parses, and the registry file
// exists (seeded with --fix if not). It best-effort creates the
// running/logs/task-cache/lock-parent directories.
func Validate(cfg Config, fix bool) error {
	if cfg.BaseDir == "" {
		return fmt.Errorf("base directory not configured")
	}
	if info, err := os.Stat(cfg.BaseDir); err != nil || !info.IsDir() {
		return fmt.Errorf("base directory %s does not exist or is not a directory", cfg.BaseDir)
	}

	if cfg.RecipesDir == "" {
		return fmt.Errorf("recipes directory not configured")
	}
	if info, err := os.Stat(cfg.RecipesDir); err != nil || !info.IsDir() {
		return fmt.Errorf("recipes directory %s does not exist or is not a directory", cfg.RecipesDir)
	}

	if cfg.ExternalBinary == "" {
		return fmt.Errorf("external binary not configured")
	}
	if err := checkExecutable(cfg.ExternalBinary); err != nil {
		return fmt.Errorf("external binary: %w", err)
	}

	if len(cfg.AgentLimits) == 0 {
		return fmt.Errorf("at least one agent limit must be configured")
	}

	if err := ValidateEndpoint(cfg.Endpoint); err != nil {
		return err
	}

	if _, err := os.Stat(cfg.RegistryPath); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("stat agent registry %s: %w", cfg.RegistryPath, err)
		}
		if !fix {
			return fmt.Errorf("agent registry %s does not exist (use --fix to seed it)", cfg.RegistryPath)
		}
		if err := os.MkdirAll(filepath.Dir(cfg.RegistryPath), 0o755); err != nil {
			return fmt.Errorf("create registry parent directory: %w", err)
		}
		if err := os.WriteFile(cfg.RegistryPath, []byte(defaultRegistrySeed), 0o644); err != nil {
			return fmt.Errorf("seed agent registry: %w", err)
		}
	}

	EnsureDirectories(cfg)
	return nil
}

// EnsureDirectories best-effort creates the running, logs, task-cache, and
// lock-parent directories. Failures here are not fatal: the individual
// component that needs the directory (lease store, logger, lock) will
// surface its own error if creation genuinely failed.
func EnsureDirectories(cfg Config) {
	for _, dir := range []string{cfg.RunningDir, cfg.LogDir, cfg.TaskCacheDir, filepath.Dir(cfg.LockPath)} {
		if dir == "" {
			continue
		}
		_ = os.MkdirAll(dir, 0o755)
	}
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("does not exist: %s", path)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not an executable", path)
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

// Package config loads and validates hopper's runtime configuration from
// environment variables, with CLI flag overrides layered on top.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/taskhopper/hopper/pkg/log"
)

const envPrefix = "HOPPER_"

// Config is the fully-resolved runtime configuration for one hopper
// invocation.
type Config struct {
	BaseDir        string
	RunningDir     string
	LogDir         string
	RecipesDir     string
	TaskCacheDir   string
	ExternalBinary string
	Endpoint       string
	RegistryPath   string
	LockPath       string

	LoopInterval      time.Duration
	HeartbeatInterval time.Duration
	MaxRuntime        time.Duration

	AgentLimits map[string]int

	LogLevel        log.Level
	DryRun          bool
	DisableBlocking bool
	Enabled         bool
}

// Default returns the configuration with every documented default applied,
// before environment or flag overrides.
func Default() Config {
	base := "/var/lib/hopper"
	return Config{
		BaseDir:           base,
		RunningDir:        filepath.Join(base, "running"),
		LogDir:            filepath.Join(base, "logs"),
		RecipesDir:        filepath.Join(base, "recipes"),
		TaskCacheDir:      filepath.Join(base, "task-cache"),
		ExternalBinary:    "",
		Endpoint:          "http://localhost:8080",
		RegistryPath:      filepath.Join(base, "agents.json"),
		LockPath:          filepath.Join(base, "hopper.lock"),
		LoopInterval:      30 * time.Second,
		HeartbeatInterval: 5 * time.Second,
		MaxRuntime:        time.Hour,
		AgentLimits:       map[string]int{},
		LogLevel:          log.InfoLevel,
		DryRun:            false,
		DisableBlocking:   false,
		Enabled:           true,
	}
}

// LoadFromEnv applies HOPPER_-prefixed environment variables over cfg,
// returning the merged result. Unset variables leave the existing value.
func LoadFromEnv(cfg Config) (Config, error) {
	if v, ok := lookup("BASE_DIR"); ok {
		cfg.BaseDir = v
	}
	if v, ok := lookup("RUNNING_DIR"); ok {
		cfg.RunningDir = v
	}
	if v, ok := lookup("LOGS_DIR"); ok {
		cfg.LogDir = v
	}
	if v, ok := lookup("RECIPES_DIR"); ok {
		cfg.RecipesDir = v
	}
	if v, ok := lookup("TASK_CACHE_DIR"); ok {
		cfg.TaskCacheDir = v
	}
	if v, ok := lookup("EXTERNAL_BINARY"); ok {
		cfg.ExternalBinary = v
	}
	if v, ok := lookup("ENDPOINT"); ok {
		cfg.Endpoint = v
	}
	if v, ok := lookup("REGISTRY_PATH"); ok {
		cfg.RegistryPath = v
	}
	if v, ok := lookup("LOCK_PATH"); ok {
		cfg.LockPath = v
	}
	if v, ok := lookup("LOOP_INTERVAL"); ok {
		d, err := parseSecondsOrDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("%sLOOP_INTERVAL: %w", envPrefix, err)
		}
		cfg.LoopInterval = d
	}
	if v, ok := lookup("HEARTBEAT_INTERVAL"); ok {
		d, err := parseSecondsOrDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("%sHEARTBEAT_INTERVAL: %w", envPrefix, err)
		}
		cfg.HeartbeatInterval = d
	}
	if v, ok := lookup("MAX_RUNTIME"); ok {
		d, err := parseSecondsOrDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("%sMAX_RUNTIME: %w", envPrefix, err)
		}
		cfg.MaxRuntime = d
	}
	if v, ok := lookup("AGENT_LIMITS"); ok {
		limits, err := ParseAgentLimits(v)
		if err != nil {
			return cfg, fmt.Errorf("%sAGENT_LIMITS: %w", envPrefix, err)
		}
		cfg.AgentLimits = limits
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.LogLevel = log.Level(v)
	}
	if v, ok := lookup("DRY_RUN"); ok {
		cfg.DryRun = parseBool(v)
	}
	if v, ok := lookup("DISABLE_BLOCKING"); ok {
		cfg.DisableBlocking = parseBool(v)
	}
	if v, ok := lookup("ENABLED"); ok {
		cfg.Enabled = parseBool(v)
	}
	return cfg, nil
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

func parseSecondsOrDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// ParseAgentLimits accepts either a JSON object ({"vaela":2,"damien":1}) or
// the shorthand "name:N,name:N" form.
func ParseAgentLimits(v string) (map[string]int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return map[string]int{}, nil
	}
	if strings.HasPrefix(v, "{") {
		return parseAgentLimitsJSON(v)
	}
	return parseAgentLimitsShorthand(v)
}

func parseAgentLimitsShorthand(v string) (map[string]int, error) {
	out := map[string]int{}
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid agent limit entry %q: expected name:N", pair)
		}
		name := strings.TrimSpace(parts[0])
		n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid agent limit for %q: %q", name, parts[1])
		}
		out[name] = n
	}
	return out, nil
}

// ValidateEndpoint validates the configured endpoint is parseable with an
// http/https scheme.
func ValidateEndpoint(endpoint string) error {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("endpoint scheme must be http or https, got %q", parsed.Scheme)
	}
	return nil
}

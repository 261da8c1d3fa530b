package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/taskhopper/hopper/pkg/config"
	"github.com/taskhopper/hopper/pkg/daemon"
	"github.com/taskhopper/hopper/pkg/lease"
	"github.com/taskhopper/hopper/pkg/lockfile"
	"github.com/taskhopper/hopper/pkg/log"
	"github.com/taskhopper/hopper/pkg/metrics"
	"github.com/taskhopper/hopper/pkg/reconciler"
	"github.com/taskhopper/hopper/pkg/registry"
	"github.com/taskhopper/hopper/pkg/taskclient"
)

// errAnotherInstance is returned when the exclusion lock is already held by
// another reconciler on this host; it maps to the distinguishable exit
// code spec.md §4.5 requires.
var errAnotherInstance = errors.New("another instance is already running")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reconciliation pass, or a daemon loop of passes",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().Bool("once", false, "Run a single reconciliation pass and exit (default)")
	runCmd.Flags().Bool("daemon", false, "Run continuously on the configured loop interval")
	runCmd.Flags().Bool("dry-run", false, "Log reclaim/match decisions without mutating task or lease state")
	runCmd.Flags().Bool("disable-blocking", false, "Ignore is_currently_blocked when ordering candidate tasks")
	runCmd.Flags().StringArray("agent-limit", nil, "Override an agent's capacity, repeatable: --agent-limit NAME=N")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address to serve /metrics, /health, /ready, /live on in --daemon mode")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	if v, _ := cmd.Flags().GetBool("dry-run"); v {
		cfg.DryRun = true
	}
	if v, _ := cmd.Flags().GetBool("disable-blocking"); v {
		cfg.DisableBlocking = true
	}
	overrides, _ := cmd.Flags().GetStringArray("agent-limit")
	if err := applyAgentLimitOverrides(&cfg, overrides); err != nil {
		return err
	}

	daemonMode, _ := cmd.Flags().GetBool("daemon")

	config.EnsureDirectories(cfg)

	logger := log.WithComponent("cli")

	lock, err := lockfile.New(cfg.LockPath)
	if err != nil {
		return fmt.Errorf("initialize exclusion lock: %w", err)
	}
	if err := lock.Acquire(); err != nil {
		if errors.Is(err, lockfile.ErrHeld) {
			metrics.LockAcquisitionFailuresTotal.Inc()
			logger.Error().Str("lock_path", cfg.LockPath).Msg("another instance is already running")
			return errAnotherInstance
		}
		return fmt.Errorf("acquire exclusion lock: %w", err)
	}
	defer lock.Release()

	leases, err := lease.New(cfg.RunningDir)
	if err != nil {
		return fmt.Errorf("open lease store: %w", err)
	}

	ctx := context.Background()
	tasks, err := taskclient.NewMCPClient(ctx, cfg.Endpoint, 10*time.Second, 3)
	if err != nil {
		return fmt.Errorf("connect to task service: %w", err)
	}
	defer tasks.Close()

	metrics.RegisterComponent("lease_store", true, "ready")
	metrics.RegisterComponent("task_service", true, "connected")

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		logger.Warn().Err(err).Msg("agent registry failed to load, falling back to the legacy flat-limits path")
		metrics.RegisterComponent("agent_registry", false, err.Error())
		reg = nil
	} else {
		metrics.RegisterComponent("agent_registry", true, "ready")
	}

	recon := reconciler.New(reconcilerConfig(cfg), leases, tasks, reg)

	if !daemonMode {
		stats := recon.Pass(ctx)
		logPassStats(logger, stats)
		if stats.Errors > 0 {
			return fmt.Errorf("reconciliation pass completed with %d error(s)", stats.Errors)
		}
		return nil
	}

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	serveMetrics(logger, metricsAddr)

	loop := daemon.NewLoop(cfg.LoopInterval, recon.Pass)
	loop.Run(ctx)
	return nil
}

// serveMetrics starts the Prometheus/health HTTP endpoints in the
// background for the lifetime of the daemon. A bind failure is logged, not
// fatal: the reconciler must keep running without operator visibility
// rather than refuse to start.
func serveMetrics(logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
}

func reconcilerConfig(cfg config.Config) reconciler.Config {
	return reconciler.Config{
		AgentLimits:     cfg.AgentLimits,
		MaxRuntime:      cfg.MaxRuntime,
		DryRun:          cfg.DryRun,
		DisableBlocking: cfg.DisableBlocking,
		RecipesDir:      cfg.RecipesDir,
		RunningDir:      cfg.RunningDir,
		WorkDir:         cfg.BaseDir,
		ExternalBinary:  cfg.ExternalBinary,
		Endpoint:        cfg.Endpoint,
		HeartbeatPeriod: cfg.HeartbeatInterval,
		Hostname:        reconciler.Hostname(),
	}
}

func logPassStats(logger zerolog.Logger, stats reconciler.Stats) {
	logger.Info().
		Int("leases_scanned", stats.LeasesScanned).
		Int("leases_reclaimed", stats.LeasesReclaimed).
		Int("unassigned_matched", stats.UnassignedMatched).
		Int("assigned_spawned", stats.AssignedSpawned).
		Int("tasks_spawned", stats.TasksSpawned).
		Int("errors", stats.Errors).
		Msg("reconciliation pass complete")
}

// applyAgentLimitOverrides parses repeatable --agent-limit NAME=N flags and
// merges them into cfg.AgentLimits, overriding any value loaded from the
// environment.
func applyAgentLimitOverrides(cfg *config.Config, overrides []string) error {
	if len(overrides) == 0 {
		return nil
	}
	if cfg.AgentLimits == nil {
		cfg.AgentLimits = map[string]int{}
	}
	for _, o := range overrides {
		parts := strings.SplitN(o, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid --agent-limit %q: expected NAME=N", o)
		}
		name := strings.TrimSpace(parts[0])
		n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || n < 0 {
			return fmt.Errorf("invalid --agent-limit %q: limit must be a non-negative integer", o)
		}
		cfg.AgentLimits[name] = n
	}
	return nil
}

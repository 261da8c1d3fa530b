// Package reconciler orchestrates a single reconciliation pass: reclaim
// stale leases, match unassigned work to agents with spare capacity, sweep
// already-assigned idle work, and spawn wrapper subprocesses for both.
package reconciler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/taskhopper/hopper/pkg/lease"
	"github.com/taskhopper/hopper/pkg/log"
	"github.com/taskhopper/hopper/pkg/metrics"
	"github.com/taskhopper/hopper/pkg/recipe"
	"github.com/taskhopper/hopper/pkg/registry"
	"github.com/taskhopper/hopper/pkg/scheduler"
	"github.com/taskhopper/hopper/pkg/taskclient"
	"github.com/taskhopper/hopper/pkg/wrapper"
)

// Stats is the per-pass result record. A pass succeeds iff Errors == 0.
type Stats struct {
	LeasesScanned     int
	LeasesReclaimed   int
	UnassignedMatched int
	AssignedSpawned   int
	TasksSpawned      int
	Errors            int
}

// Config holds everything a pass needs that doesn't change within a run.
type Config struct {
	AgentLimits     map[string]int
	MaxRuntime      time.Duration
	DryRun          bool
	DisableBlocking bool
	RecipesDir      string
	RunningDir      string
	WorkDir         string
	ExternalBinary  string
	Endpoint        string
	HeartbeatPeriod time.Duration
	Hostname        string
}

// Reconciler ties the lease store, task-service client, agent registry, and
// wrapper spawner together to run passes.
type Reconciler struct {
	cfg      Config
	leases   *lease.Store
	tasks    taskclient.Service
	reg      *registry.Registry // nil triggers the legacy path
	spawner  *wrapper.Spawner
	checkPID bool
}

// New constructs a Reconciler. reg may be nil: callers that failed to load
// the agent registry still get a functioning reconciler restricted to the
// legacy flat-limits path (see Pass).
func New(cfg Config, leases *lease.Store, tasks taskclient.Service, reg *registry.Registry) *Reconciler {
	return &Reconciler{
		cfg:      cfg,
		leases:   leases,
		tasks:    tasks,
		reg:      reg,
		spawner:  wrapper.NewSpawner(cfg.ExternalBinary, cfg.WorkDir),
		checkPID: true,
	}
}

// Pass runs one reconciliation pass: scan, reclaim stale, queue sweep,
// direct sweep (or the legacy flat-limits sweep if the registry is absent).
func (r *Reconciler) Pass(ctx context.Context) Stats {
	logger := log.WithComponent("reconciler")
	timer := metrics.NewTimer()
	var stats Stats
	defer func() {
		timer.ObserveDuration(metrics.PassDuration)
		outcome := "success"
		if stats.Errors > 0 {
			outcome = "error"
		}
		metrics.PassesTotal.WithLabelValues(outcome).Inc()
		metrics.RecordPassResult(stats.LeasesScanned, stats.LeasesReclaimed, stats.TasksSpawned, stats.Errors)
	}()

	// Step 1 — scan.
	all, err := r.leases.List()
	if err != nil {
		logger.Error().Err(err).Msg("failed to list leases")
		stats.Errors++
	}
	stats.LeasesScanned = len(all)

	// Step 2 — reclaim stale.
	stale, err := r.leases.FindStaleLeases(r.cfg.MaxRuntime, r.checkPID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to scan for stale leases")
		stats.Errors++
	}
	for _, s := range stale {
		if r.cfg.DryRun {
			logger.Info().Str("task_id", s.Lease.TaskID).Str("reason", s.Reason).Msg("dry-run: would reclaim stale lease")
			continue
		}
		if err := r.tasks.Requeue(ctx, s.Lease.TaskID, s.Reason); err != nil {
			logger.Warn().Str("task_id", s.Lease.TaskID).Err(err).Msg("requeue on reclaim failed, deleting lease anyway")
			stats.Errors++
		}
		if err := r.leases.Reclaim(s.Lease, s.Reason); err != nil {
			logger.Error().Str("task_id", s.Lease.TaskID).Err(err).Msg("failed to delete reclaimed lease")
			stats.Errors++
			continue
		}
		stats.LeasesReclaimed++
		metrics.LeasesReclaimedTotal.Inc()
	}

	active, err := r.leases.CountActiveByAgent()
	if err != nil {
		logger.Error().Err(err).Msg("failed to count active leases by agent")
		stats.Errors++
		active = map[string]int{}
	}
	for agent, count := range active {
		metrics.LeasesActive.WithLabelValues(agent).Set(float64(count))
	}

	if r.reg == nil {
		r.legacySweep(ctx, active, &stats)
		return stats
	}

	// Step 3 — queue sweep.
	for _, queue := range r.reg.AllTypes() {
		r.sweepQueue(ctx, queue, active, &stats)
	}

	// Step 4 — direct sweep.
	for _, agent := range r.reg.AllNames() {
		r.sweepAgent(ctx, agent, active, &stats)
	}

	return stats
}

func (r *Reconciler) sweepQueue(ctx context.Context, queue string, active map[string]int, stats *Stats) {
	logger := log.WithComponent("reconciler")
	names := r.reg.AgentsByType(queue)
	slots := scheduler.BuildAgentSlots(names, r.cfg.AgentLimits, active)
	total := scheduler.TotalSlots(slots)
	if total == 0 {
		return
	}

	tasks, err := r.tasks.GetUnassignedInQueue(ctx, queue, total)
	if err != nil {
		logger.Warn().Str("queue", queue).Err(err).Msg("failed to fetch unassigned tasks")
		stats.Errors++
		return
	}

	ordered := scheduler.OrderTasks(tasks, r.cfg.DisableBlocking)
	for _, t := range ordered {
		agent, ok := scheduler.SelectAgent(slots)
		if !ok {
			break
		}

		assigned, err := r.tasks.Assign(ctx, t.TaskID, agent.Name)
		if err != nil || !assigned {
			if err != nil {
				logger.Warn().Str("task_id", t.TaskID).Str("agent", agent.Name).Err(err).Msg("assign failed")
			}
			stats.Errors++
			continue
		}

		if err := r.spawn(ctx, t, agent.Name); err != nil {
			logger.Error().Str("task_id", t.TaskID).Str("agent", agent.Name).Err(err).Msg("spawn failed after assign")
			stats.Errors++
			continue
		}

		agent.Remaining--
		active[agent.Name]++
		stats.UnassignedMatched++
		stats.TasksSpawned++
		metrics.TasksAssignedTotal.Inc()
	}
}

func (r *Reconciler) sweepAgent(ctx context.Context, agent string, active map[string]int, stats *Stats) {
	logger := log.WithComponent("reconciler")
	avail := r.cfg.AgentLimits[agent] - active[agent]
	if avail <= 0 {
		return
	}

	idle, err := r.tasks.ListIdle(ctx, agent, avail)
	if err != nil {
		logger.Warn().Str("agent", agent).Err(err).Msg("failed to fetch idle tasks")
		stats.Errors++
		return
	}

	for i, t := range idle {
		if i >= avail {
			break
		}
		if err := r.spawn(ctx, t, agent); err != nil {
			logger.Error().Str("task_id", t.TaskID).Str("agent", agent).Err(err).Msg("spawn failed for already-assigned task")
			stats.Errors++
			continue
		}
		active[agent]++
		stats.AssignedSpawned++
		stats.TasksSpawned++
	}
}

// legacySweep replaces steps 3-4 with a flat loop over the configured
// agent-limits map when the agent registry failed to load, so the
// reconciler keeps operating without a registry.
func (r *Reconciler) legacySweep(ctx context.Context, active map[string]int, stats *Stats) {
	logger := log.WithComponent("reconciler")
	for agent, limit := range r.cfg.AgentLimits {
		avail := limit - active[agent]
		if avail <= 0 {
			continue
		}
		idle, err := r.tasks.ListIdle(ctx, agent, avail)
		if err != nil {
			logger.Warn().Str("agent", agent).Err(err).Msg("failed to fetch idle tasks (legacy path)")
			stats.Errors++
			continue
		}
		for i, t := range idle {
			if i >= avail {
				break
			}
			if err := r.spawn(ctx, t, agent); err != nil {
				stats.Errors++
				continue
			}
			active[agent]++
			stats.AssignedSpawned++
			stats.TasksSpawned++
		}
	}
}

// spawn implements spawnWrapper (§4.6.2): launch detached, create the
// lease immediately, then claim on the task service.
func (r *Reconciler) spawn(ctx context.Context, t taskclient.Task, agent string) error {
	logger := log.WithComponent("reconciler")

	if _, err := recipe.Load(t.Recipe, r.cfg.RecipesDir); err != nil {
		logger.Warn().Str("task_id", t.TaskID).Str("recipe", t.Recipe).Err(err).Msg("recipe missing or malformed in recipes directory, skipping")
		return fmt.Errorf("recipe %s for task %s: %w", t.Recipe, t.TaskID, err)
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.WrapperSpawnDuration)

	pid, err := wrapper.Spawn(ctx, r.spawner, wrapper.Args{
		TaskID:           t.TaskID,
		Agent:            agent,
		Recipe:           t.Recipe,
		RunningDir:       r.cfg.RunningDir,
		ExternalBinary:   r.cfg.ExternalBinary,
		Endpoint:         r.cfg.Endpoint,
		HeartbeatSeconds: wrapper.HeartbeatInterval(r.cfg.HeartbeatPeriod),
		Hostname:         r.cfg.Hostname,
	}, r.cfg.RecipesDir)
	if err != nil {
		metrics.SpawnFailuresTotal.Inc()
		return err
	}

	now := time.Now().UTC()
	l := lease.Lease{
		TaskID:    t.TaskID,
		Agent:     agent,
		PID:       pid,
		Recipe:    t.Recipe,
		StartedAt: now,
		Heartbeat: now,
		Host:      r.cfg.Hostname,
		State:     "running",
		Metadata:  map[string]any{},
	}
	if err := r.leases.Create(l); err != nil {
		logger.Error().Str("task_id", t.TaskID).Err(err).Msg("lease creation failed, killing orphaned wrapper")
		if killErr := wrapper.Kill(pid); killErr != nil {
			logger.Warn().Int("pid", pid).Err(killErr).Msg("failed to kill orphaned wrapper")
		}
		metrics.SpawnFailuresTotal.Inc()
		return err
	}

	metrics.WrappersSpawned.Inc()

	if err := r.tasks.Claim(ctx, t.TaskID, agent); err != nil {
		// The wrapper is already running and the lease already exists;
		// per §4.6.2 this is a logged warning, not a teardown.
		logger.Warn().Str("task_id", t.TaskID).Err(err).Msg("claim failed after spawn, lease stands")
	}
	return nil
}

// NewRunID returns a process-unique identifier for log correlation across a
// single pass. Not persisted anywhere.
func NewRunID() string {
	return uuid.NewString()
}

// Hostname resolves the local hostname, falling back to "unknown" so a
// resolver failure never blocks a pass.
func Hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}

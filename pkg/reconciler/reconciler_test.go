package reconciler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhopper/hopper/pkg/lease"
	"github.com/taskhopper/hopper/pkg/registry"
	"github.com/taskhopper/hopper/pkg/taskclient"
)

func writeRegistry(t *testing.T, entries string) *registry.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agents.json")
	require.NoError(t, os.WriteFile(path, []byte(entries), 0o644))
	reg, err := registry.Load(path)
	require.NoError(t, err)
	return reg
}

func baseConfig(t *testing.T) Config {
	recipesDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(recipesDir, "dev.yaml"), []byte("steps: []"), 0o644))
	return Config{
		AgentLimits:     map[string]int{},
		MaxRuntime:      time.Hour,
		RecipesDir:      recipesDir,
		RunningDir:      t.TempDir(),
		WorkDir:         t.TempDir(),
		ExternalBinary:  "/bin/true",
		Endpoint:        "http://localhost:8080",
		HeartbeatPeriod: 5 * time.Second,
		Hostname:        "host-1",
	}
}

func newTestReconciler(t *testing.T, cfg Config, reg *registry.Registry, svc taskclient.Service) (*Reconciler, *lease.Store) {
	store, err := lease.New(cfg.RunningDir)
	require.NoError(t, err)
	r := New(cfg, store, svc, reg)
	return r, store
}

func TestPassHappyPathUnassigned(t *testing.T) {
	reg := writeRegistry(t, `[{"agentName":"vaela","agentType":"dev"},{"agentName":"damien","agentType":"dev"}]`)
	cfg := baseConfig(t)
	cfg.AgentLimits = map[string]int{"vaela": 2, "damien": 2}

	svc := taskclient.NewFakeService()
	svc.Unassigned["dev"] = []taskclient.Task{
		{TaskID: "1", Recipe: "dev.yaml"},
		{TaskID: "2", Recipe: "dev.yaml"},
		{TaskID: "3", Recipe: "dev.yaml"},
	}

	r, store := newTestReconciler(t, cfg, reg, svc)
	stats := r.Pass(context.Background())

	assert.Equal(t, 3, stats.UnassignedMatched)
	assert.Equal(t, 3, stats.TasksSpawned)
	assert.Equal(t, 0, stats.Errors)
	assert.Len(t, svc.Assigned, 3)

	leases, err := store.List()
	require.NoError(t, err)
	assert.Len(t, leases, 3)

	targetsVaela, targetsDamien := false, false
	for _, a := range svc.Assigned {
		if a == "1:vaela" || a == "2:vaela" || a == "3:vaela" {
			targetsVaela = true
		}
		if a == "1:damien" || a == "2:damien" || a == "3:damien" {
			targetsDamien = true
		}
	}
	assert.True(t, targetsVaela)
	assert.True(t, targetsDamien)
}

func TestPassCapacityCap(t *testing.T) {
	reg := writeRegistry(t, `[{"agentName":"vaela","agentType":"dev"},{"agentName":"damien","agentType":"dev"}]`)
	cfg := baseConfig(t)
	cfg.AgentLimits = map[string]int{"vaela": 2, "damien": 2}

	svc := taskclient.NewFakeService()
	svc.Unassigned["dev"] = []taskclient.Task{
		{TaskID: "1", Recipe: "dev.yaml"},
		{TaskID: "2", Recipe: "dev.yaml"},
		{TaskID: "3", Recipe: "dev.yaml"},
		{TaskID: "4", Recipe: "dev.yaml"},
	}

	r, store := newTestReconciler(t, cfg, reg, svc)
	// Pre-seed one active lease for vaela so only 3 slots remain (1 vaela + 2 damien).
	require.NoError(t, store.Create(lease.Lease{
		TaskID: "existing", Agent: "vaela", PID: os.Getpid(), Recipe: "dev.yaml",
		StartedAt: time.Now().UTC(), Heartbeat: time.Now().UTC(), Host: "host-1", State: "running",
		Metadata: map[string]any{},
	}))

	stats := r.Pass(context.Background())
	assert.Equal(t, 3, stats.UnassignedMatched)
}

func TestPassStaleReclaim(t *testing.T) {
	cfg := baseConfig(t)
	cfg.MaxRuntime = time.Hour

	svc := taskclient.NewFakeService()
	r, store := newTestReconciler(t, cfg, nil, svc)

	require.NoError(t, store.Create(lease.Lease{
		TaskID: "1", Agent: "vaela", PID: os.Getpid(), Recipe: "dev.yaml",
		StartedAt: time.Now().Add(-2 * time.Hour).UTC(),
		Heartbeat: time.Now().Add(-2 * time.Hour).UTC(),
		Host:      "host-1", State: "running", Metadata: map[string]any{},
	}))

	stats := r.Pass(context.Background())
	assert.Equal(t, 1, stats.LeasesReclaimed)
	assert.Len(t, svc.Requeued, 1)

	_, ok := store.Read("1")
	assert.False(t, ok)
}

func TestPassSpawnFailureMidBatch(t *testing.T) {
	reg := writeRegistry(t, `[{"agentName":"vaela","agentType":"dev"}]`)
	cfg := baseConfig(t)
	cfg.AgentLimits = map[string]int{"vaela": 4}

	svc := taskclient.NewFakeService()
	svc.Unassigned["dev"] = []taskclient.Task{
		// Highest priority sorts first, so this is the "first" spawn
		// attempt in the batch; its recipe fails validation inside
		// spawnWrapper (wrong extension), simulating a spawn failure.
		{TaskID: "1", Recipe: "bad.txt", Priority: 10},
		{TaskID: "2", Recipe: "dev.yaml"},
		{TaskID: "3", Recipe: "dev.yaml"},
		{TaskID: "4", Recipe: "dev.yaml"},
	}

	r, _ := newTestReconciler(t, cfg, reg, svc)
	stats := r.Pass(context.Background())

	assert.GreaterOrEqual(t, stats.Errors, 1)
	assert.Equal(t, 3, stats.TasksSpawned)
}

func TestPassBlockedTaskFiltered(t *testing.T) {
	reg := writeRegistry(t, `[{"agentName":"vaela","agentType":"dev"}]`)
	cfg := baseConfig(t)
	cfg.AgentLimits = map[string]int{"vaela": 3}

	svc := taskclient.NewFakeService()
	svc.Unassigned["dev"] = []taskclient.Task{
		{TaskID: "t1", Priority: 1, Recipe: "dev.yaml"},
		{TaskID: "t2", Priority: 10, IsCurrentlyBlocked: true, Recipe: "dev.yaml"},
		{TaskID: "t3", Priority: 5, Recipe: "dev.yaml"},
	}

	r, _ := newTestReconciler(t, cfg, reg, svc)
	stats := r.Pass(context.Background())

	assert.Equal(t, 2, stats.UnassignedMatched)
	assigned := map[string]bool{}
	for _, a := range svc.Assigned {
		assigned[a] = true
	}
	assert.False(t, assigned["t2:vaela"])
}

func TestPassLegacyPathWithoutRegistry(t *testing.T) {
	cfg := baseConfig(t)
	cfg.AgentLimits = map[string]int{"vaela": 2}

	svc := taskclient.NewFakeService()
	svc.Idle["vaela"] = []taskclient.Task{
		{TaskID: "1", Recipe: "dev.yaml"},
	}

	r, _ := newTestReconciler(t, cfg, nil, svc)
	stats := r.Pass(context.Background())

	assert.Equal(t, 1, stats.AssignedSpawned)
	assert.Equal(t, 1, stats.TasksSpawned)
}

func TestPassZeroSlotsSkipsQueueRPC(t *testing.T) {
	reg := writeRegistry(t, `[{"agentName":"vaela","agentType":"dev"}]`)
	cfg := baseConfig(t)
	cfg.AgentLimits = map[string]int{"vaela": 0}

	svc := taskclient.NewFakeService()
	svc.Unassigned["dev"] = []taskclient.Task{{TaskID: "1", Recipe: "dev.yaml"}}

	r, _ := newTestReconciler(t, cfg, reg, svc)
	stats := r.Pass(context.Background())

	assert.Equal(t, 0, stats.UnassignedMatched)
	assert.Empty(t, svc.Assigned)
}

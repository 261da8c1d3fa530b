package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskhopper/hopper/pkg/lease"
	"github.com/taskhopper/hopper/pkg/registry"
	"github.com/taskhopper/hopper/pkg/taskclient"
	"github.com/taskhopper/hopper/pkg/workload"
)

var workloadCmd = &cobra.Command{
	Use:   "workload",
	Short: "Print a read-only snapshot of backlog and agent capacity",
	Long: `workload computes, without mutating any lease or task-service
state, a per-agent slot-usage summary and a per-queue unassigned-task
backlog with a priority histogram. The reconciler does not depend on this
command; it exists purely for operator visibility.`,
	RunE: runWorkload,
}

func init() {
	workloadCmd.Flags().Bool("json", false, "Print the snapshot as JSON")
}

func runWorkload(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	leases, err := lease.New(cfg.RunningDir)
	if err != nil {
		return fmt.Errorf("open lease store: %w", err)
	}
	active, err := leases.CountActiveByAgent()
	if err != nil {
		return fmt.Errorf("count active leases: %w", err)
	}

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		return fmt.Errorf("load agent registry: %w", err)
	}

	ctx := context.Background()
	tasks, err := taskclient.NewMCPClient(ctx, cfg.Endpoint, 10*time.Second, 3)
	if err != nil {
		return fmt.Errorf("connect to task service: %w", err)
	}
	defer tasks.Close()

	queueTasks := map[string][]taskclient.Task{}
	for _, queue := range reg.AllTypes() {
		names := reg.AgentsByType(queue)
		total := 0
		for _, name := range names {
			if avail := cfg.AgentLimits[name] - active[name]; avail > 0 {
				total += avail
			}
		}
		if total == 0 {
			continue
		}
		unassigned, err := tasks.GetUnassignedInQueue(ctx, queue, total)
		if err != nil {
			return fmt.Errorf("fetch unassigned tasks for queue %s: %w", queue, err)
		}
		queueTasks[queue] = unassigned
	}

	report := workload.Snapshot(reg.AllNames(), cfg.AgentLimits, active, reg.TypeOf, queueTasks, time.Now().UTC())

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		return workload.WriteJSON(cmd.OutOrStdout(), report)
	}
	workload.WriteText(cmd.OutOrStdout(), report)
	return nil
}

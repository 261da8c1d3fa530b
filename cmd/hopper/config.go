package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskhopper/hopper/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	RunE:  runConfig,
}

func init() {
	configCmd.Flags().Bool("show", false, "Print the resolved configuration as a human-readable table (default)")
	configCmd.Flags().Bool("json", false, "Print the resolved configuration as JSON")
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}
	printConfigTable(cmd, cfg)
	return nil
}

func printConfigTable(cmd *cobra.Command, cfg config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "base_dir            %s\n", cfg.BaseDir)
	fmt.Fprintf(out, "running_dir         %s\n", cfg.RunningDir)
	fmt.Fprintf(out, "log_dir             %s\n", cfg.LogDir)
	fmt.Fprintf(out, "recipes_dir         %s\n", cfg.RecipesDir)
	fmt.Fprintf(out, "task_cache_dir      %s\n", cfg.TaskCacheDir)
	fmt.Fprintf(out, "external_binary     %s\n", cfg.ExternalBinary)
	fmt.Fprintf(out, "endpoint            %s\n", cfg.Endpoint)
	fmt.Fprintf(out, "registry_path       %s\n", cfg.RegistryPath)
	fmt.Fprintf(out, "lock_path           %s\n", cfg.LockPath)
	fmt.Fprintf(out, "loop_interval       %s\n", cfg.LoopInterval)
	fmt.Fprintf(out, "heartbeat_interval  %s\n", cfg.HeartbeatInterval)
	fmt.Fprintf(out, "max_runtime         %s\n", cfg.MaxRuntime)
	fmt.Fprintf(out, "agent_limits        %v\n", cfg.AgentLimits)
	fmt.Fprintf(out, "log_level           %s\n", cfg.LogLevel)
	fmt.Fprintf(out, "dry_run             %v\n", cfg.DryRun)
	fmt.Fprintf(out, "disable_blocking    %v\n", cfg.DisableBlocking)
	fmt.Fprintf(out, "enabled             %v\n", cfg.Enabled)
}

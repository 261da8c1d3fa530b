// Command hopper is the file-backed task scheduler's control plane: it
// reconciles an external task queue against a pool of long-running worker
// agents, either once under cron or as a daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskhopper/hopper/pkg/log"
)

var (
	// Version information (set via ldflags during build).
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:     "hopper",
	Short:   "hopper reconciles a remote task queue against a pool of worker agents",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("hopper version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(validateConfigCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(workloadCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

// exitCodeFor maps an error returned from Execute to the documented exit
// codes in spec.md §6.5: 0 success, 1 configuration/runtime error, and 2
// when another instance already holds the exclusion lock. Exit
// 130 (interrupted by signal) is not produced here: in --once mode hopper
// installs no signal handler, so a SIGINT terminates the process with the
// shell's usual 128+signum code before Execute ever returns; in --daemon
// mode the loop (pkg/daemon) catches the signal and exits cleanly (0)
// after the in-flight pass finishes, per spec.md §4.7.
func exitCodeFor(err error) int {
	if err == errAnotherInstance {
		return 2
	}
	return 1
}

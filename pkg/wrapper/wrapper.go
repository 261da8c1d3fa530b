// Package wrapper launches the wrapper subprocess that executes an agent's
// recipe and maintains the lease heartbeat until it exits.
package wrapper

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/taskhopper/hopper/pkg/log"
	"github.com/taskhopper/hopper/pkg/validate"
)

// Args is everything the wrapper binary needs on its argv to run one task.
type Args struct {
	TaskID           string
	Agent            string
	Recipe           string
	RunningDir       string
	ExternalBinary   string
	Endpoint         string
	HeartbeatSeconds int
	Hostname         string
}

// Spawner starts the wrapper binary as a detached child process.
type Spawner struct {
	BinaryPath string
	WorkDir    string
}

// NewSpawner returns a Spawner invoking binaryPath with cwd workDir.
func NewSpawner(binaryPath, workDir string) *Spawner {
	return &Spawner{BinaryPath: binaryPath, WorkDir: workDir}
}

func buildArgv(binaryPath string, a Args) []string {
	return []string{
		binaryPath,
		"--task-id", a.TaskID,
		"--agent", a.Agent,
		"--recipe", a.Recipe,
		"--running-dir", a.RunningDir,
		"--external-binary", a.ExternalBinary,
		"--endpoint", a.Endpoint,
		"--heartbeat-interval", fmt.Sprintf("%d", a.HeartbeatSeconds),
		"--hostname", a.Hostname,
	}
}

// Spawn validates a's identifiers and recipe, then launches the wrapper
// binary detached from this process: its own session, stdio redirected to
// /dev/null, and the parent does not wait on it. The returned pid is the
// child's, for immediate lease creation by the caller.
//
// Deliberately uses exec.Command rather than exec.CommandContext: the
// wrapper must outlive this pass (and this process, across a daemon
// shutdown), so its lifetime must never be tied to the caller's context.
func Spawn(ctx context.Context, s *Spawner, a Args, recipesDir string) (pid int, err error) {
	_ = ctx // accepted for call-site symmetry with other Service calls; not used to bound the child's lifetime
	if _, err := validate.TaskID(a.TaskID); err != nil {
		return 0, fmt.Errorf("spawn wrapper: %w", err)
	}
	if _, err := validate.AgentName(a.Agent); err != nil {
		return 0, fmt.Errorf("spawn wrapper: %w", err)
	}
	resolvedRecipe, err := validate.RecipePath(a.Recipe, recipesDir)
	if err != nil {
		return 0, fmt.Errorf("spawn wrapper: %w", err)
	}
	a.Recipe = resolvedRecipe

	argv := buildArgv(s.BinaryPath, a)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = s.WorkDir
	cmd.Stdin = nil
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("open devnull: %w", err)
	}
	defer devnull.Close()
	cmd.Stdout = devnull
	cmd.Stderr = devnull
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start wrapper for task %s: %w", a.TaskID, err)
	}

	childPID := cmd.Process.Pid
	// The reconciler must not wait on the wrapper; release it so it can
	// outlive this process's Wait() bookkeeping without becoming a zombie
	// under our control.
	if err := cmd.Process.Release(); err != nil {
		log.WithComponent("wrapper").Warn().Err(err).Int("pid", childPID).Msg("failed to release wrapper process handle")
	}

	return childPID, nil
}

// Kill best-effort terminates a wrapper that was spawned but whose lease
// could not be created, so it doesn't run orphaned and unaccounted for.
func Kill(pid int) error {
	if pid <= 0 {
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}

// HeartbeatInterval returns d as whole seconds, with a floor of one second.
func HeartbeatInterval(d time.Duration) int {
	secs := int(d / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

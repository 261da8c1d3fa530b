// Package lease implements the durable on-disk record of every wrapper
// spawned by the reconciler: one JSON file per task, written atomically via
// tmp-file + fsync + rename so readers never observe partial content.
package lease

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/taskhopper/hopper/pkg/log"
)

// ErrAlreadyExists is returned by Create when a lease for the task already
// exists on this host.
var ErrAlreadyExists = errors.New("lease already exists")

// ErrNotFound is returned by Update when the lease does not already exist.
var ErrNotFound = errors.New("lease does not exist")

// Lease is the durable local record of a spawned wrapper.
type Lease struct {
	TaskID    string         `json:"task_id"`
	Agent     string         `json:"agent"`
	PID       int            `json:"pid"`
	Recipe    string         `json:"recipe"`
	StartedAt time.Time      `json:"started_at"`
	Heartbeat time.Time      `json:"heartbeat"`
	Host      string         `json:"host"`
	State     string         `json:"state"`
	Metadata  map[string]any `json:"metadata"`
}

// Stale describes why a lease was found eligible for reclamation.
type Stale struct {
	Lease  Lease
	Reason string
}

// Store manages lease files within a single directory.
type Store struct {
	dir string
}

// New opens (creating if necessary) the lease directory.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lease directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(taskID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("task_%s.json", taskID))
}

// Create writes a new lease file using tmp-file + fsync + atomic rename. It
// fails with ErrAlreadyExists if a lease for the task is already present.
func (s *Store) Create(l Lease) error {
	path := s.path(l.TaskID)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: task %s", ErrAlreadyExists, l.TaskID)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat lease for task %s: %w", l.TaskID, err)
	}
	return s.writeAtomic(l)
}

// Update overwrites an existing lease file atomically. It fails with
// ErrNotFound if the lease does not already exist.
func (s *Store) Update(l Lease) error {
	path := s.path(l.TaskID)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: task %s", ErrNotFound, l.TaskID)
		}
		return fmt.Errorf("stat lease for task %s: %w", l.TaskID, err)
	}
	return s.writeAtomic(l)
}

func (s *Store) writeAtomic(l Lease) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lease for task %s: %w", l.TaskID, err)
	}

	tmp, err := os.CreateTemp(s.dir, fmt.Sprintf("task_%s_*.tmp", l.TaskID))
	if err != nil {
		return fmt.Errorf("create temp lease file for task %s: %w", l.TaskID, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp lease file for task %s: %w", l.TaskID, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fsync temp lease file for task %s: %w", l.TaskID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp lease file for task %s: %w", l.TaskID, err)
	}
	if err := os.Rename(tmpPath, s.path(l.TaskID)); err != nil {
		return fmt.Errorf("rename lease file for task %s: %w", l.TaskID, err)
	}
	return nil
}

// Read returns the decoded lease for a task, or (zero, false) if it is
// absent. A corrupted file is treated as absent, with a warning, so the
// next reconciliation pass can reclaim it.
func (s *Store) Read(taskID string) (Lease, bool) {
	data, err := os.ReadFile(s.path(taskID))
	if err != nil {
		return Lease{}, false
	}
	var l Lease
	if err := json.Unmarshal(data, &l); err != nil {
		log.WithComponent("lease").Warn().
			Str("task_id", taskID).
			Err(err).
			Msg("corrupted lease file, treating as absent")
		return Lease{}, false
	}
	return l, true
}

// Delete removes a lease file. Deleting an already-absent lease is not an
// error: delete is idempotent.
func (s *Store) Delete(taskID string) error {
	err := os.Remove(s.path(taskID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete lease for task %s: %w", taskID, err)
	}
	return nil
}

// List enumerates every lease file, skipping unreadable or corrupted files
// with a warning rather than failing the whole scan.
func (s *Store) List() ([]Lease, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list lease directory %s: %w", s.dir, err)
	}

	var leases []Lease
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "task_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		taskID := strings.TrimSuffix(strings.TrimPrefix(name, "task_"), ".json")
		if l, ok := s.Read(taskID); ok {
			leases = append(leases, l)
		}
	}
	return leases, nil
}

// ListByAgent returns every lease currently held by the given agent.
func (s *Store) ListByAgent(agent string) ([]Lease, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var out []Lease
	for _, l := range all {
		if l.Agent == agent {
			out = append(out, l)
		}
	}
	return out, nil
}

// CountActiveByAgent counts running leases per agent.
func (s *Store) CountActiveByAgent() (map[string]int, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, l := range all {
		if l.State == "running" {
			counts[l.Agent]++
		}
	}
	return counts, nil
}

// UpdateHeartbeat refreshes only the heartbeat timestamp of a lease.
func (s *Store) UpdateHeartbeat(taskID string) error {
	l, ok := s.Read(taskID)
	if !ok {
		return fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	l.Heartbeat = time.Now().UTC()
	return s.Update(l)
}

// FindStaleLeases returns every lease eligible for reclamation: its pid is
// not alive (when checkPID is set), its runtime exceeds maxRuntime, or its
// heartbeat is older than maxRuntime.
func (s *Store) FindStaleLeases(maxRuntime time.Duration, checkPID bool) ([]Stale, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var stale []Stale
	for _, l := range all {
		if checkPID && !IsProcessAlive(l.PID) {
			stale = append(stale, Stale{Lease: l, Reason: fmt.Sprintf("process %d is not alive", l.PID)})
			continue
		}

		runtime := now.Sub(l.StartedAt)
		if runtime > maxRuntime {
			stale = append(stale, Stale{
				Lease:  l,
				Reason: fmt.Sprintf("runtime exceeded %s (actual: %s)", maxRuntime, runtime.Round(time.Second)),
			})
			continue
		}

		heartbeatAge := now.Sub(l.Heartbeat)
		if heartbeatAge > maxRuntime {
			stale = append(stale, Stale{
				Lease:  l,
				Reason: fmt.Sprintf("heartbeat stale (age: %s)", heartbeatAge.Round(time.Second)),
			})
		}
	}
	return stale, nil
}

// Reclaim deletes the lease file for a stale lease. The caller is
// responsible for telling the task service to requeue the task first; the
// task service is authoritative, the local lease is just bookkeeping.
func (s *Store) Reclaim(l Lease, reason string) error {
	log.WithComponent("lease").Warn().
		Str("task_id", l.TaskID).
		Str("agent", l.Agent).
		Str("reason", reason).
		Msg("reclaiming stale lease")
	return s.Delete(l.TaskID)
}

// IsProcessAlive reports whether pid refers to a live process on this host.
// A pid <= 0 is dead by definition. It uses a zero-signal probe, which
// checks existence/permission without actually signaling the process.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

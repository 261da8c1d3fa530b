// Package lockfile provides host-wide mutual exclusion for the reconciler,
// so at most one instance runs against a given base directory at a time.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrHeld is returned by Acquire when another process already holds the
// lock. It is the "distinguishable" failure the reconciler's caller checks
// for to report "another instance is already running" instead of a
// generic configuration error.
var ErrHeld = errors.New("lock is held by another process")

// Lock wraps a non-blocking, advisory file lock.
type Lock struct {
	fl   *flock.Flock
	path string
}

// New returns a lock bound to path. The parent directory is created if
// necessary; the lock is not acquired until Acquire is called.
func New(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	return &Lock{fl: flock.New(path), path: path}, nil
}

// Acquire attempts a non-blocking exclusive lock. It returns ErrHeld if
// another process already holds it.
func (l *Lock) Acquire() error {
	locked, err := l.fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", l.path, err)
	}
	if !locked {
		return ErrHeld
	}
	return nil
}

// Release unlocks and best-effort removes the lock file. Errors removing
// the file are swallowed: a stale lock file with no active flock is
// harmless, the next Acquire will simply lock it again.
func (l *Lock) Release() {
	_ = l.fl.Unlock()
	_ = os.Remove(l.path)
}

package analytics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// RunLock is a cross-process lease over the compare analytic. The store
// offers no multi-document transactions, so two overlapping compare runs
// could double-process samples or interleave partial updates; the lease
// lets the later run detect the earlier one and skip cleanly.
type RunLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewRunLock creates a run lock in the given data directory.
func NewRunLock(dir string) *RunLock {
	lockPath := filepath.Join(dir, ".compare.lock")
	return &RunLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock attempts to acquire the lease without blocking. Returns false
// when another run holds it.
func (l *RunLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire run lock: %w", err)
	}
	l.locked = acquired
	return acquired, nil
}

// Unlock releases the lease. Safe to call on an unheld lock.
func (l *RunLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *RunLock) Path() string {
	return l.path
}

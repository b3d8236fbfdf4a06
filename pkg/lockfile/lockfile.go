// Package lockfile provides per-skill advisory locking across process
// boundaries. The filesystem is the synchronization medium: a sentinel file
// beside the skill directory is created with O_EXCL so that two concurrent
// acquisitions resolve with exactly one winner, and a sentinel older than the
// staleness threshold is treated as abandoned by a crashed process and
// reclaimed. Locks are not reentrant.
package lockfile

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Suffix is appended to the skill directory path to form the sentinel path.
const Suffix = ".lock"

// StaleAfter is the single staleness threshold after which a sentinel is
// considered abandoned. Tunable per Manager for tests via WithStaleAfter.
const StaleAfter = 10 * time.Minute

// ErrHeld indicates a live lock is already held by another operation.
var ErrHeld = errors.New("currently being updated")

// Record is the sentinel file content. Timestamp marshals as ISO-8601.
type Record struct {
	ID          string    `json:"id"`
	PID         int       `json:"pid"`
	Timestamp   time.Time `json:"timestamp"`
	Operation   string    `json:"operationType"`
	SkillPath   string    `json:"skillPath"`
	PackagePath string    `json:"packagePath,omitempty"`
}

// Lock is a successfully acquired advisory lock.
type Lock struct {
	Path   string
	Record Record
}

// Manager acquires and releases skill locks.
type Manager struct {
	staleAfter time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithStaleAfter overrides the staleness threshold.
func WithStaleAfter(d time.Duration) Option {
	return func(m *Manager) { m.staleAfter = d }
}

// NewManager creates a lock manager with the default staleness threshold.
func NewManager(opts ...Option) *Manager {
	m := &Manager{staleAfter: StaleAfter}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire creates the sentinel for skillPath. If a sentinel already exists
// and is older than the staleness threshold it is removed and acquisition is
// retried exactly once; a live sentinel fails with ErrHeld. Acquisition is
// race-safe through exclusive file creation, never check-then-create.
func (m *Manager) Acquire(skillPath, operation, packagePath string) (*Lock, error) {
	record := Record{
		ID:          uuid.NewString(),
		PID:         os.Getpid(),
		Timestamp:   time.Now().UTC(),
		Operation:   operation,
		SkillPath:   skillPath,
		PackagePath: packagePath,
	}
	lockPath := LockPath(skillPath)

	if err := m.tryCreate(lockPath, record); err == nil {
		return &Lock{Path: lockPath, Record: record}, nil
	} else if !os.IsExist(errors.Cause(err)) {
		return nil, err
	}

	// A sentinel that cannot be decoded yet may belong to a writer that won
	// the creation race a moment ago, so staleness falls back to the file
	// mtime rather than assuming abandonment.
	existing, readErr := readRecord(lockPath)
	since := time.Time{}
	if readErr == nil && !existing.Timestamp.IsZero() {
		since = existing.Timestamp
	} else if info, statErr := os.Stat(lockPath); statErr == nil {
		since = info.ModTime()
	}
	if time.Since(since) < m.staleAfter {
		if readErr == nil {
			return nil, errors.Wrapf(ErrHeld, "skill at %s (locked by pid %d since %s)",
				skillPath, existing.PID, existing.Timestamp.Format(time.RFC3339))
		}
		return nil, errors.Wrapf(ErrHeld, "skill at %s", skillPath)
	}

	// Stale sentinel: reclaim and retry once. The retry still goes through
	// exclusive creation, so losing a race here is reported as a held lock
	// rather than corrupting the winner's sentinel.
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "failed to reclaim stale lock %s", lockPath)
	}
	if err := m.tryCreate(lockPath, record); err != nil {
		if os.IsExist(errors.Cause(err)) {
			return nil, errors.Wrapf(ErrHeld, "skill at %s", skillPath)
		}
		return nil, err
	}
	return &Lock{Path: lockPath, Record: record}, nil
}

// Release removes the sentinel. Releasing an already-released lock is a
// no-op, so Release is safe to defer unconditionally.
func (m *Manager) Release(lock *Lock) error {
	if lock == nil {
		return nil
	}
	if err := os.Remove(lock.Path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to release lock %s", lock.Path)
	}
	return nil
}

// HasLock reports whether a sentinel currently exists for skillPath. It is a
// non-mutating probe for tests and diagnostics.
func (m *Manager) HasLock(skillPath string) bool {
	_, err := os.Stat(LockPath(skillPath))
	return err == nil
}

// ReadRecord returns the current sentinel record for skillPath, for
// diagnostics.
func (m *Manager) ReadRecord(skillPath string) (*Record, error) {
	return readRecord(LockPath(skillPath))
}

// LockPath returns the sentinel path guarding skillPath.
func LockPath(skillPath string) string {
	return skillPath + Suffix
}

func (m *Manager) tryCreate(lockPath string, record Record) error {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed to create lock %s", lockPath)
	}

	encodeErr := json.NewEncoder(f).Encode(record)
	closeErr := f.Close()
	if encodeErr != nil {
		os.Remove(lockPath)
		return errors.Wrap(encodeErr, "failed to write lock record")
	}
	if closeErr != nil {
		os.Remove(lockPath)
		return errors.Wrap(closeErr, "failed to close lock file")
	}
	return nil
}

func readRecord(lockPath string) (*Record, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read lock %s", lockPath)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.Wrapf(err, "failed to decode lock %s", lockPath)
	}
	return &record, nil
}

package lockfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	skillPath := filepath.Join(t.TempDir(), "my-skill")
	m := NewManager()

	lock, err := m.Acquire(skillPath, "install", "/tmp/my-skill.skill")
	require.NoError(t, err)
	assert.Equal(t, LockPath(skillPath), lock.Path)
	assert.True(t, m.HasLock(skillPath))

	record, err := m.ReadRecord(skillPath)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), record.PID)
	assert.Equal(t, "install", record.Operation)
	assert.NotEmpty(t, record.ID)

	require.NoError(t, m.Release(lock))
	assert.False(t, m.HasLock(skillPath))
}

func TestAcquireFailsWhileHeld(t *testing.T) {
	skillPath := filepath.Join(t.TempDir(), "my-skill")
	m := NewManager()

	lock, err := m.Acquire(skillPath, "update", "")
	require.NoError(t, err)
	defer m.Release(lock)

	_, err = m.Acquire(skillPath, "update", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHeld))
	assert.Contains(t, err.Error(), "currently being updated")
}

func TestAcquireIsMutuallyExclusive(t *testing.T) {
	skillPath := filepath.Join(t.TempDir(), "bar")
	m := NewManager()

	const attempts = 16
	var wg sync.WaitGroup
	acquired := make(chan *Lock, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if lock, err := m.Acquire(skillPath, "update", ""); err == nil {
				acquired <- lock
			}
		}()
	}
	wg.Wait()
	close(acquired)

	var winners []*Lock
	for lock := range acquired {
		winners = append(winners, lock)
	}
	require.Len(t, winners, 1)
	require.NoError(t, m.Release(winners[0]))
}

func TestStaleLockIsReclaimed(t *testing.T) {
	skillPath := filepath.Join(t.TempDir(), "my-skill")
	m := NewManager(WithStaleAfter(time.Minute))

	stale := Record{
		ID:        "stale",
		PID:       99999,
		Timestamp: time.Now().UTC().Add(-2 * time.Minute),
		Operation: "install",
		SkillPath: skillPath,
	}
	data, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(LockPath(skillPath), data, 0o644))

	lock, err := m.Acquire(skillPath, "update", "")
	require.NoError(t, err)
	assert.NotEqual(t, "stale", lock.Record.ID)
	require.NoError(t, m.Release(lock))
}

func TestFreshLockIsNotReclaimed(t *testing.T) {
	skillPath := filepath.Join(t.TempDir(), "my-skill")
	m := NewManager(WithStaleAfter(time.Hour))

	fresh := Record{ID: "fresh", PID: 1, Timestamp: time.Now().UTC(), SkillPath: skillPath}
	data, err := json.Marshal(fresh)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(LockPath(skillPath), data, 0o644))

	_, err = m.Acquire(skillPath, "update", "")
	assert.True(t, errors.Is(err, ErrHeld))
}

func TestCorruptLockIsReclaimed(t *testing.T) {
	skillPath := filepath.Join(t.TempDir(), "my-skill")
	m := NewManager()

	require.NoError(t, os.WriteFile(LockPath(skillPath), []byte("not json"), 0o644))
	old := time.Now().Add(-2 * StaleAfter)
	require.NoError(t, os.Chtimes(LockPath(skillPath), old, old))

	lock, err := m.Acquire(skillPath, "install", "")
	require.NoError(t, err)
	require.NoError(t, m.Release(lock))
}

func TestReleaseIsIdempotent(t *testing.T) {
	skillPath := filepath.Join(t.TempDir(), "my-skill")
	m := NewManager()

	lock, err := m.Acquire(skillPath, "uninstall", "")
	require.NoError(t, err)

	require.NoError(t, m.Release(lock))
	require.NoError(t, m.Release(lock))
	require.NoError(t, m.Release(nil))
}

func TestTimestampIsISO8601(t *testing.T) {
	skillPath := filepath.Join(t.TempDir(), "my-skill")
	m := NewManager()

	lock, err := m.Acquire(skillPath, "install", "")
	require.NoError(t, err)
	defer m.Release(lock)

	raw, err := os.ReadFile(lock.Path)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	ts, ok := decoded["timestamp"].(string)
	require.True(t, ok)
	_, err = time.Parse(time.RFC3339Nano, ts)
	assert.NoError(t, err)
}

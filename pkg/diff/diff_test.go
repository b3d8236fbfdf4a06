package diff

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func paths(changes []FileChange) []string {
	out := make([]string, 0, len(changes))
	for _, c := range changes {
		out = append(out, c.Path)
	}
	return out
}

func TestCompareUpdateScenario(t *testing.T) {
	installed := writeTree(t, map[string]string{
		"SKILL.md":  "old manifest",
		"README.md": "readme",
	})
	staged := writeTree(t, map[string]string{
		"SKILL.md":  "new manifest!",
		"README.md": "readme",
		"NOTES.md":  "notes",
	})

	c, err := Compare(installed, staged)
	require.NoError(t, err)

	assert.Equal(t, []string{"NOTES.md"}, paths(c.Added))
	assert.Equal(t, []string{"SKILL.md"}, paths(c.Modified))
	assert.Empty(t, c.Removed)
	assert.Equal(t, 1, c.AddedCount())
	assert.Equal(t, 1, c.ModifiedCount())
	assert.Equal(t, 0, c.RemovedCount())
}

func TestCompareIdenticalTrees(t *testing.T) {
	files := map[string]string{"SKILL.md": "manifest", "a/b.txt": "payload"}
	installed := writeTree(t, files)
	staged := writeTree(t, files)

	c, err := Compare(installed, staged)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	assert.Zero(t, c.SizeChange)
}

func TestCompareSameSizeDifferentContent(t *testing.T) {
	installed := writeTree(t, map[string]string{"SKILL.md": "aaaa"})
	staged := writeTree(t, map[string]string{"SKILL.md": "bbbb"})

	c, err := Compare(installed, staged)
	require.NoError(t, err)
	require.Len(t, c.Modified, 1)
	assert.Equal(t, int64(4), c.Modified[0].BeforeSize)
	assert.Equal(t, int64(4), c.Modified[0].AfterSize)
	assert.Zero(t, c.Modified[0].Delta)
}

func TestCompareRemovals(t *testing.T) {
	installed := writeTree(t, map[string]string{"SKILL.md": "m", "legacy.txt": "old data"})
	staged := writeTree(t, map[string]string{"SKILL.md": "m"})

	c, err := Compare(installed, staged)
	require.NoError(t, err)
	require.Len(t, c.Removed, 1)
	assert.Equal(t, "legacy.txt", c.Removed[0].Path)
	assert.Equal(t, int64(-1), c.Removed[0].AfterSize)
	assert.Equal(t, int64(-8), c.Removed[0].Delta)
	assert.Equal(t, int64(-8), c.SizeChange)
}

func TestCompareAgainstMissingInstallation(t *testing.T) {
	staged := writeTree(t, map[string]string{"SKILL.md": "m", "doc.md": "d"})

	c, err := Compare(filepath.Join(t.TempDir(), "absent"), staged)
	require.NoError(t, err)
	assert.Len(t, c.Added, 2)
	assert.Empty(t, c.Removed)
	assert.Empty(t, c.Modified)
}

func TestSizeChangeIsSumOfDeltas(t *testing.T) {
	installed := writeTree(t, map[string]string{
		"SKILL.md": "12345",
		"gone.txt": "abc",
	})
	staged := writeTree(t, map[string]string{
		"SKILL.md": "1234567890",
		"new.txt":  "xy",
	})

	c, err := Compare(installed, staged)
	require.NoError(t, err)

	var sum int64
	for _, list := range [][]FileChange{c.Added, c.Removed, c.Modified} {
		for _, change := range list {
			sum += change.Delta
		}
	}
	assert.Equal(t, sum, c.SizeChange)
}

package operations

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillkit/pkg/backup"
	"github.com/jingkaihe/skillkit/pkg/lockfile"
	"github.com/jingkaihe/skillkit/pkg/scope"
)

func testPipeline(t *testing.T) *Pipeline {
	t.Helper()
	return &Pipeline{
		Locks:   lockfile.NewManager(),
		Backups: backup.NewManagerAt(filepath.Join(t.TempDir(), "backups")),
	}
}

func testScope(t *testing.T) scope.Scope {
	t.Helper()
	return scope.Scope{Kind: scope.Custom, Path: filepath.Join(t.TempDir(), "skills")}
}

func manifestFor(name string) string {
	return fmt.Sprintf("---\nname: %s\ndescription: a test skill\n---\n\n# %s\n", name, name)
}

// buildPackage writes a .skill archive whose entries live under name/.
// files maps root-relative paths to contents; SKILL.md is added when absent.
func buildPackage(t *testing.T, name string, files map[string]string) string {
	t.Helper()

	if _, ok := files["SKILL.md"]; !ok {
		copied := make(map[string]string, len(files)+1)
		for k, v := range files {
			copied[k] = v
		}
		copied["SKILL.md"] = manifestFor(name)
		files = copied
	}

	packagePath := filepath.Join(t.TempDir(), name+".skill")
	out, err := os.Create(packagePath)
	require.NoError(t, err)
	defer out.Close()

	zw := zip.NewWriter(out)
	_, err = zw.Create(name + "/")
	require.NoError(t, err)
	for rel, content := range files {
		w, err := zw.Create(name + "/" + rel)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return packagePath
}

// buildRawPackage writes a zip with exactly the given entry names, for
// malformed-package tests.
func buildRawPackage(t *testing.T, entries map[string]string) string {
	t.Helper()

	packagePath := filepath.Join(t.TempDir(), "raw.skill")
	out, err := os.Create(packagePath)
	require.NoError(t, err)
	defer out.Close()

	zw := zip.NewWriter(out)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return packagePath
}

// installSkill writes an installed skill directly into the scope directory.
func installSkill(t *testing.T, sc scope.Scope, name string, files map[string]string) string {
	t.Helper()

	dir := filepath.Join(sc.Path, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	if _, ok := files["SKILL.md"]; !ok {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(manifestFor(name)), 0o644))
	}
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

// treeSnapshot captures relative path -> content for dry-run invariance
// checks.
func treeSnapshot(t *testing.T, root string) map[string]string {
	t.Helper()

	snapshot := make(map[string]string)
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		snapshot[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return snapshot
}

// Package backup snapshots an installed skill into a timestamped package
// archive before any destructive step, so failed updates and uninstalls can
// be rolled back or recovered manually.
package backup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillkit/pkg/archive"
	"github.com/jingkaihe/skillkit/pkg/logger"
)

// Result describes the outcome of a backup request. Created is false when
// the caller opted out of backups.
type Result struct {
	Created   bool
	Path      string
	FileCount int
	Size      int64
}

// Manager writes backup archives under a dedicated backup root.
type Manager struct {
	root string
}

// DefaultRoot returns the backup root under the XDG data directory.
func DefaultRoot() string {
	return filepath.Join(xdg.DataHome, "skillkit", "backups")
}

// NewManager creates a backup manager rooted at the XDG data directory.
func NewManager() *Manager {
	return NewManagerAt(DefaultRoot())
}

// NewManagerAt creates a backup manager with an explicit root, used by tests
// and by deployments that keep backups elsewhere.
func NewManagerAt(root string) *Manager {
	return &Manager{root: root}
}

// Root returns the backup root directory.
func (m *Manager) Root() string {
	return m.root
}

// PlannedPath returns the archive path a backup of name would be written to
// right now, without creating anything. Dry-run previews report this path.
func (m *Manager) PlannedPath(name string) string {
	return filepath.Join(m.root, name+"-"+time.Now().UTC().Format("20060102-150405")+archive.Extension)
}

// Create archives the entire skill directory before mutation. The backup
// root is created and validated as writable first; a backup that cannot be
// written fails the operation rather than being silently skipped.
func (m *Manager) Create(ctx context.Context, name, skillDir string) (*Result, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create backup root %s", m.root)
	}

	backupPath := m.PlannedPath(name)
	fileCount, size, err := archive.Create(backupPath, skillDir, name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to back up %s", skillDir)
	}

	logger.G(ctx).WithFields(map[string]any{
		"skill":  name,
		"backup": backupPath,
		"files":  fileCount,
	}).Debug("Created backup")

	return &Result{
		Created:   true,
		Path:      backupPath,
		FileCount: fileCount,
		Size:      size,
	}, nil
}

// Skipped returns the result recorded when the caller opted out of backups.
func (m *Manager) Skipped() *Result {
	return &Result{Created: false}
}

// Restore re-extracts a backup archive into skillDir, replacing whatever is
// there. Used by the update pipeline when Execute fails midway.
func (m *Manager) Restore(ctx context.Context, backupPath, skillDir string) error {
	r, err := archive.Open(backupPath)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.ValidateStructure(); err != nil {
		return errors.Wrapf(err, "backup %s is not restorable", backupPath)
	}

	stagingDir, cleanup, err := r.ExtractToTemp()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := os.RemoveAll(skillDir); err != nil {
		return errors.Wrapf(err, "failed to clear %s before restore", skillDir)
	}
	if err := os.Rename(stagingDir, skillDir); err == nil {
		logger.G(ctx).WithField("backup", backupPath).Info("Restored skill from backup")
		return nil
	}

	// Rename can fail across filesystems; fall back to a copy.
	if err := copyTree(stagingDir, skillDir); err != nil {
		return errors.Wrapf(err, "failed to restore %s from %s", skillDir, backupPath)
	}
	logger.G(ctx).WithField("backup", backupPath).Info("Restored skill from backup")
	return nil
}

// Remove deletes a backup archive, tolerating one that is already gone.
func (m *Manager) Remove(backupPath string) error {
	if err := os.Remove(backupPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove backup %s", backupPath)
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		dest := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(dest, 0o755)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(dest, data, info.Mode().Perm())
	})
}

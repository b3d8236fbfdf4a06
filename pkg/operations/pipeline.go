// Package operations implements the transactional install, update, and
// uninstall pipelines. Each pipeline runs its phases in strict order
// (validate, discover, security and analysis, prepare, execute, cleanup),
// short-circuiting to a typed error or a terminal outcome on first failure.
// No mutation happens without an acquired lock, no destructive step runs
// before the backup is written, and dry-run returns before Prepare.
package operations

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jingkaihe/skillkit/pkg/backup"
	"github.com/jingkaihe/skillkit/pkg/lockfile"
	"github.com/jingkaihe/skillkit/pkg/logger"
	"github.com/jingkaihe/skillkit/pkg/security"
)

// Confirmer asks the user a yes/no question. Pipelines call it during
// Prepare unless the force flag is set; a nil Confirmer answers yes.
type Confirmer func(ctx context.Context, prompt string) (bool, error)

// Pipeline composes the lock and backup managers shared by all three
// operations. The zero value is not usable; construct with New.
type Pipeline struct {
	Locks   *lockfile.Manager
	Backups *backup.Manager

	// Timeout bounds a single operation. Zero means no budget.
	Timeout time.Duration
}

// New creates a pipeline with default lock and backup managers.
func New() *Pipeline {
	return &Pipeline{
		Locks:   lockfile.NewManager(),
		Backups: backup.NewManager(),
	}
}

// opContext attaches an operation-scoped logger and applies the time budget.
func (p *Pipeline) opContext(ctx context.Context, operation, name string) (context.Context, context.CancelFunc) {
	entry := logger.G(ctx).WithFields(logrus.Fields{
		"operation":   operation,
		"skill":       name,
		"operationId": uuid.NewString(),
	})
	ctx = logger.WithLogger(ctx, entry)

	if p.Timeout > 0 {
		return context.WithTimeout(ctx, p.Timeout)
	}
	return ctx, func() {}
}

// checkCancelled is called at phase boundaries. A deadline hit becomes a
// TimeoutError; cooperative cancellation propagates as the context error.
// Execute is never interrupted once started.
func (p *Pipeline) checkCancelled(ctx context.Context, operation string) error {
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && p.Timeout > 0 {
			return &TimeoutError{Operation: operation, Budget: p.Timeout}
		}
		return errors.Wrapf(ctx.Err(), "%s cancelled", operation)
	default:
		return nil
	}
}

// validateName classifies a rejected skill name: traversal attempts stay
// security errors, grammar violations become validation errors.
func validateName(name string) error {
	err := security.ValidateSkillName(name)
	if err == nil {
		return nil
	}
	var secErr *security.Error
	if errors.As(err, &secErr) {
		return err
	}
	return &ValidationError{Field: "name", Message: err.Error()}
}

// discoverInstalled locates the installation for name under scopeDir. A
// directory that matches only case-insensitively is a security error, never
// a convenience match.
func discoverInstalled(scopeDir, name string) (string, bool, error) {
	entries, err := os.ReadDir(scopeDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fsErr("read scope directory", scopeDir, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if entry.Name() == name {
			return filepath.Join(scopeDir, name), true, nil
		}
		if strings.EqualFold(entry.Name(), name) {
			return "", false, &security.Error{
				Reason: security.ReasonCaseMismatch,
				Path:   filepath.Join(scopeDir, entry.Name()),
				Detail: "existing directory differs from requested name " + name + " only by case",
			}
		}
	}
	return "", false, nil
}

// confirm runs the external confirmation collaborator. Force skips it
// entirely; a nil Confirmer answers yes.
func (p *Pipeline) confirm(ctx context.Context, force bool, confirmer Confirmer, prompt string) (bool, error) {
	if force || confirmer == nil {
		return true, nil
	}
	return confirmer(ctx, prompt)
}

// checkHardLinks runs hard-link detection on a tree. Without the override
// any finding is fatal; with it the findings are downgraded to warnings,
// never silently dropped.
func checkHardLinks(dir string, allow bool) ([]string, error) {
	flagged, err := security.CheckHardLinks(dir)
	if err != nil {
		return nil, err
	}
	if len(flagged) == 0 {
		return nil, nil
	}
	if !allow {
		return nil, &security.Error{
			Reason: security.ReasonHardLink,
			Path:   flagged[0],
			Detail: "file has multiple hard links; pass the hard-link override to proceed",
		}
	}
	warnings := make([]string, 0, len(flagged))
	for _, rel := range flagged {
		warnings = append(warnings, "hard link detected: "+rel)
	}
	return warnings, nil
}

// classifyLockError maps a held lock to the validation error callers expect;
// anything else is a filesystem problem.
func classifyLockError(err error) error {
	if errors.Is(err, lockfile.ErrHeld) {
		return &ValidationError{Field: "skill", Message: err.Error()}
	}
	return err
}

// installTree copies the staged tree into target. target must not exist.
func installTree(stagingDir, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fsErr("create scope directory", filepath.Dir(target), err)
	}
	if err := os.Rename(stagingDir, target); err == nil {
		return nil
	}

	// Rename fails across filesystems; fall back to a copy.
	err := filepath.Walk(stagingDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(stagingDir, p)
		if err != nil {
			return err
		}
		dest := filepath.Join(target, rel)
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
	if err != nil {
		return fsErr("copy skill files", target, err)
	}
	return nil
}

// finishBackup applies the caller's retention preference after a successful
// operation.
func (p *Pipeline) finishBackup(ctx context.Context, result *backup.Result, keep bool) {
	if result == nil || !result.Created || keep {
		return
	}
	if err := p.Backups.Remove(result.Path); err != nil {
		logger.G(ctx).WithError(err).Warn("Failed to remove backup")
	}
}

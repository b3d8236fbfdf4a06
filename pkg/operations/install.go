package operations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jingkaihe/skillkit/pkg/backup"
	"github.com/jingkaihe/skillkit/pkg/diff"
	"github.com/jingkaihe/skillkit/pkg/logger"
	"github.com/jingkaihe/skillkit/pkg/scope"
	"github.com/jingkaihe/skillkit/pkg/security"
)

// InstallRequest parameterizes the install pipeline. The skill name is taken
// from the package's root directory, never from the caller.
type InstallRequest struct {
	PackagePath    string
	Scope          scope.Scope
	Force          bool
	DryRun         bool
	NoBackup       bool
	KeepBackup     bool
	AllowHardLinks bool
	Confirm        Confirmer
}

// Install runs the install pipeline: validate the package, discover any
// conflicting installation, run the security checks, then (unless dry-run)
// lock, back up, confirm, and write the new skill directory.
func (p *Pipeline) Install(ctx context.Context, req InstallRequest) (InstallOutcome, error) {
	ctx, cancel := p.opContext(ctx, "install", filepath.Base(req.PackagePath))
	defer cancel()

	// Phase 1: validate.
	if err := p.checkCancelled(ctx, "install"); err != nil {
		return nil, err
	}
	staged, err := p.stagePackage(ctx, req.PackagePath)
	if err != nil {
		return nil, err
	}
	defer staged.close()
	name := staged.name

	// Phase 2: discover.
	if err := p.checkCancelled(ctx, "install"); err != nil {
		return nil, err
	}
	target := filepath.Join(req.Scope.Path, name)
	existingPath, exists, err := discoverInstalled(req.Scope.Path, name)
	if err != nil {
		return nil, err
	}
	if exists && !req.Force {
		return OverwriteRequired{Name: name, ExistingPath: existingPath}, nil
	}

	// Phase 3: security and analysis. On an overwrite the existing tree is
	// checked as well; its files are archived into the backup before removal.
	if err := security.CheckPathContainment(target, req.Scope.Path); err != nil {
		return nil, err
	}
	warnings, err := checkHardLinks(staged.stagingDir, req.AllowHardLinks)
	if err != nil {
		return nil, err
	}
	if exists {
		if err := security.CheckSymlinkEscape(existingPath, req.Scope.Path); err != nil {
			return nil, wrapUnknown(err, "install")
		}
		installedWarnings, err := checkHardLinks(existingPath, req.AllowHardLinks)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, installedWarnings...)
	}
	comparison, err := diff.Compare(existingPath, staged.stagingDir)
	if err != nil {
		return nil, wrapUnknown(err, "install")
	}

	if req.DryRun {
		plannedBackup := ""
		if exists && !req.NoBackup {
			plannedBackup = p.Backups.PlannedPath(name)
		}
		return Preview{
			Operation:     "install",
			Name:          name,
			Path:          target,
			Comparison:    comparison,
			PlannedBackup: plannedBackup,
			FileCount:     staged.fileCount,
			Size:          staged.size,
			Warnings:      warnings,
		}, nil
	}

	// Phase 4: prepare. The scope directory must exist before the lock
	// sentinel can be created beside the target.
	if err := p.checkCancelled(ctx, "install"); err != nil {
		return nil, err
	}
	if err := scope.EnsureDir(req.Scope.Path); err != nil {
		return nil, fsErr("prepare scope directory", req.Scope.Path, err)
	}
	lock, err := p.Locks.Acquire(target, "install", req.PackagePath)
	if err != nil {
		return nil, classifyLockError(err)
	}
	defer p.Locks.Release(lock)

	backupResult := p.Backups.Skipped()
	if exists && !req.NoBackup {
		backupResult, err = p.Backups.Create(ctx, name, existingPath)
		if err != nil {
			return nil, &BackupError{Name: name, Err: err}
		}
	}

	prompt := fmt.Sprintf("Install skill %q to %s?", name, target)
	if exists {
		prompt = fmt.Sprintf("Overwrite skill %q at %s?", name, target)
	}
	confirmed, err := p.confirm(ctx, req.Force, req.Confirm, prompt)
	if err != nil {
		p.finishBackup(ctx, backupResult, false)
		return nil, wrapUnknown(err, "install")
	}
	if err := p.checkCancelled(ctx, "install"); err != nil {
		p.finishBackup(ctx, backupResult, false)
		return nil, err
	}
	if !confirmed {
		p.finishBackup(ctx, backupResult, false)
		return Cancelled{Operation: "install", Name: name}, nil
	}

	// Phase 5: execute. Not interruptible once started.
	if err := p.executeInstall(ctx, staged, target, exists, backupResult); err != nil {
		return nil, err
	}

	// Phase 6: cleanup. Staging and lock are released by the defers above.
	p.finishBackup(ctx, backupResult, req.KeepBackup)

	logger.G(ctx).WithField("path", target).Info("Installed skill")
	return Installed{
		Name:      name,
		Path:      target,
		FileCount: staged.fileCount,
		Size:      staged.size,
		Backup:    backupResult,
		Warnings:  warnings,
	}, nil
}

func (p *Pipeline) executeInstall(ctx context.Context, staged *stagedPackage, target string, exists bool, backupResult *backup.Result) error {
	execErr := func() error {
		if exists {
			if err := os.RemoveAll(target); err != nil {
				return fsErr("remove existing skill", target, err)
			}
		}
		return installTree(staged.stagingDir, target)
	}()
	if execErr == nil {
		return nil
	}

	if !exists {
		// Fresh install: clear the partial write, nothing to roll back to.
		os.RemoveAll(target)
		return execErr
	}
	return p.rollback(ctx, staged.name, target, execErr, backupResult)
}

// rollback restores target from the pre-mutation backup after a failed
// Execute. A restore failure is escalated to a CriticalError: the
// installation may be broken and needs manual attention.
func (p *Pipeline) rollback(ctx context.Context, name, target string, cause error, backupResult *backup.Result) error {
	if backupResult == nil || !backupResult.Created {
		return &CriticalError{Name: name, Cause: cause,
			RestoreErr: fmt.Errorf("no backup was taken"), BackupPath: ""}
	}
	if restoreErr := p.Backups.Restore(ctx, backupResult.Path, target); restoreErr != nil {
		return &CriticalError{Name: name, Cause: cause, RestoreErr: restoreErr, BackupPath: backupResult.Path}
	}
	return &RollbackError{Name: name, Cause: cause}
}

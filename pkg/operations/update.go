package operations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jingkaihe/skillkit/pkg/diff"
	"github.com/jingkaihe/skillkit/pkg/logger"
	"github.com/jingkaihe/skillkit/pkg/scope"
	"github.com/jingkaihe/skillkit/pkg/security"
)

// UpdateRequest parameterizes the update pipeline.
type UpdateRequest struct {
	PackagePath    string
	Scope          scope.Scope
	Force          bool
	DryRun         bool
	NoBackup       bool
	KeepBackup     bool
	AllowHardLinks bool
	Confirm        Confirmer
}

// Update replaces an existing installation with the package contents. A
// failed Execute is rolled back from the pre-mutation backup; a rollback
// that itself fails surfaces as a CriticalError so the caller knows manual
// intervention is required.
func (p *Pipeline) Update(ctx context.Context, req UpdateRequest) (UpdateOutcome, error) {
	ctx, cancel := p.opContext(ctx, "update", filepath.Base(req.PackagePath))
	defer cancel()

	// Phase 1: validate.
	if err := p.checkCancelled(ctx, "update"); err != nil {
		return nil, err
	}
	staged, err := p.stagePackage(ctx, req.PackagePath)
	if err != nil {
		return nil, err
	}
	defer staged.close()
	name := staged.name

	// Phase 2: discover. Update requires an existing installation.
	if err := p.checkCancelled(ctx, "update"); err != nil {
		return nil, err
	}
	installedPath, exists, err := discoverInstalled(req.Scope.Path, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &NotFoundError{Name: name, SearchedPath: req.Scope.Path}
	}

	// Phase 3: security and analysis. Both the installed tree and the
	// staged package are checked.
	if err := security.CheckPathContainment(installedPath, req.Scope.Path); err != nil {
		return nil, err
	}
	if err := security.CheckSymlinkEscape(installedPath, req.Scope.Path); err != nil {
		return nil, wrapUnknown(err, "update")
	}
	warnings, err := checkHardLinks(staged.stagingDir, req.AllowHardLinks)
	if err != nil {
		return nil, err
	}
	installedWarnings, err := checkHardLinks(installedPath, req.AllowHardLinks)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, installedWarnings...)

	comparison, err := diff.Compare(installedPath, staged.stagingDir)
	if err != nil {
		return nil, wrapUnknown(err, "update")
	}

	if req.DryRun {
		plannedBackup := ""
		if !req.NoBackup {
			plannedBackup = p.Backups.PlannedPath(name)
		}
		return Preview{
			Operation:     "update",
			Name:          name,
			Path:          installedPath,
			Comparison:    comparison,
			PlannedBackup: plannedBackup,
			FileCount:     staged.fileCount,
			Size:          staged.size,
			Warnings:      warnings,
		}, nil
	}

	// Phase 4: prepare.
	if err := p.checkCancelled(ctx, "update"); err != nil {
		return nil, err
	}
	lock, err := p.Locks.Acquire(installedPath, "update", req.PackagePath)
	if err != nil {
		return nil, classifyLockError(err)
	}
	defer p.Locks.Release(lock)

	backupResult := p.Backups.Skipped()
	if !req.NoBackup {
		backupResult, err = p.Backups.Create(ctx, name, installedPath)
		if err != nil {
			return nil, &BackupError{Name: name, Err: err}
		}
	}

	prompt := fmt.Sprintf("Update skill %q at %s? (%d added, %d removed, %d modified)",
		name, installedPath, comparison.AddedCount(), comparison.RemovedCount(), comparison.ModifiedCount())
	confirmed, err := p.confirm(ctx, req.Force, req.Confirm, prompt)
	if err != nil {
		p.finishBackup(ctx, backupResult, false)
		return nil, wrapUnknown(err, "update")
	}
	if err := p.checkCancelled(ctx, "update"); err != nil {
		p.finishBackup(ctx, backupResult, false)
		return nil, err
	}
	if !confirmed {
		p.finishBackup(ctx, backupResult, false)
		return Cancelled{Operation: "update", Name: name}, nil
	}

	// Phase 5: execute.
	execErr := func() error {
		if err := os.RemoveAll(installedPath); err != nil {
			return fsErr("remove existing skill", installedPath, err)
		}
		return installTree(staged.stagingDir, installedPath)
	}()
	if execErr != nil {
		return nil, p.rollback(ctx, name, installedPath, execErr, backupResult)
	}

	// Phase 6: cleanup.
	p.finishBackup(ctx, backupResult, req.KeepBackup)

	logger.G(ctx).WithField("path", installedPath).Info("Updated skill")
	return Updated{
		Name:       name,
		Path:       installedPath,
		Comparison: comparison,
		Backup:     backupResult,
		Warnings:   warnings,
	}, nil
}

package operations

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/jingkaihe/skillkit/pkg/diff"
	"github.com/jingkaihe/skillkit/pkg/logger"
	"github.com/jingkaihe/skillkit/pkg/scope"
	"github.com/jingkaihe/skillkit/pkg/security"
)

// UninstallRequest parameterizes the uninstall pipeline for a single name.
type UninstallRequest struct {
	Name           string
	Scope          scope.Scope
	Force          bool
	DryRun         bool
	NoBackup       bool
	AllowHardLinks bool
	Confirm        Confirmer
}

// Uninstall removes a single installed skill. The name is security-validated
// before it is ever used to build a filesystem path.
func (p *Pipeline) Uninstall(ctx context.Context, req UninstallRequest) (UninstallOutcome, error) {
	ctx, cancel := p.opContext(ctx, "uninstall", req.Name)
	defer cancel()

	// Phase 1: validate.
	if err := p.checkCancelled(ctx, "uninstall"); err != nil {
		return nil, err
	}
	if err := validateName(req.Name); err != nil {
		return nil, err
	}

	// Phase 2: discover.
	installedPath, exists, err := discoverInstalled(req.Scope.Path, req.Name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &NotFoundError{Name: req.Name, SearchedPath: req.Scope.Path}
	}

	// Phase 3: security and analysis.
	if err := security.CheckPathContainment(installedPath, req.Scope.Path); err != nil {
		return nil, err
	}
	if err := security.CheckSymlinkEscape(installedPath, req.Scope.Path); err != nil {
		return nil, wrapUnknown(err, "uninstall")
	}
	if _, err := checkHardLinks(installedPath, req.AllowHardLinks); err != nil {
		return nil, err
	}

	fileCount, size, err := security.MeasureTree(installedPath)
	if err != nil {
		return nil, fsErr("measure skill", installedPath, err)
	}

	if req.DryRun {
		// Diff against an empty tree: removal drops every file.
		comparison, err := diff.Compare(installedPath, "")
		if err != nil {
			return nil, wrapUnknown(err, "uninstall")
		}
		plannedBackup := ""
		if !req.NoBackup {
			plannedBackup = p.Backups.PlannedPath(req.Name)
		}
		return Preview{
			Operation:     "uninstall",
			Name:          req.Name,
			Path:          installedPath,
			Comparison:    comparison,
			PlannedBackup: plannedBackup,
			FileCount:     fileCount,
			Size:          size,
		}, nil
	}

	// Phase 4: prepare.
	if err := p.checkCancelled(ctx, "uninstall"); err != nil {
		return nil, err
	}
	lock, err := p.Locks.Acquire(installedPath, "uninstall", "")
	if err != nil {
		return nil, classifyLockError(err)
	}
	defer p.Locks.Release(lock)

	backupResult := p.Backups.Skipped()
	if !req.NoBackup {
		backupResult, err = p.Backups.Create(ctx, req.Name, installedPath)
		if err != nil {
			return nil, &BackupError{Name: req.Name, Err: err}
		}
	}

	prompt := fmt.Sprintf("Remove skill %q from %s? (%d files, %d bytes)", req.Name, installedPath, fileCount, size)
	confirmed, err := p.confirm(ctx, req.Force, req.Confirm, prompt)
	if err != nil {
		p.finishBackup(ctx, backupResult, false)
		return nil, wrapUnknown(err, "uninstall")
	}
	if err := p.checkCancelled(ctx, "uninstall"); err != nil {
		p.finishBackup(ctx, backupResult, false)
		return nil, err
	}
	if !confirmed {
		p.finishBackup(ctx, backupResult, false)
		return Cancelled{Operation: "uninstall", Name: req.Name}, nil
	}

	// Phase 5: execute.
	if err := os.RemoveAll(installedPath); err != nil {
		return nil, fsErr("remove skill", installedPath, err)
	}
	if _, statErr := os.Stat(installedPath); statErr == nil {
		return nil, fsErr("remove skill", installedPath, errors.New("directory still present after removal"))
	}

	// Phase 6: cleanup. Uninstall backups are always retained; the archive
	// is the only remaining copy of the skill.
	p.finishBackup(ctx, backupResult, true)

	logger.G(ctx).WithField("path", installedPath).Info("Uninstalled skill")
	return Uninstalled{
		Name:      req.Name,
		Path:      installedPath,
		FileCount: fileCount,
		Size:      size,
		Backup:    backupResult,
	}, nil
}

// UninstallBatch applies the uninstall pipeline to each name in order,
// isolating per-item failures: a missing skill, or a validation failure
// without force, is recorded as not found and processing continues. Security,
// filesystem, and other unexpected errors abort the remaining batch.
func (p *Pipeline) UninstallBatch(ctx context.Context, names []string, base UninstallRequest) (*BatchResult, error) {
	result := &BatchResult{}

	for _, name := range names {
		req := base
		req.Name = name

		outcome, err := p.Uninstall(ctx, req)
		if err != nil {
			var notFound *NotFoundError
			if errors.As(err, &notFound) {
				result.NotFound = append(result.NotFound, name)
				continue
			}
			var validation *ValidationError
			if !base.Force && errors.As(err, &validation) {
				logger.G(ctx).WithError(err).WithField("skill", name).Warn("Skipping invalid name")
				result.NotFound = append(result.NotFound, name)
				continue
			}
			return result, errors.Wrapf(err, "batch uninstall aborted at %q", name)
		}

		result.Outcomes = append(result.Outcomes, outcome)
		if _, ok := outcome.(Uninstalled); ok {
			result.Removed = append(result.Removed, name)
		}
	}
	return result, nil
}

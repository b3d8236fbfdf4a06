package operations

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
)

// ValidationError reports a rejected request field before any mutation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// NotFoundError reports that no installation exists for the requested name.
type NotFoundError struct {
	Name         string
	SearchedPath string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("skill %q not found in %s", e.Name, e.SearchedPath)
}

// FilesystemError wraps a failed filesystem operation with its path.
// Permission failures are normalized to a "permission denied" message.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	if errors.Is(e.Err, os.ErrPermission) {
		return fmt.Sprintf("%s failed: permission denied: %s", e.Op, e.Path)
	}
	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// PackageMismatchError reports that the manifest name inside a package
// disagrees with the archive's root directory name.
type PackageMismatchError struct {
	PackageName  string
	ManifestName string
}

func (e *PackageMismatchError) Error() string {
	return fmt.Sprintf("package root %q does not match manifest name %q", e.PackageName, e.ManifestName)
}

// BackupError reports that the pre-mutation backup could not be created. The
// operation fails closed before any destructive step.
type BackupError struct {
	Name string
	Err  error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("failed to back up skill %q: %v", e.Name, e.Err)
}

func (e *BackupError) Unwrap() error { return e.Err }

// RollbackError reports that Execute failed but the installation was
// restored from backup. The skill is intact; the requested change did not
// happen.
type RollbackError struct {
	Name  string
	Cause error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("change to %q failed and was rolled back: %v", e.Name, e.Cause)
}

func (e *RollbackError) Unwrap() error { return e.Cause }

// CriticalError reports that Execute failed AND restoring from backup also
// failed. The installation may be in a broken state; manual intervention is
// required, starting from BackupPath.
type CriticalError struct {
	Name       string
	Cause      error
	RestoreErr error
	BackupPath string
}

func (e *CriticalError) Error() string {
	return fmt.Sprintf("change to %q failed (%v) and rollback also failed (%v); restore manually from %s",
		e.Name, e.Cause, e.RestoreErr, e.BackupPath)
}

func (e *CriticalError) Unwrap() error { return e.Cause }

// TimeoutError reports that the operation exceeded its time budget.
type TimeoutError struct {
	Operation string
	Budget    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Operation, e.Budget)
}

func fsErr(op, path string, err error) *FilesystemError {
	return &FilesystemError{Op: op, Path: path, Err: err}
}

package main

import (
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillkit/pkg/operations"
	"github.com/jingkaihe/skillkit/pkg/security"
)

// Exit codes, grouped by how the caller should react: 1 means the request
// was wrong, 2 means the filesystem misbehaved, 3 means the package or its
// surroundings failed a safety check, 4 means a rollback failed and the
// installation needs manual attention.
const (
	exitOK         = 0
	exitUsage      = 1
	exitFilesystem = 2
	exitSecurity   = 3
	exitCritical   = 4
)

func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}

	var critical *operations.CriticalError
	if errors.As(err, &critical) {
		return exitCritical
	}

	var secErr *security.Error
	var mismatch *operations.PackageMismatchError
	var backupErr *operations.BackupError
	if errors.As(err, &secErr) || errors.As(err, &mismatch) || errors.As(err, &backupErr) {
		return exitSecurity
	}

	var fsErr *operations.FilesystemError
	var rollback *operations.RollbackError
	var timeout *operations.TimeoutError
	if errors.As(err, &fsErr) || errors.As(err, &rollback) || errors.As(err, &timeout) {
		return exitFilesystem
	}

	return exitUsage
}

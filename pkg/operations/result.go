package operations

import (
	"github.com/jingkaihe/skillkit/pkg/backup"
	"github.com/jingkaihe/skillkit/pkg/diff"
)

// InstallOutcome is the closed set of non-error terminal states of the
// install pipeline. Callers switch over the concrete types.
type InstallOutcome interface{ installOutcome() }

// UpdateOutcome is the closed set of non-error terminal states of the update
// pipeline.
type UpdateOutcome interface{ updateOutcome() }

// UninstallOutcome is the closed set of non-error terminal states of the
// uninstall pipeline.
type UninstallOutcome interface{ uninstallOutcome() }

// Installed is the success terminal state of the install pipeline.
type Installed struct {
	Name      string
	Path      string
	FileCount int
	Size      int64
	Backup    *backup.Result
	Warnings  []string
}

func (Installed) installOutcome() {}

// Updated is the success terminal state of the update pipeline.
type Updated struct {
	Name       string
	Path       string
	Comparison *diff.Comparison
	Backup     *backup.Result
	Warnings   []string
}

func (Updated) updateOutcome() {}

// Uninstalled is the success terminal state of the uninstall pipeline.
type Uninstalled struct {
	Name      string
	Path      string
	FileCount int
	Size      int64
	Backup    *backup.Result
}

func (Uninstalled) uninstallOutcome() {}

// Preview is the dry-run terminal state of every pipeline. Prepare and
// Execute never ran; the filesystem is untouched. PlannedBackup is the path
// a backup would be written to, not a created file.
type Preview struct {
	Operation     string
	Name          string
	Path          string
	Comparison    *diff.Comparison
	PlannedBackup string
	FileCount     int
	Size          int64
	Warnings      []string
}

func (Preview) installOutcome()   {}
func (Preview) updateOutcome()    {}
func (Preview) uninstallOutcome() {}

// OverwriteRequired is the install terminal state when a conflicting
// installation exists and no force flag was given.
type OverwriteRequired struct {
	Name         string
	ExistingPath string
}

func (OverwriteRequired) installOutcome() {}

// Cancelled is the terminal state when the user declined confirmation. The
// lock was released and any transient backup removed.
type Cancelled struct {
	Operation string
	Name      string
}

func (Cancelled) installOutcome()   {}
func (Cancelled) updateOutcome()    {}
func (Cancelled) uninstallOutcome() {}

// BatchResult aggregates a batch uninstall. Removed and NotFound preserve
// the input order of the names they correspond to.
type BatchResult struct {
	Removed  []string
	NotFound []string
	Outcomes []UninstallOutcome
}

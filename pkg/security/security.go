// Package security implements the safety checks that gate every destructive
// skill operation: archive entry containment (zip-slip), symlink escape
// detection, hard-link detection, resource ceilings, and skill name
// validation. Each check is independent and returns either nil or a tagged
// *Error describing which invariant was violated.
package security

import (
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// Reason tags a security violation so that callers can branch on the class
// of failure without parsing messages.
type Reason string

const (
	ReasonPathTraversal  Reason = "path-traversal"
	ReasonCaseMismatch   Reason = "case-mismatch"
	ReasonSymlinkEscape  Reason = "symlink-escape"
	ReasonZipEntryEscape Reason = "zip-entry-escape"
	ReasonHardLink       Reason = "hard-link-detected"
)

// Error is a tagged security violation.
type Error struct {
	Reason Reason
	Path   string
	Detail string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "security violation (" + string(e.Reason) + "): " + e.Detail
	}
	return "security violation (" + string(e.Reason) + ") at " + e.Path + ": " + e.Detail
}

// Resource ceilings applied before any expensive work so a hostile or
// corrupted package cannot cause unbounded extraction.
const (
	// MaxTotalSize is the aggregate uncompressed size ceiling for a skill.
	MaxTotalSize int64 = 1 << 30 // 1 GiB
	// MaxFileCount is the maximum number of files a skill may contain.
	MaxFileCount = 10000
)

var namePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// MaxNameLength bounds skill names so they stay usable as directory names
// on every supported filesystem.
const MaxNameLength = 64

var reservedNames = map[string]bool{
	".":      true,
	"..":     true,
	"con":    true,
	"prn":    true,
	"aux":    true,
	"nul":    true,
	"lock":   true,
	"backup": true,
}

// ValidateSkillName checks a requested skill name before it is ever used to
// construct a filesystem path. Names containing path separators or traversal
// segments return a *Error with ReasonPathTraversal; grammar violations
// return a plain error for callers to classify as validation failures.
func ValidateSkillName(name string) error {
	if name == "" {
		return errors.New("skill name is empty")
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return &Error{Reason: ReasonPathTraversal, Path: name, Detail: "name contains path separators or traversal segments"}
	}
	if len(name) > MaxNameLength {
		return errors.Errorf("skill name exceeds %d characters", MaxNameLength)
	}
	if reservedNames[name] {
		return errors.Errorf("skill name %q is reserved", name)
	}
	if !namePattern.MatchString(name) {
		return errors.Errorf("skill name %q must be lowercase letters, digits, and single hyphens", name)
	}
	return nil
}

// CheckArchiveEntries validates the raw entry names of a package archive
// against its declared root directory. It must run before extraction; the
// archive library's own path handling is never trusted to prevent traversal.
func CheckArchiveEntries(root string, names []string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		slashed := strings.ReplaceAll(name, `\`, "/")
		if path.IsAbs(slashed) || (len(slashed) > 1 && slashed[1] == ':') {
			return &Error{Reason: ReasonZipEntryEscape, Path: name, Detail: "absolute entry path"}
		}
		cleaned := path.Clean(slashed)
		if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
			return &Error{Reason: ReasonZipEntryEscape, Path: name, Detail: "entry escapes the extraction root"}
		}
		if cleaned != root && !strings.HasPrefix(cleaned, root+"/") {
			return &Error{Reason: ReasonZipEntryEscape, Path: name, Detail: "entry resolves outside the declared root " + root}
		}
	}
	return nil
}

// CheckSymlinkEscape resolves the real path of skillDir and verifies it is
// still a descendant of scopeRoot. A skill directory that is itself a symlink
// pointing elsewhere, or that sits behind a symlinked parent, fails with
// ReasonSymlinkEscape. Resolution failures other than escape (e.g. the
// directory does not exist) are reported as ordinary errors.
func CheckSymlinkEscape(skillDir, scopeRoot string) error {
	resolvedRoot, err := filepath.EvalSymlinks(scopeRoot)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve scope root %s", scopeRoot)
	}
	resolvedSkill, err := filepath.EvalSymlinks(skillDir)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve skill directory %s", skillDir)
	}
	if !isDescendant(resolvedRoot, resolvedSkill) {
		return &Error{
			Reason: ReasonSymlinkEscape,
			Path:   skillDir,
			Detail: "resolves to " + resolvedSkill + " outside scope " + resolvedRoot,
		}
	}
	return nil
}

// CheckPathContainment verifies that target is a strict descendant of root,
// lexically, without following symlinks. It is the second defense layer run
// before any delete or overwrite, independent of CheckSymlinkEscape.
func CheckPathContainment(target, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return errors.Wrapf(err, "failed to absolutize %s", root)
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return errors.Wrapf(err, "failed to absolutize %s", target)
	}
	rel, err := filepath.Rel(absRoot, absTarget)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return &Error{
			Reason: ReasonPathTraversal,
			Path:   target,
			Detail: "not a strict descendant of " + absRoot,
		}
	}
	return nil
}

// CheckLimits enforces the resource ceilings. It runs before hard-link
// detection so the cheapest bound rejects oversized input first.
func CheckLimits(fileCount int, totalSize int64) error {
	if fileCount > MaxFileCount {
		return errors.Errorf("skill contains %d files, exceeding the limit of %d", fileCount, MaxFileCount)
	}
	if totalSize > MaxTotalSize {
		return errors.Errorf("skill size %d bytes exceeds the limit of %d bytes", totalSize, MaxTotalSize)
	}
	return nil
}

// MeasureTree walks dir and returns the number of regular files and their
// aggregate size, for limit checks against an on-disk tree.
func MeasureTree(dir string) (int, int64, error) {
	var files int
	var size int64
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			files++
			size += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, 0, errors.Wrapf(err, "failed to measure %s", dir)
	}
	return files, size, nil
}

func isDescendant(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

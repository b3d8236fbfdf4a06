// Package diff computes the file-set comparison between an installed skill
// tree and a staged package tree. The comparison is advisory: it drives
// confirmation prompts and dry-run previews and never mutates anything.
package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// FileChange records one differing file with its before/after sizes.
// BeforeSize is -1 for added files and AfterSize is -1 for removed files.
type FileChange struct {
	Path       string
	BeforeSize int64
	AfterSize  int64
	Delta      int64
}

// Comparison is the added/removed/modified file-set difference between two
// trees. Unchanged files appear in none of the lists. Derived per operation,
// never persisted.
type Comparison struct {
	Added      []FileChange
	Removed    []FileChange
	Modified   []FileChange
	SizeChange int64
}

// AddedCount returns the number of files present only in the package.
func (c *Comparison) AddedCount() int { return len(c.Added) }

// RemovedCount returns the number of files present only in the installation.
func (c *Comparison) RemovedCount() int { return len(c.Removed) }

// ModifiedCount returns the number of files present in both with differing
// content.
func (c *Comparison) ModifiedCount() int { return len(c.Modified) }

// IsEmpty reports whether the two trees are identical.
func (c *Comparison) IsEmpty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Modified) == 0
}

// Compare walks installedDir and stagedDir and classifies every relative
// path: present only in the package is added, present only in the
// installation is removed, present in both with differing content is
// modified. Files whose sizes match are compared by content hash before
// being classified as modified. Either directory may be absent, which is
// treated as an empty tree (a fresh install diffs against nothing).
func Compare(installedDir, stagedDir string) (*Comparison, error) {
	installed, err := listFiles(installedDir)
	if err != nil {
		return nil, err
	}
	staged, err := listFiles(stagedDir)
	if err != nil {
		return nil, err
	}

	comparison := &Comparison{}

	for rel, stagedSize := range staged {
		installedSize, exists := installed[rel]
		if !exists {
			comparison.Added = append(comparison.Added, FileChange{
				Path:       rel,
				BeforeSize: -1,
				AfterSize:  stagedSize,
				Delta:      stagedSize,
			})
			comparison.SizeChange += stagedSize
			continue
		}

		if installedSize == stagedSize {
			same, err := sameContent(
				filepath.Join(installedDir, rel),
				filepath.Join(stagedDir, rel),
			)
			if err != nil {
				return nil, err
			}
			if same {
				continue
			}
		}

		comparison.Modified = append(comparison.Modified, FileChange{
			Path:       rel,
			BeforeSize: installedSize,
			AfterSize:  stagedSize,
			Delta:      stagedSize - installedSize,
		})
		comparison.SizeChange += stagedSize - installedSize
	}

	for rel, installedSize := range installed {
		if _, exists := staged[rel]; !exists {
			comparison.Removed = append(comparison.Removed, FileChange{
				Path:       rel,
				BeforeSize: installedSize,
				AfterSize:  -1,
				Delta:      -installedSize,
			})
			comparison.SizeChange -= installedSize
		}
	}

	sortChanges(comparison.Added)
	sortChanges(comparison.Removed)
	sortChanges(comparison.Modified)
	return comparison, nil
}

func sortChanges(changes []FileChange) {
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
}

// listFiles maps slash-separated relative paths of regular files to their
// sizes. A missing root yields an empty map.
func listFiles(root string) (map[string]int64, error) {
	files := make(map[string]int64)
	if root == "" {
		return files, nil
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return files, nil
	}

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
		files[filepath.ToSlash(rel)] = info.Size()
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to walk %s", root)
	}
	return files, nil
}

func sameContent(a, b string) (bool, error) {
	hashA, err := hashFile(a)
	if err != nil {
		return false, err
	}
	hashB, err := hashFile(b)
	if err != nil {
		return false, err
	}
	return hashA == hashB, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open %s for hashing", path)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", errors.Wrapf(err, "failed to hash %s", path)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

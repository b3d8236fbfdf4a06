//go:build !windows

package security

import (
	"os"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
)

type inodeKey struct {
	dev uint64
	ino uint64
}

// CheckHardLinks walks dir and returns the relative paths of every regular
// file whose inode has more than one link. Such a file may alias data outside
// the skill directory, so callers treat a non-empty result as a hard failure
// unless an explicit override downgrades it to a warning. Entries are
// deduplicated by (device, inode) so a cycle of links inside the tree is
// reported once.
func CheckHardLinks(dir string) ([]string, error) {
	var flagged []string
	seen := make(map[inodeKey]bool)

	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		stat, ok := info.Sys().(*syscall.Stat_t)
		if !ok {
			return nil
		}
		if stat.Nlink <= 1 {
			return nil
		}
		key := inodeKey{dev: uint64(stat.Dev), ino: uint64(stat.Ino)}
		if seen[key] {
			return nil
		}
		seen[key] = true

		rel, relErr := filepath.Rel(dir, p)
		if relErr != nil {
			rel = p
		}
		flagged = append(flagged, rel)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to scan %s for hard links", dir)
	}
	return flagged, nil
}

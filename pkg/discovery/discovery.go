// Package discovery lists installed skills under a scope directory. Listing
// takes no lock and may observe a skill mid-update; that weak consistency is
// an accepted trade-off of the read path.
package discovery

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillkit/pkg/skill"
)

// IgnoreFileName is the optional per-scope ignore file consulted during
// nested discovery. One glob pattern per line; blank lines and #-comments
// are skipped.
const IgnoreFileName = ".skillkitignore"

// Directories never descended into during nested discovery.
var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// Lister discovers installed skills.
type Lister struct {
	nested  bool
	ignores []glob.Glob
}

// Option configures a Lister.
type Option func(*Lister) error

// WithNested enables walking nested subdirectories instead of only the
// scope's immediate children.
func WithNested() Option {
	return func(l *Lister) error {
		l.nested = true
		return nil
	}
}

// WithIgnorePatterns adds glob patterns for directories nested discovery
// should not descend into.
func WithIgnorePatterns(patterns ...string) Option {
	return func(l *Lister) error {
		for _, pattern := range patterns {
			g, err := glob.Compile(pattern, '/')
			if err != nil {
				return errors.Wrapf(err, "invalid ignore pattern %q", pattern)
			}
			l.ignores = append(l.ignores, g)
		}
		return nil
	}
}

// NewLister creates a skill lister.
func NewLister(opts ...Option) (*Lister, error) {
	l := &Lister{}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// List returns the skills installed under scopeDir, sorted by name. A
// missing scope directory yields an empty list. Directories without a
// loadable manifest are skipped, not errors; a listing should never fail
// because one skill is broken.
func (l *Lister) List(scopeDir string) ([]*skill.Skill, error) {
	if _, err := os.Stat(scopeDir); os.IsNotExist(err) {
		return nil, nil
	}

	var skills []*skill.Skill
	if l.nested {
		ignores, err := l.scopeIgnores(scopeDir)
		if err != nil {
			return nil, err
		}

		err = filepath.Walk(scopeDir, func(p string, info os.FileInfo, err error) error {
			if err != nil || !info.IsDir() {
				return nil
			}
			if p == scopeDir {
				return nil
			}
			if skippedDirs[info.Name()] {
				return filepath.SkipDir
			}

			rel, relErr := filepath.Rel(scopeDir, p)
			if relErr != nil {
				return nil
			}
			if matchesAny(ignores, filepath.ToSlash(rel)) {
				return filepath.SkipDir
			}

			if s, loadErr := skill.Load(p); loadErr == nil {
				skills = append(skills, s)
				return filepath.SkipDir
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to walk %s", scopeDir)
		}
	} else {
		entries, err := os.ReadDir(scopeDir)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", scopeDir)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if s, loadErr := skill.Load(filepath.Join(scopeDir, entry.Name())); loadErr == nil {
				skills = append(skills, s)
			}
		}
	}

	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills, nil
}

// scopeIgnores merges configured patterns with the scope's ignore file.
func (l *Lister) scopeIgnores(scopeDir string) ([]glob.Glob, error) {
	ignores := l.ignores

	f, err := os.Open(filepath.Join(scopeDir, IgnoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return ignores, nil
		}
		return nil, errors.Wrapf(err, "failed to open %s", IgnoreFileName)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		g, err := glob.Compile(line, '/')
		if err != nil {
			return nil, errors.Wrapf(err, "invalid pattern %q in %s", line, IgnoreFileName)
		}
		ignores = append(ignores, g)
	}
	return ignores, scanner.Err()
}

func matchesAny(ignores []glob.Glob, rel string) bool {
	for _, g := range ignores {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

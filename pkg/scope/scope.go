// Package scope maps the logical install location of a skill (project-local,
// personal, or an explicit custom path) to an absolute directory.
package scope

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies where skills live.
type Kind string

const (
	// Project installs into ./.skillkit/skills relative to the working directory.
	Project Kind = "project"
	// Personal installs into ~/.skillkit/skills.
	Personal Kind = "personal"
	// Custom installs into an explicit caller-provided directory.
	Custom Kind = "custom"
)

const skillsSubdir = ".skillkit/skills"

// Scope is an immutable resolved install location. It is recomputed per
// invocation; nothing is persisted.
type Scope struct {
	Kind Kind
	Path string
}

func (s Scope) String() string {
	return string(s.Kind) + " (" + s.Path + ")"
}

// Resolver resolves scope selectors. The zero value uses the process working
// directory and the user home directory; both can be overridden for tests.
type Resolver struct {
	WorkDir string
	HomeDir string
}

// Resolve maps a selector to a Scope. "project" and "personal" are the two
// logical scopes; any other non-empty selector is treated as a custom path,
// tilde-expanded and resolved against the working directory when relative.
// The returned directory may not exist yet; writability is checked separately
// by ValidateDir before any mutation commits to it.
func (r *Resolver) Resolve(selector string) (Scope, error) {
	switch selector {
	case "", string(Project):
		workDir, err := r.workDir()
		if err != nil {
			return Scope{}, err
		}
		return Scope{Kind: Project, Path: filepath.Join(workDir, skillsSubdir)}, nil

	case string(Personal):
		homeDir, err := r.homeDir()
		if err != nil {
			return Scope{}, err
		}
		return Scope{Kind: Personal, Path: filepath.Join(homeDir, skillsSubdir)}, nil

	default:
		expanded, err := r.expandTilde(selector)
		if err != nil {
			return Scope{}, err
		}
		if !filepath.IsAbs(expanded) {
			workDir, err := r.workDir()
			if err != nil {
				return Scope{}, err
			}
			expanded = filepath.Join(workDir, expanded)
		}
		return Scope{Kind: Custom, Path: filepath.Clean(expanded)}, nil
	}
}

// ValidateDir verifies that dir exists, is a directory, and is writable.
func ValidateDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", dir)
	}
	if !info.IsDir() {
		return errors.Errorf("%s is not a directory", dir)
	}

	probe, err := os.CreateTemp(dir, ".skillkit-write-probe-*")
	if err != nil {
		return errors.Wrapf(err, "directory %s is not writable", dir)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}

// EnsureDir creates dir (and parents) if missing, then validates writability.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}
	return ValidateDir(dir)
}

func (r *Resolver) workDir() (string, error) {
	if r.WorkDir != "" {
		return r.WorkDir, nil
	}
	workDir, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "failed to get working directory")
	}
	return workDir, nil
}

func (r *Resolver) homeDir() (string, error) {
	if r.HomeDir != "" {
		return r.HomeDir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get user home directory")
	}
	return homeDir, nil
}

func (r *Resolver) expandTilde(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	homeDir, err := r.homeDir()
	if err != nil {
		return "", err
	}
	if p == "~" {
		return homeDir, nil
	}
	return filepath.Join(homeDir, p[2:]), nil
}

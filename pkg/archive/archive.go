// Package archive reads and writes .skill package archives. A package is a
// zip container whose entries all share exactly one top-level directory named
// after the skill, with a SKILL.md manifest at that directory's root. The
// same writer backs both the pack command and pre-mutation backups.
package archive

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Extension is the file extension of skill package archives.
const Extension = ".skill"

// Entry describes a single archive entry with the shared root prefix
// stripped. Paths are slash-separated.
type Entry struct {
	Path  string
	Size  int64
	IsDir bool
}

// Reader is an open handle over a package archive. It is owned by the single
// pipeline invocation that opened it and must be closed by that invocation.
type Reader struct {
	path    string
	zr      *zip.ReadCloser
	root    string
	entries []Entry
}

// Open opens a package archive. A file that cannot be parsed as a zip
// archive fails with a structural error; layout rules are checked separately
// by ValidateStructure.
func Open(archivePath string) (*Reader, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open package archive %s", archivePath)
	}
	return &Reader{path: archivePath, zr: zr}, nil
}

// Close releases the underlying zip handle.
func (r *Reader) Close() error {
	return r.zr.Close()
}

// Path returns the archive file path.
func (r *Reader) Path() string {
	return r.path
}

// RawNames returns the unmodified entry names as stored in the archive, for
// containment checks that must run before any extraction.
func (r *Reader) RawNames() []string {
	names := make([]string, 0, len(r.zr.File))
	for _, f := range r.zr.File {
		names = append(names, f.Name)
	}
	return names
}

// ValidateStructure enforces the package layout: at least one entry, exactly
// one shared top-level directory, and a SKILL.md at that directory's root.
// On success the shared root and the root-stripped entry list are available
// via Root and Entries.
func (r *Reader) ValidateStructure() error {
	if len(r.zr.File) == 0 {
		return errors.Errorf("package %s is empty", r.path)
	}

	root := ""
	for _, f := range r.zr.File {
		name := strings.TrimSuffix(f.Name, "/")
		if name == "" {
			continue
		}
		top := name
		if idx := strings.Index(name, "/"); idx >= 0 {
			top = name[:idx]
		}
		if root == "" {
			root = top
		} else if top != root {
			return errors.Errorf("package must have exactly one top-level directory, found %q and %q", root, top)
		}
	}
	if root == "" {
		return errors.Errorf("package %s has no top-level directory", r.path)
	}

	manifestPath := root + "/SKILL.md"
	hasManifest := false
	var entries []Entry
	for _, f := range r.zr.File {
		if f.Name == manifestPath && !f.FileInfo().IsDir() {
			hasManifest = true
		}

		rel := strings.TrimPrefix(strings.TrimSuffix(f.Name, "/"), root)
		rel = strings.TrimPrefix(rel, "/")
		if rel == "" {
			continue
		}
		entries = append(entries, Entry{
			Path:  rel,
			Size:  int64(f.UncompressedSize64),
			IsDir: f.FileInfo().IsDir(),
		})
	}
	if !hasManifest {
		return errors.Errorf("package is missing SKILL.md at %s", manifestPath)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	r.root = root
	r.entries = entries
	return nil
}

// Root returns the shared top-level directory name. Valid after
// ValidateStructure.
func (r *Reader) Root() string {
	return r.root
}

// Entries returns the root-stripped entry list. Valid after
// ValidateStructure.
func (r *Reader) Entries() []Entry {
	return r.entries
}

// FileCount returns the number of regular file entries.
func (r *Reader) FileCount() int {
	count := 0
	for _, e := range r.entries {
		if !e.IsDir {
			count++
		}
	}
	return count
}

// TotalSize returns the aggregate uncompressed size of all file entries.
func (r *Reader) TotalSize() int64 {
	var total int64
	for _, e := range r.entries {
		if !e.IsDir {
			total += e.Size
		}
	}
	return total
}

// ExtractToTemp extracts the archive contents, with the shared root prefix
// stripped, into a fresh temporary staging directory. The caller owns the
// returned cleanup function and must invoke it on every exit path. Every
// destination path is re-checked for containment inside the staging
// directory before a single byte is written.
func (r *Reader) ExtractToTemp() (string, func(), error) {
	if r.root == "" {
		return "", nil, errors.New("archive structure not validated")
	}

	stagingDir, err := os.MkdirTemp("", "skillkit-staging-*")
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to create staging directory")
	}
	cleanup := func() { os.RemoveAll(stagingDir) }

	for _, f := range r.zr.File {
		rel := strings.TrimPrefix(strings.TrimSuffix(f.Name, "/"), r.root)
		rel = strings.TrimPrefix(rel, "/")
		if rel == "" {
			continue
		}

		dest := filepath.Join(stagingDir, filepath.FromSlash(rel))
		if !strings.HasPrefix(dest, stagingDir+string(filepath.Separator)) {
			cleanup()
			return "", nil, errors.Errorf("entry %s escapes the staging directory", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				cleanup()
				return "", nil, errors.Wrapf(err, "failed to create directory %s", rel)
			}
			continue
		}

		if err := extractFile(f, dest); err != nil {
			cleanup()
			return "", nil, errors.Wrapf(err, "failed to extract %s", f.Name)
		}
	}

	return stagingDir, cleanup, nil
}

func extractFile(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

// Create writes a package archive of srcDir at archivePath, placing every
// entry under rootName. Returns the file count and aggregate size archived.
func Create(archivePath, srcDir, rootName string) (int, int64, error) {
	out, err := os.Create(archivePath)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "failed to create archive %s", archivePath)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	var fileCount int
	var totalSize int64
	err = filepath.Walk(srcDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		entryName := path.Join(rootName, filepath.ToSlash(rel))
		if info.IsDir() {
			_, err := zw.Create(entryName + "/")
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = entryName
		header.Method = zip.Deflate

		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}

		in, err := os.Open(p)
		if err != nil {
			return err
		}
		defer in.Close()

		n, err := io.Copy(w, in)
		if err != nil {
			return err
		}

		fileCount++
		totalSize += n
		return nil
	})
	if err != nil {
		zw.Close()
		os.Remove(archivePath)
		return 0, 0, errors.Wrapf(err, "failed to archive %s", srcDir)
	}

	if err := zw.Close(); err != nil {
		os.Remove(archivePath)
		return 0, 0, errors.Wrap(err, "failed to finalize archive")
	}
	return fileCount, totalSize, nil
}

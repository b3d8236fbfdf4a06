package operations

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillkit/pkg/archive"
	"github.com/jingkaihe/skillkit/pkg/logger"
	"github.com/jingkaihe/skillkit/pkg/security"
	"github.com/jingkaihe/skillkit/pkg/skill"
)

// stagedPackage is a validated package extracted to a staging directory.
// close must be called on every exit path.
type stagedPackage struct {
	name       string
	stagingDir string
	fileCount  int
	size       int64

	reader  *archive.Reader
	cleanup func()
}

func (s *stagedPackage) close() {
	if s.cleanup != nil {
		s.cleanup()
	}
	if s.reader != nil {
		s.reader.Close()
	}
}

// stagePackage runs the package half of the Validate and Security phases:
// extension, openability, single-root structure, raw entry containment,
// resource ceilings, extraction to a fresh staging directory, and manifest
// agreement with the root directory name.
func (p *Pipeline) stagePackage(ctx context.Context, packagePath string) (*stagedPackage, error) {
	if !strings.HasSuffix(packagePath, archive.Extension) {
		return nil, &ValidationError{Field: "package", Message: "package file must have the " + archive.Extension + " extension"}
	}
	if _, err := os.Stat(packagePath); err != nil {
		if os.IsNotExist(err) {
			return nil, &ValidationError{Field: "package", Message: "package file does not exist: " + packagePath}
		}
		return nil, fsErr("stat package", packagePath, err)
	}

	reader, err := archive.Open(packagePath)
	if err != nil {
		return nil, &ValidationError{Field: "package", Message: err.Error()}
	}

	if err := reader.ValidateStructure(); err != nil {
		reader.Close()
		return nil, &ValidationError{Field: "package", Message: err.Error()}
	}
	name := reader.Root()

	if err := validateName(name); err != nil {
		reader.Close()
		return nil, err
	}

	// Containment runs against the raw entry names before a single byte is
	// extracted; the zip library's own path handling is not trusted.
	if err := security.CheckArchiveEntries(name, reader.RawNames()); err != nil {
		reader.Close()
		return nil, err
	}

	if err := security.CheckLimits(reader.FileCount(), reader.TotalSize()); err != nil {
		reader.Close()
		return nil, &ValidationError{Field: "package", Message: err.Error()}
	}

	stagingDir, cleanup, err := reader.ExtractToTemp()
	if err != nil {
		reader.Close()
		return nil, fsErr("extract package", packagePath, err)
	}

	staged := &stagedPackage{
		name:       name,
		stagingDir: stagingDir,
		fileCount:  reader.FileCount(),
		size:       reader.TotalSize(),
		reader:     reader,
		cleanup:    cleanup,
	}

	content, err := os.ReadFile(filepath.Join(stagingDir, skill.ManifestFileName))
	if err != nil {
		staged.close()
		return nil, &ValidationError{Field: "manifest", Message: "failed to read " + skill.ManifestFileName + ": " + err.Error()}
	}
	manifest, issues, err := skill.ParseManifest(content)
	if err != nil {
		staged.close()
		return nil, &ValidationError{Field: "manifest", Message: err.Error()}
	}
	if len(issues) > 0 {
		var merged *multierror.Error
		for _, issue := range issues {
			merged = multierror.Append(merged, errors.New(issue.String()))
		}
		staged.close()
		return nil, &ValidationError{Field: "manifest", Message: merged.Error()}
	}
	if manifest.Name != name {
		staged.close()
		return nil, &PackageMismatchError{PackageName: name, ManifestName: manifest.Name}
	}

	logger.G(ctx).WithField("package", packagePath).WithField("files", staged.fileCount).Debug("Staged package")
	return staged, nil
}

// wrapUnknown keeps unclassified errors from escaping without context.
func wrapUnknown(err error, operation string) error {
	switch err.(type) {
	case *ValidationError, *NotFoundError, *FilesystemError, *PackageMismatchError,
		*BackupError, *RollbackError, *CriticalError, *TimeoutError, *security.Error:
		return err
	}
	var secErr *security.Error
	if errors.As(err, &secErr) {
		return err
	}
	return errors.Wrapf(err, "%s failed", operation)
}

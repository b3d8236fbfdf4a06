package operations

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillkit/pkg/scope"
	"github.com/jingkaihe/skillkit/pkg/security"
)

func TestInstallFreshSkill(t *testing.T) {
	p := testPipeline(t)
	sc := testScope(t)
	pkg := buildPackage(t, "code-review", map[string]string{
		"prompts/review.md": "review the diff",
	})

	outcome, err := p.Install(context.Background(), InstallRequest{
		PackagePath: pkg,
		Scope:       sc,
	})
	require.NoError(t, err)

	installed, ok := outcome.(Installed)
	require.True(t, ok, "expected Installed, got %T", outcome)
	assert.Equal(t, "code-review", installed.Name)
	assert.Equal(t, filepath.Join(sc.Path, "code-review"), installed.Path)
	assert.Equal(t, 2, installed.FileCount)
	assert.False(t, installed.Backup.Created)

	data, err := os.ReadFile(filepath.Join(installed.Path, "prompts", "review.md"))
	require.NoError(t, err)
	assert.Equal(t, "review the diff", string(data))
	assert.FileExists(t, filepath.Join(installed.Path, "SKILL.md"))
}

func TestInstallCreatesMissingScopeDirectory(t *testing.T) {
	p := testPipeline(t)
	sc := scope.Scope{Kind: scope.Custom, Path: filepath.Join(t.TempDir(), "deep", "nested", "skills")}
	pkg := buildPackage(t, "code-review", nil)

	outcome, err := p.Install(context.Background(), InstallRequest{
		PackagePath: pkg,
		Scope:       sc,
	})
	require.NoError(t, err)

	installed, ok := outcome.(Installed)
	require.True(t, ok, "expected Installed, got %T", outcome)
	assert.DirExists(t, sc.Path)
	assert.FileExists(t, filepath.Join(installed.Path, "SKILL.md"))
}

func TestInstallConflictRequiresForce(t *testing.T) {
	p := testPipeline(t)
	sc := testScope(t)
	installSkill(t, sc, "code-review", map[string]string{"old.txt": "old"})
	pkg := buildPackage(t, "code-review", nil)

	outcome, err := p.Install(context.Background(), InstallRequest{
		PackagePath: pkg,
		Scope:       sc,
	})
	require.NoError(t, err)

	required, ok := outcome.(OverwriteRequired)
	require.True(t, ok, "expected OverwriteRequired, got %T", outcome)
	assert.Equal(t, "code-review", required.Name)

	// The existing installation is untouched.
	assert.FileExists(t, filepath.Join(sc.Path, "code-review", "old.txt"))
}

func TestInstallForceOverwritesAndBacksUp(t *testing.T) {
	p := testPipeline(t)
	sc := testScope(t)
	installSkill(t, sc, "code-review", map[string]string{"old.txt": "old"})
	pkg := buildPackage(t, "code-review", map[string]string{"new.txt": "new"})

	outcome, err := p.Install(context.Background(), InstallRequest{
		PackagePath: pkg,
		Scope:       sc,
		Force:       true,
		KeepBackup:  true,
	})
	require.NoError(t, err)

	installed, ok := outcome.(Installed)
	require.True(t, ok, "expected Installed, got %T", outcome)
	require.True(t, installed.Backup.Created)
	assert.FileExists(t, installed.Backup.Path)

	assert.FileExists(t, filepath.Join(installed.Path, "new.txt"))
	assert.NoFileExists(t, filepath.Join(installed.Path, "old.txt"))
}

func TestInstallForceRemovesTransientBackup(t *testing.T) {
	p := testPipeline(t)
	sc := testScope(t)
	installSkill(t, sc, "code-review", nil)
	pkg := buildPackage(t, "code-review", nil)

	outcome, err := p.Install(context.Background(), InstallRequest{
		PackagePath: pkg,
		Scope:       sc,
		Force:       true,
	})
	require.NoError(t, err)

	installed, ok := outcome.(Installed)
	require.True(t, ok)
	require.True(t, installed.Backup.Created)
	assert.NoFileExists(t, installed.Backup.Path)
}

func TestInstallDryRunDoesNotMutate(t *testing.T) {
	p := testPipeline(t)
	sc := testScope(t)
	existing := installSkill(t, sc, "code-review", map[string]string{"old.txt": "old"})
	before := treeSnapshot(t, sc.Path)
	pkg := buildPackage(t, "code-review", map[string]string{"new.txt": "new"})

	outcome, err := p.Install(context.Background(), InstallRequest{
		PackagePath: pkg,
		Scope:       sc,
		Force:       true,
		DryRun:      true,
	})
	require.NoError(t, err)

	preview, ok := outcome.(Preview)
	require.True(t, ok, "expected Preview, got %T", outcome)
	assert.Equal(t, "install", preview.Operation)
	assert.Equal(t, "code-review", preview.Name)
	assert.NotEmpty(t, preview.PlannedBackup)
	assert.NoFileExists(t, preview.PlannedBackup)

	assert.Equal(t, before, treeSnapshot(t, sc.Path))
	assert.DirExists(t, existing)
}

func TestInstallCancelledByConfirmer(t *testing.T) {
	p := testPipeline(t)
	sc := testScope(t)
	pkg := buildPackage(t, "code-review", nil)

	decline := func(ctx context.Context, prompt string) (bool, error) {
		return false, nil
	}
	outcome, err := p.Install(context.Background(), InstallRequest{
		PackagePath: pkg,
		Scope:       sc,
		Confirm:     decline,
	})
	require.NoError(t, err)

	cancelled, ok := outcome.(Cancelled)
	require.True(t, ok, "expected Cancelled, got %T", outcome)
	assert.Equal(t, "install", cancelled.Operation)
	assert.NoDirExists(t, filepath.Join(sc.Path, "code-review"))
	assert.False(t, p.Locks.HasLock(filepath.Join(sc.Path, "code-review")))
}

func TestInstallRejectsBadExtension(t *testing.T) {
	p := testPipeline(t)
	sc := testScope(t)

	bad := filepath.Join(t.TempDir(), "code-review.zip")
	require.NoError(t, os.WriteFile(bad, []byte("not a skill"), 0o644))

	_, err := p.Install(context.Background(), InstallRequest{PackagePath: bad, Scope: sc})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "package", validation.Field)
}

func TestInstallRejectsMissingPackage(t *testing.T) {
	p := testPipeline(t)
	sc := testScope(t)

	_, err := p.Install(context.Background(), InstallRequest{
		PackagePath: filepath.Join(t.TempDir(), "absent.skill"),
		Scope:       sc,
	})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, validation.Message, "does not exist")
}

func TestInstallRejectsEscapingZipEntry(t *testing.T) {
	p := testPipeline(t)
	sc := testScope(t)
	pkg := buildRawPackage(t, map[string]string{
		"pkg/SKILL.md":            manifestFor("pkg"),
		"pkg/../../../etc/passwd": "root:x:0:0",
	})

	_, err := p.Install(context.Background(), InstallRequest{PackagePath: pkg, Scope: sc})
	var secErr *security.Error
	require.ErrorAs(t, err, &secErr)
	assert.Equal(t, security.ReasonZipEntryEscape, secErr.Reason)
	assert.NoDirExists(t, filepath.Join(sc.Path, "pkg"))
}

func TestInstallRejectsMultiRootPackage(t *testing.T) {
	p := testPipeline(t)
	sc := testScope(t)
	pkg := buildRawPackage(t, map[string]string{
		"one/SKILL.md": manifestFor("one"),
		"two/SKILL.md": manifestFor("two"),
	})

	_, err := p.Install(context.Background(), InstallRequest{PackagePath: pkg, Scope: sc})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestInstallRejectsManifestNameMismatch(t *testing.T) {
	p := testPipeline(t)
	sc := testScope(t)
	pkg := buildPackage(t, "code-review", map[string]string{
		"SKILL.md": manifestFor("something-else"),
	})

	_, err := p.Install(context.Background(), InstallRequest{PackagePath: pkg, Scope: sc})
	var mismatch *PackageMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "code-review", mismatch.PackageName)
	assert.Equal(t, "something-else", mismatch.ManifestName)
}

func TestInstallRejectsHeldLock(t *testing.T) {
	p := testPipeline(t)
	sc := testScope(t)
	pkg := buildPackage(t, "code-review", nil)

	require.NoError(t, os.MkdirAll(sc.Path, 0o755))
	target := filepath.Join(sc.Path, "code-review")
	held, err := p.Locks.Acquire(target, "update", "")
	require.NoError(t, err)
	defer p.Locks.Release(held)

	_, err = p.Install(context.Background(), InstallRequest{PackagePath: pkg, Scope: sc})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, validation.Message, "currently being updated")
}

func TestDiscoverCaseConflictIsSecurityError(t *testing.T) {
	sc := testScope(t)
	installSkill(t, sc, "code-review", nil)

	_, _, err := discoverInstalled(sc.Path, "code-Review")
	var secErr *security.Error
	require.ErrorAs(t, err, &secErr)
	assert.Equal(t, security.ReasonCaseMismatch, secErr.Reason)
}

func TestCheckHardLinksOverride(t *testing.T) {
	skillDir := filepath.Join(t.TempDir(), "linked")
	require.NoError(t, os.MkdirAll(skillDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(manifestFor("linked")), 0o644))
	original := filepath.Join(skillDir, "a.txt")
	require.NoError(t, os.WriteFile(original, []byte("x"), 0o644))
	if err := os.Link(original, filepath.Join(skillDir, "b.txt")); err != nil {
		t.Skipf("hard links unsupported: %v", err)
	}

	_, err := checkHardLinks(skillDir, false)
	var secErr *security.Error
	require.ErrorAs(t, err, &secErr)
	assert.Equal(t, security.ReasonHardLink, secErr.Reason)

	warnings, err := checkHardLinks(skillDir, true)
	require.NoError(t, err)
	assert.NotEmpty(t, warnings)
}

func TestInstallOverwriteChecksInstalledHardLinks(t *testing.T) {
	p := testPipeline(t)
	sc := testScope(t)
	installedPath := installSkill(t, sc, "code-review", map[string]string{"a.txt": "x"})
	if err := os.Link(filepath.Join(installedPath, "a.txt"), filepath.Join(installedPath, "b.txt")); err != nil {
		t.Skipf("hard links unsupported: %v", err)
	}
	pkg := buildPackage(t, "code-review", nil)

	_, err := p.Install(context.Background(), InstallRequest{
		PackagePath: pkg,
		Scope:       sc,
		Force:       true,
	})
	var secErr *security.Error
	require.ErrorAs(t, err, &secErr)
	assert.Equal(t, security.ReasonHardLink, secErr.Reason)

	// The existing installation is untouched.
	assert.FileExists(t, filepath.Join(installedPath, "b.txt"))

	outcome, err := p.Install(context.Background(), InstallRequest{
		PackagePath:    pkg,
		Scope:          sc,
		Force:          true,
		AllowHardLinks: true,
	})
	require.NoError(t, err)
	installed, ok := outcome.(Installed)
	require.True(t, ok, "expected Installed, got %T", outcome)
	require.NotEmpty(t, installed.Warnings)
	assert.Contains(t, installed.Warnings[0], "hard link detected")
}

func TestInstallNoBackupSkipsArchive(t *testing.T) {
	p := testPipeline(t)
	sc := testScope(t)
	installSkill(t, sc, "code-review", nil)
	pkg := buildPackage(t, "code-review", nil)

	outcome, err := p.Install(context.Background(), InstallRequest{
		PackagePath: pkg,
		Scope:       sc,
		Force:       true,
		NoBackup:    true,
	})
	require.NoError(t, err)

	installed, ok := outcome.(Installed)
	require.True(t, ok)
	assert.False(t, installed.Backup.Created)

	entries, err := os.ReadDir(p.Backups.Root())
	if err == nil {
		assert.Empty(t, entries)
	}
}

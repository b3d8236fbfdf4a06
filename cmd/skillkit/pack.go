package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillkit/pkg/archive"
	"github.com/jingkaihe/skillkit/pkg/presenter"
	"github.com/jingkaihe/skillkit/pkg/security"
	"github.com/jingkaihe/skillkit/pkg/skill"
)

var packCmd = &cobra.Command{
	Use:   "pack <skill-dir>",
	Short: "Build a .skill package from a skill directory",
	Long: `Build a distributable .skill package from a skill directory. The
directory name becomes the skill name and must match the name declared in
SKILL.md. The same name and size rules enforced at install time are
enforced here, so a packed skill is guaranteed to install cleanly.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		srcDir, err := filepath.Abs(args[0])
		if err != nil {
			return errors.Wrap(err, "failed to resolve skill directory")
		}
		name := filepath.Base(srcDir)

		if err := security.ValidateSkillName(name); err != nil {
			return errors.Wrapf(err, "invalid skill name %q", name)
		}
		info, err := os.Stat(srcDir)
		if err != nil {
			return errors.Wrap(err, "failed to stat skill directory")
		}
		if !info.IsDir() {
			return errors.Errorf("%s is not a directory", srcDir)
		}

		manifest, err := skill.LoadManifest(srcDir)
		if err != nil {
			return errors.Wrap(err, "invalid manifest")
		}
		if manifest.Name != name {
			return errors.Errorf("manifest declares name %q but the directory is named %q", manifest.Name, name)
		}

		fileCount, totalSize, err := security.MeasureTree(srcDir)
		if err != nil {
			return errors.Wrap(err, "failed to measure skill directory")
		}
		if err := security.CheckLimits(fileCount, totalSize); err != nil {
			return err
		}
		if flagged, err := security.CheckHardLinks(srcDir); err != nil {
			return err
		} else if len(flagged) > 0 {
			return errors.Errorf("refusing to pack: %s has multiple hard links", flagged[0])
		}

		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = name + archive.Extension
		}

		packedFiles, packedSize, err := archive.Create(output, srcDir, name)
		if err != nil {
			return errors.Wrap(err, "failed to create package")
		}

		presenter.Success(fmt.Sprintf("Packed %q to %s (%d files, %d bytes)", name, output, packedFiles, packedSize))
		return nil
	},
}

func init() {
	packCmd.Flags().StringP("output", "o", "", "Output path for the package (default <name>.skill)")
}

package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillkit/pkg/operations"
	"github.com/jingkaihe/skillkit/pkg/presenter"
	"github.com/jingkaihe/skillkit/pkg/scope"
)

type InstallConfig struct {
	Scope          string
	Force          bool
	DryRun         bool
	NoBackup       bool
	KeepBackup     bool
	AllowHardLinks bool
}

func NewInstallConfig() *InstallConfig {
	return &InstallConfig{
		Scope: "project",
	}
}

var installCmd = &cobra.Command{
	Use:   "install <package.skill>",
	Short: "Install a skill from a .skill package",
	Long: `Install a skill from a .skill package into the selected scope.
The package is validated and extracted to a staging area first; the skill
directory is only written after all security checks pass. Installing over
an existing skill requires --force and takes a backup before overwriting.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getInstallConfigFromFlags(cmd)

		resolver := &scope.Resolver{}
		sc, err := resolver.Resolve(config.Scope)
		if err != nil {
			presenter.Error(err, "Failed to resolve scope")
			os.Exit(exitUsage)
		}

		pipeline := operations.New()
		outcome, err := pipeline.Install(ctx, operations.InstallRequest{
			PackagePath:    args[0],
			Scope:          sc,
			Force:          config.Force,
			DryRun:         config.DryRun,
			NoBackup:       config.NoBackup,
			KeepBackup:     config.KeepBackup,
			AllowHardLinks: config.AllowHardLinks,
			Confirm:        terminalConfirmer(),
		})
		if err != nil {
			presenter.Error(err, "Install failed")
			os.Exit(exitCodeFor(err))
		}

		switch o := outcome.(type) {
		case operations.Installed:
			renderWarnings(o.Warnings)
			presenter.Success(fmt.Sprintf("Installed %q to %s (%d files, %d bytes)", o.Name, o.Path, o.FileCount, o.Size))
			renderBackup(o.Backup, config.KeepBackup)
		case operations.Preview:
			renderPreview(o)
		case operations.OverwriteRequired:
			presenter.Error(errors.Errorf("skill %q is already installed at %s", o.Name, o.ExistingPath),
				"Pass --force to overwrite the existing installation")
			os.Exit(exitUsage)
		case operations.Cancelled:
			presenter.Info("Install cancelled")
			os.Exit(exitUsage)
		}
	},
}

func getInstallConfigFromFlags(cmd *cobra.Command) *InstallConfig {
	config := NewInstallConfig()

	if scopeFlag, err := cmd.Flags().GetString("scope"); err == nil {
		config.Scope = scopeFlag
	}
	if force, err := cmd.Flags().GetBool("force"); err == nil {
		config.Force = force
	}
	if dryRun, err := cmd.Flags().GetBool("dry-run"); err == nil {
		config.DryRun = dryRun
	}
	if noBackup, err := cmd.Flags().GetBool("no-backup"); err == nil {
		config.NoBackup = noBackup
	}
	if keepBackup, err := cmd.Flags().GetBool("keep-backup"); err == nil {
		config.KeepBackup = keepBackup
	}
	if allowHardLinks, err := cmd.Flags().GetBool("allow-hard-links"); err == nil {
		config.AllowHardLinks = allowHardLinks
	}

	return config
}

func init() {
	installCmd.Flags().StringP("scope", "s", "project", "Install scope: project, personal, or a directory path")
	installCmd.Flags().BoolP("force", "f", false, "Overwrite an existing installation without prompting")
	installCmd.Flags().Bool("dry-run", false, "Show what would change without writing anything")
	installCmd.Flags().Bool("no-backup", false, "Skip the pre-overwrite backup")
	installCmd.Flags().Bool("keep-backup", false, "Retain the backup after a successful install")
	installCmd.Flags().Bool("allow-hard-links", false, "Downgrade hard-link findings to warnings")
}

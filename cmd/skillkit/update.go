package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillkit/pkg/operations"
	"github.com/jingkaihe/skillkit/pkg/presenter"
	"github.com/jingkaihe/skillkit/pkg/scope"
)

type UpdateConfig struct {
	Scope          string
	Force          bool
	DryRun         bool
	NoBackup       bool
	KeepBackup     bool
	AllowHardLinks bool
}

func NewUpdateConfig() *UpdateConfig {
	return &UpdateConfig{
		Scope: "project",
	}
}

var updateCmd = &cobra.Command{
	Use:   "update <package.skill>",
	Short: "Update an installed skill from a .skill package",
	Long: `Update an existing skill installation from a .skill package.
The skill must already be installed in the selected scope. A backup is
taken before the installed files are replaced; if the replacement fails
the backup is restored automatically.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getUpdateConfigFromFlags(cmd)

		resolver := &scope.Resolver{}
		sc, err := resolver.Resolve(config.Scope)
		if err != nil {
			presenter.Error(err, "Failed to resolve scope")
			os.Exit(exitUsage)
		}

		pipeline := operations.New()
		outcome, err := pipeline.Update(ctx, operations.UpdateRequest{
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
			presenter.Error(err, "Update failed")
			os.Exit(exitCodeFor(err))
		}

		switch o := outcome.(type) {
		case operations.Updated:
			renderWarnings(o.Warnings)
			presenter.Success(fmt.Sprintf("Updated %q at %s", o.Name, o.Path))
			renderComparison(o.Comparison)
			renderBackup(o.Backup, config.KeepBackup)
		case operations.Preview:
			renderPreview(o)
		case operations.Cancelled:
			presenter.Info("Update cancelled")
			os.Exit(exitUsage)
		}
	},
}

func getUpdateConfigFromFlags(cmd *cobra.Command) *UpdateConfig {
	config := NewUpdateConfig()

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
	updateCmd.Flags().StringP("scope", "s", "project", "Install scope: project, personal, or a directory path")
	updateCmd.Flags().BoolP("force", "f", false, "Apply the update without prompting")
	updateCmd.Flags().Bool("dry-run", false, "Show the file-level diff without writing anything")
	updateCmd.Flags().Bool("no-backup", false, "Skip the pre-update backup")
	updateCmd.Flags().Bool("keep-backup", false, "Retain the backup after a successful update")
	updateCmd.Flags().Bool("allow-hard-links", false, "Downgrade hard-link findings to warnings")
}

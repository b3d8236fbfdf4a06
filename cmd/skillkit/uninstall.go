package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillkit/pkg/operations"
	"github.com/jingkaihe/skillkit/pkg/presenter"
	"github.com/jingkaihe/skillkit/pkg/scope"
)

type UninstallConfig struct {
	Scope          string
	Force          bool
	DryRun         bool
	NoBackup       bool
	AllowHardLinks bool
}

func NewUninstallConfig() *UninstallConfig {
	return &UninstallConfig{
		Scope: "project",
	}
}

var uninstallCmd = &cobra.Command{
	Use:     "uninstall <name>...",
	Aliases: []string{"remove", "rm"},
	Short:   "Remove one or more installed skills",
	Long: `Remove installed skills by name from the selected scope. A backup
archive of each removed skill is written first and always retained; it is
the only remaining copy once the directory is gone. Missing names are
reported but do not abort the rest of the batch.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getUninstallConfigFromFlags(cmd)

		resolver := &scope.Resolver{}
		sc, err := resolver.Resolve(config.Scope)
		if err != nil {
			presenter.Error(err, "Failed to resolve scope")
			os.Exit(exitUsage)
		}

		pipeline := operations.New()
		base := operations.UninstallRequest{
			Scope:          sc,
			Force:          config.Force,
			DryRun:         config.DryRun,
			NoBackup:       config.NoBackup,
			AllowHardLinks: config.AllowHardLinks,
			Confirm:        terminalConfirmer(),
		}

		result, err := pipeline.UninstallBatch(ctx, args, base)
		if err != nil {
			presenter.Error(err, "Uninstall failed")
			os.Exit(exitCodeFor(err))
		}

		for _, outcome := range result.Outcomes {
			switch o := outcome.(type) {
			case operations.Uninstalled:
				presenter.Success(fmt.Sprintf("Removed %q (%d files, %d bytes)", o.Name, o.FileCount, o.Size))
				renderBackup(o.Backup, true)
			case operations.Preview:
				renderPreview(o)
			case operations.Cancelled:
				presenter.Info(fmt.Sprintf("Skipped %q", o.Name))
			}
		}
		if len(result.NotFound) > 0 {
			presenter.Warning("Not found: " + strings.Join(result.NotFound, ", "))
		}
		if len(result.Removed) == 0 && !config.DryRun {
			os.Exit(exitUsage)
		}
	},
}

func getUninstallConfigFromFlags(cmd *cobra.Command) *UninstallConfig {
	config := NewUninstallConfig()

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
	if allowHardLinks, err := cmd.Flags().GetBool("allow-hard-links"); err == nil {
		config.AllowHardLinks = allowHardLinks
	}

	return config
}

func init() {
	uninstallCmd.Flags().StringP("scope", "s", "project", "Install scope: project, personal, or a directory path")
	uninstallCmd.Flags().BoolP("force", "f", false, "Remove without prompting and skip invalid names")
	uninstallCmd.Flags().Bool("dry-run", false, "Show what would be removed without writing anything")
	uninstallCmd.Flags().Bool("no-backup", false, "Skip the pre-removal backup")
	uninstallCmd.Flags().Bool("allow-hard-links", false, "Downgrade hard-link findings to warnings")
}

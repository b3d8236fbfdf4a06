package main

import (
	"fmt"

	"github.com/jingkaihe/skillkit/pkg/backup"
	"github.com/jingkaihe/skillkit/pkg/diff"
	"github.com/jingkaihe/skillkit/pkg/operations"
	"github.com/jingkaihe/skillkit/pkg/presenter"
)

func renderWarnings(warnings []string) {
	for _, w := range warnings {
		presenter.Warning(w)
	}
}

func renderBackup(result *backup.Result, kept bool) {
	if result == nil || !result.Created || !kept {
		return
	}
	presenter.Info("Backup retained at " + result.Path)
}

func renderComparison(c *diff.Comparison) {
	if c == nil || c.IsEmpty() {
		presenter.Info("No file changes")
		return
	}
	for _, fc := range c.Added {
		presenter.Info(fmt.Sprintf("  + %s (%d bytes)", fc.Path, fc.AfterSize))
	}
	for _, fc := range c.Removed {
		presenter.Info(fmt.Sprintf("  - %s (%d bytes)", fc.Path, fc.BeforeSize))
	}
	for _, fc := range c.Modified {
		presenter.Info(fmt.Sprintf("  ~ %s (%+d bytes)", fc.Path, fc.Delta))
	}
	presenter.Info(fmt.Sprintf("%d added, %d removed, %d modified, net %+d bytes",
		c.AddedCount(), c.RemovedCount(), c.ModifiedCount(), c.SizeChange))
}

func renderPreview(p operations.Preview) {
	presenter.Section(fmt.Sprintf("Dry run: %s %q", p.Operation, p.Name))
	presenter.Info(fmt.Sprintf("Target: %s", p.Path))
	presenter.Info(fmt.Sprintf("%d files, %d bytes", p.FileCount, p.Size))
	if p.Comparison != nil {
		renderComparison(p.Comparison)
	}
	if p.PlannedBackup != "" {
		presenter.Info("Backup would be written to " + p.PlannedBackup)
	}
	renderWarnings(p.Warnings)
	presenter.Info("No changes were made")
}

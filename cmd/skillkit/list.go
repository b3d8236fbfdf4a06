package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillkit/pkg/discovery"
	"github.com/jingkaihe/skillkit/pkg/presenter"
	"github.com/jingkaihe/skillkit/pkg/scope"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed skills",
	Long: `List the skills installed in the selected scope. By default only
the immediate children of the scope directory are considered; --nested
walks subdirectories and treats any directory containing a SKILL.md as a
skill. Patterns in a .skillkitignore file at the scope root are skipped.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		scopeFlag, _ := cmd.Flags().GetString("scope")
		nested, _ := cmd.Flags().GetBool("nested")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		resolver := &scope.Resolver{}
		sc, err := resolver.Resolve(scopeFlag)
		if err != nil {
			return errors.Wrap(err, "failed to resolve scope")
		}

		var opts []discovery.Option
		if nested {
			opts = append(opts, discovery.WithNested())
		}
		lister, err := discovery.NewLister(opts...)
		if err != nil {
			return err
		}

		skills, err := lister.List(sc.Path)
		if err != nil {
			return errors.Wrap(err, "failed to list skills")
		}

		if jsonOutput {
			output, err := json.MarshalIndent(skills, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to marshal skill list")
			}
			fmt.Println(string(output))
			return nil
		}

		presenter.Section(fmt.Sprintf("Installed skills in %s (%d)", sc.Path, len(skills)))
		if len(skills) == 0 {
			presenter.Info("No skills installed")
			return nil
		}
		for _, s := range skills {
			fmt.Fprintf(os.Stdout, "  %s (%d files, %d bytes)\n", s.Name, s.FileCount, s.Size)
			if s.Description != "" {
				fmt.Fprintf(os.Stdout, "    %s\n", s.Description)
			}
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringP("scope", "s", "project", "Scope to list: project, personal, or a directory path")
	listCmd.Flags().Bool("nested", false, "Walk subdirectories for nested skills")
	listCmd.Flags().Bool("json", false, "Output as JSON")
}

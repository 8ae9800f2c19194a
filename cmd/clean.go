package cmd

import (
	"fmt"
	"os"

	"github.com/maxkimambo/taskgraph/internal/logger"
	"github.com/maxkimambo/taskgraph/internal/utils"
	"github.com/spf13/cobra"
)

var (
	cleanTasks []string
	cleanYes   bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the targets written by task modules",
	Long: `Removes the existing targets of the selected modules and their dependencies,
so the next run with --target-policy skip-existing recomputes them.`,
	RunE: cleanTargets,
}

func init() {
	cleanCmd.Flags().StringSliceVarP(&cleanTasks, "task", "t", nil, "Entry module path or glob (repeatable, default: every module)")
	cleanCmd.Flags().BoolVarP(&cleanYes, "yes", "y", false, "Do not ask for confirmation")
}

func cleanTargets(cmd *cobra.Command, args []string) error {
	o, err := newOrchestrator()
	if err != nil {
		return err
	}
	graph, _, err := o.Assemble(cleanTasks)
	if err != nil {
		return err
	}

	paths, err := existingTargets(o.TargetWriter(), graph)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		logger.User.Info("No targets to remove")
		return nil
	}

	ok, err := utils.PromptForMultipleItems(cmd.InOrStdin(), cmd.OutOrStdout(), cleanYes, "remove", paths)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), utils.Warning("Clean cancelled", "No targets were removed"))
		return nil
	}

	for _, p := range paths {
		if err := os.RemoveAll(p); err != nil {
			return err
		}
	}
	logger.User.Successf("Removed %d targets", len(paths))
	return nil
}

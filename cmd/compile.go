package cmd

import (
	"github.com/spf13/cobra"
)

var compileTasks []string

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Extract module manifests and write them to .compiled/manifest.json",
	Long: `Parses the selected modules and everything they reference, validates their
structure and dependency graph, and writes the resulting manifest. The graph
command can read it back with --compiled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := newOrchestrator()
		if err != nil {
			return err
		}
		_, err = o.Compile(compileTasks)
		return err
	},
}

func init() {
	compileCmd.Flags().StringSliceVarP(&compileTasks, "task", "t", nil, "Entry module path or glob (repeatable, default: every module)")
}

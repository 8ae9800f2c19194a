package cmd

import (
	"errors"
	"fmt"
	"os"

	tgerrors "github.com/maxkimambo/taskgraph/internal/errors"
	"github.com/maxkimambo/taskgraph/internal/logger"
	"github.com/maxkimambo/taskgraph/task"
	"github.com/spf13/cobra"
)

var (
	projectDir string
	debug      bool
	verbose    bool
	jsonLogs   bool
	quiet      bool
	version    = "v0.1.0"

	// registry holds the runners of the project's modules. Project binaries
	// register them from init functions in a blank-imported package.
	registry = task.Default

	rootCmd = &cobra.Command{
		Use:   "taskgraph",
		Short: "Run Go task modules as a dependency graph",
		Long: `taskgraph discovers the task modules of a project, reads their dependencies
and declared targets from source, and runs them in dependency order with
bounded concurrency, retries and per-branch failure isolation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Setup(verbose || debug, jsonLogs, quiet)
		},
	}
)

// Execute runs the CLI. Errors other than a failed run are printed to stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errRunFailed) {
		fmt.Fprintln(os.Stderr, tgerrors.FormatForCLI(err))
	}
	return err
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project-dir", "p", ".", "Project directory holding project.toml")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(cleanCmd)
}

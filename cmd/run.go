package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maxkimambo/taskgraph/internal/events"
	"github.com/maxkimambo/taskgraph/internal/progress"
	"github.com/spf13/cobra"
)

var (
	runTasks        []string
	runConcurrency  int
	runFullTB       bool
	runTargetPolicy string
	runTaskTimeout  time.Duration
	runVisualize    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run task modules and everything they depend on",
	Long: `Runs the selected task modules and their upstream dependencies.

Independent branches run in parallel up to --concurrency. A failed module
skips everything downstream of it while other branches keep running.

Example:
taskgraph run
taskgraph run --task reports/daily --concurrency 4
taskgraph run --task 'reports/*' --target-policy skip-existing --visualize run.dot
`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringSliceVarP(&runTasks, "task", "t", nil, "Entry module path or glob (repeatable, default: every module)")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 1, "Number of modules to run concurrently")
	runCmd.Flags().BoolVar(&runFullTB, "full-tb", false, "Show full diagnostics for syntax and generic errors")
	runCmd.Flags().StringVar(&runTargetPolicy, "target-policy", "", "always, skip-existing or verify (default from project.toml)")
	runCmd.Flags().DurationVar(&runTaskTimeout, "task-timeout", 0, "Deadline for a single attempt, seen by tasks through hooks.Context()")
	runCmd.Flags().StringVar(&runVisualize, "visualize", "", "Write the run graph coloured by outcome to this DOT file")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	var sinks []events.Sink
	if !quiet {
		sinks = append(sinks, progress.NewConsole(cmd.OutOrStdout()))
	}
	sinks = append(sinks, progress.OpSink())

	o, err := newOrchestrator(sinks...)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, o.Config); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := o.RunWithVisualization(ctx, runTasks, runVisualize)
	if err != nil {
		return err
	}

	if !quiet {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out)
		fmt.Fprint(out, summaryTable(result))
		fmt.Fprintln(out, resultBanner(result))
	}
	if !result.Success {
		return errRunFailed
	}
	return nil
}

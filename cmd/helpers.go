package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/maxkimambo/taskgraph/internal/dag"
	"github.com/maxkimambo/taskgraph/internal/events"
	"github.com/maxkimambo/taskgraph/internal/executor"
	"github.com/maxkimambo/taskgraph/internal/orchestrator"
	"github.com/maxkimambo/taskgraph/internal/progress"
	"github.com/maxkimambo/taskgraph/internal/project"
	"github.com/maxkimambo/taskgraph/internal/target"
	"github.com/maxkimambo/taskgraph/internal/utils"
	"github.com/spf13/cobra"
)

// errRunFailed reports a run that finished with failed or skipped modules.
// The summary has already been printed.
var errRunFailed = errors.New("run failed")

const bannerWidth = 100

func newOrchestrator(sinks ...events.Sink) (*orchestrator.PipelineOrchestrator, error) {
	p, err := project.Load(projectDir)
	if err != nil {
		return nil, err
	}
	return orchestrator.NewPipelineOrchestrator(p, registry, sinks...)
}

// applyRunFlags lets explicitly set flags override the project config.
func applyRunFlags(cmd *cobra.Command, config *executor.ExecutorConfig) error {
	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		if runConcurrency < 1 {
			return fmt.Errorf("--concurrency must be at least 1, got %d", runConcurrency)
		}
		config.MaxParallelTasks = runConcurrency
	}
	if flags.Changed("full-tb") {
		config.FullTrace = runFullTB
	}
	if flags.Changed("target-policy") {
		policy, err := target.ParsePolicy(runTargetPolicy)
		if err != nil {
			return err
		}
		config.TargetPolicy = policy
	}
	if flags.Changed("task-timeout") {
		config.TaskTimeout = runTaskTimeout
	}
	return nil
}

func summaryTable(result *executor.ExecutionResult) string {
	table := utils.NewTableFormatter("#", "MODULE", "OUTCOME", "ATTEMPTS", "DURATION", "DETAIL")
	for i, id := range result.Order {
		nr, ok := result.NodeResults[id]
		if !ok {
			continue
		}
		attempts := "-"
		if nr.Outcome != events.OutcomeSkipped {
			attempts = fmt.Sprint(len(nr.Attempts))
		}
		table.AddRow(
			fmt.Sprint(i+1),
			id,
			string(nr.Outcome),
			attempts,
			progress.FormatDuration(nr.Duration),
			detail(nr),
		)
	}
	return table.String()
}

func detail(nr *executor.NodeResult) string {
	if nr.FromTargets {
		return "loaded from targets"
	}
	final := nr.Final()
	if final == nil || final.Diagnostic == "" {
		return ""
	}
	line, _, _ := strings.Cut(final.Diagnostic, "\n")
	const maxDetail = 60
	if r := []rune(line); len(r) > maxDetail {
		line = string(r[:maxDetail-3]) + "..."
	}
	return line
}

func resultBanner(result *executor.ExecutionResult) string {
	succeeded, failed, skipped := result.Counts()
	elapsed := progress.FormatDuration(result.ExecutionTime)
	if result.Success {
		return utils.Success("Run succeeded",
			fmt.Sprintf("%d modules in %s", succeeded, elapsed),
			"Run ID: "+result.RunID)
	}
	box := utils.NewBox(utils.ErrorMessage, "Run failed").
		WithWidth(bannerWidth).
		AddLine(fmt.Sprintf("%d succeeded, %d failed, %d skipped in %s", succeeded, failed, skipped, elapsed)).
		AddLine("Run ID: " + result.RunID)
	for _, id := range result.Order {
		if nr, ok := result.NodeResults[id]; ok && nr.Outcome.Failed() {
			box.AddBullet(fmt.Sprintf("%s: %s", id, nr.Outcome))
		}
	}
	return box.Render()
}

// existingTargets lists the target paths of every module in graph that are
// present on disk.
func existingTargets(w *target.Writer, graph *dag.DAG) ([]string, error) {
	var paths []string
	for _, id := range graph.GetAllNodes() {
		node, err := graph.GetNode(id)
		if err != nil || node.Module == nil {
			continue
		}
		ps, err := w.Paths(node.Module)
		if err != nil {
			return nil, err
		}
		for _, p := range ps {
			if _, err := os.Stat(p); err == nil {
				paths = append(paths, p)
			}
		}
	}
	return paths, nil
}

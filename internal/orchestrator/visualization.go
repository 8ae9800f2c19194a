package orchestrator

import (
	"context"
	"fmt"

	"github.com/maxkimambo/taskgraph/internal/dag"
	"github.com/maxkimambo/taskgraph/internal/executor"
	"github.com/maxkimambo/taskgraph/internal/logger"
)

// RunWithVisualization runs the selected modules and, when visualizeFile is
// set, writes the graph coloured by outcome as DOT.
func (o *PipelineOrchestrator) RunWithVisualization(ctx context.Context, selectors []string, visualizeFile string) (*executor.ExecutionResult, error) {
	result, graph, err := o.RunWithGraph(ctx, selectors)
	if err != nil {
		return result, err
	}

	if visualizeFile != "" {
		viz := dag.NewDAGVisualization(graph).WithStatuses(Statuses(result))
		if err := viz.ExportToDOT(visualizeFile); err != nil {
			return result, fmt.Errorf("failed to export visualization: %w", err)
		}
		logger.User.Infof("Run graph written to %s", visualizeFile)
	}

	return result, nil
}

// Statuses maps every node of result to its final outcome.
func Statuses(result *executor.ExecutionResult) map[string]string {
	statuses := make(map[string]string, len(result.NodeResults))
	for id, nr := range result.NodeResults {
		statuses[id] = string(nr.Outcome)
	}
	return statuses
}

package cmd

import (
	"fmt"

	"github.com/maxkimambo/taskgraph/internal/dag"
	"github.com/spf13/cobra"
)

var (
	graphTasks    []string
	graphFormat   string
	graphCompiled bool
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show the dependency graph and execution order",
	Long: `Assembles the dependency graph of the selected modules without running
anything and prints it as text, DOT or JSON.

Example:
taskgraph graph
taskgraph graph --task reports/daily --format dot | dot -Tsvg > graph.svg
`,
	RunE: showGraph,
}

func init() {
	graphCmd.Flags().StringSliceVarP(&graphTasks, "task", "t", nil, "Entry module path or glob (repeatable, default: every module)")
	graphCmd.Flags().StringVarP(&graphFormat, "format", "f", "text", "Output format: text, dot or json")
	graphCmd.Flags().BoolVar(&graphCompiled, "compiled", false, "Read the compiled manifest instead of the module sources")
}

func showGraph(cmd *cobra.Command, args []string) error {
	o, err := newOrchestrator()
	if err != nil {
		return err
	}

	var graph *dag.DAG
	if graphCompiled {
		graph, err = o.AssembleCompiled(graphTasks)
	} else {
		graph, _, err = o.Assemble(graphTasks)
	}
	if err != nil {
		return err
	}

	out, err := renderGraph(graph, graphFormat)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func renderGraph(graph *dag.DAG, format string) (string, error) {
	viz := dag.NewDAGVisualization(graph)
	switch format {
	case "text":
		return viz.GenerateTextSummary()
	case "dot":
		return viz.GenerateDOTGraph()
	case "json":
		data, err := viz.GenerateJSON()
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	}
	return "", fmt.Errorf("unknown format %q, use text, dot or json", format)
}

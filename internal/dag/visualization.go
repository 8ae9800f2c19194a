package dag

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// DAGVisualization renders a DAG for the graph command
type DAGVisualization struct {
	dag      *DAG
	statuses map[string]string
}

// NewDAGVisualization creates a new visualization helper
func NewDAGVisualization(dag *DAG) *DAGVisualization {
	return &DAGVisualization{
		dag:      dag,
		statuses: make(map[string]string),
	}
}

// WithStatuses overlays per-node outcomes, keyed by node ID
func (v *DAGVisualization) WithStatuses(statuses map[string]string) *DAGVisualization {
	for id, s := range statuses {
		v.statuses[id] = s
	}
	return v
}

// NodeInfo contains information about a node for visualization
type NodeInfo struct {
	ID      string   `json:"id"`
	Task    string   `json:"task"`
	Targets []string `json:"targets,omitempty"`
	Retries int      `json:"retries,omitempty"`
	Status  string   `json:"status,omitempty"`
}

// DAGInfo contains the full DAG structure for visualization
type DAGInfo struct {
	Nodes []NodeInfo `json:"nodes"`
	Edges []Edge     `json:"edges"`
	Order []string   `json:"order"`
}

// GenerateDAGInfo creates a representation of the DAG for visualization
func (v *DAGVisualization) GenerateDAGInfo() (*DAGInfo, error) {
	order, err := v.dag.TopologicalSort()
	if err != nil {
		return nil, err
	}

	nodes := make([]NodeInfo, 0, len(order))
	for _, id := range order {
		node, err := v.dag.GetNode(id)
		if err != nil {
			continue
		}
		info := NodeInfo{ID: id, Status: v.statuses[id]}
		if node.Module != nil {
			info.Task = node.Module.TaskName
			info.Retries = node.Module.Retries()
			for _, t := range node.Module.Targets {
				info.Targets = append(info.Targets, fmt.Sprintf("%s %s", t.Type, t.Loc))
			}
		}
		nodes = append(nodes, info)
	}

	edges := v.dag.Edges()
	if edges == nil {
		edges = []Edge{}
	}

	return &DAGInfo{Nodes: nodes, Edges: edges, Order: order}, nil
}

// GenerateJSON returns the DAG structure as indented JSON
func (v *DAGVisualization) GenerateJSON() ([]byte, error) {
	info, err := v.GenerateDAGInfo()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(info, "", "  ")
}

// GenerateDOTGraph creates a DOT format graph for visualization with Graphviz.
// Edges point from a dependency to the module that consumes it.
func (v *DAGVisualization) GenerateDOTGraph() (string, error) {
	info, err := v.GenerateDAGInfo()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("digraph TaskGraph {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=filled];\n\n")

	for _, node := range info.Nodes {
		label := node.ID
		if node.Task != "" {
			label += "\\n" + node.Task
		}
		sb.WriteString(fmt.Sprintf("  %q [label=\"%s\", fillcolor=%q];\n",
			node.ID, label, statusColor(node.Status)))
	}

	if len(info.Edges) > 0 {
		sb.WriteString("\n")
	}
	for _, edge := range info.Edges {
		sb.WriteString(fmt.Sprintf("  %q -> %q;\n", edge.To, edge.From))
	}

	sb.WriteString("}\n")
	return sb.String(), nil
}

func statusColor(status string) string {
	switch status {
	case "SUCCESS":
		return "lightgreen"
	case "DOMAIN_ERROR", "SYNTAX_ERROR", "GENERIC_ERROR":
		return "salmon"
	case "SKIPPED":
		return "orange"
	case "RUNNING":
		return "lightblue"
	}
	return "lightgrey"
}

// GenerateTextSummary lists modules in execution order with their dependencies and targets
func (v *DAGVisualization) GenerateTextSummary() (string, error) {
	info, err := v.GenerateDAGInfo()
	if err != nil {
		return "", err
	}

	deps := make(map[string][]string)
	for _, edge := range info.Edges {
		deps[edge.From] = append(deps[edge.From], edge.To)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d modules, %d dependencies\n\n", len(info.Nodes), len(info.Edges)))

	for i, node := range info.Nodes {
		line := fmt.Sprintf("%d. %s", i+1, node.ID)
		if node.Status != "" {
			line += fmt.Sprintf(" [%s]", node.Status)
		}
		sb.WriteString(line + "\n")
		if d := deps[node.ID]; len(d) > 0 {
			sb.WriteString(fmt.Sprintf("   needs:   %s\n", strings.Join(d, ", ")))
		}
		for _, t := range node.Targets {
			sb.WriteString(fmt.Sprintf("   target:  %s\n", t))
		}
		if node.Retries > 0 {
			sb.WriteString(fmt.Sprintf("   retries: %d\n", node.Retries))
		}
	}

	return sb.String(), nil
}

// ExportToDOT exports the DAG visualization to a DOT file
func (v *DAGVisualization) ExportToDOT(filename string) error {
	dot, err := v.GenerateDOTGraph()
	if err != nil {
		return err
	}
	return os.WriteFile(filename, []byte(dot), 0644)
}

package dag

import (
	"fmt"
	"sort"
	"sync"

	tgerrors "github.com/maxkimambo/taskgraph/internal/errors"
	"github.com/maxkimambo/taskgraph/internal/manifest"
)

// Node is one module in the graph.
type Node struct {
	ID     string
	Module *manifest.Module
}

// Edge points from a module to a module it depends on.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DAG holds modules and their dependencies. Node order is insertion order.
type DAG struct {
	nodes      map[string]*Node
	order      []string
	deps       map[string][]string // node -> nodes it depends on
	dependents map[string][]string // node -> nodes depending on it
	mutex      sync.RWMutex
}

// NewDAG creates a new DAG instance
func NewDAG() *DAG {
	return &DAG{
		nodes:      make(map[string]*Node),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
	}
}

// AddNode adds a module node to the DAG
func (d *DAG) AddNode(node *Node) error {
	if node == nil {
		return fmt.Errorf("node cannot be nil")
	}
	if node.ID == "" {
		return fmt.Errorf("node ID cannot be empty")
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if _, exists := d.nodes[node.ID]; exists {
		return fmt.Errorf("node with ID %s already exists", node.ID)
	}

	d.nodes[node.ID] = node
	d.order = append(d.order, node.ID)
	return nil
}

// AddDependency records that fromID depends on toID
func (d *DAG) AddDependency(fromID, toID string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if _, exists := d.nodes[fromID]; !exists {
		return fmt.Errorf("source node %s does not exist", fromID)
	}
	if _, exists := d.nodes[toID]; !exists {
		return fmt.Errorf("target node %s does not exist", toID)
	}
	if fromID == toID {
		return tgerrors.NewSelfReferenceError(fromID)
	}
	for _, existing := range d.deps[fromID] {
		if existing == toID {
			return nil
		}
	}

	d.deps[fromID] = append(d.deps[fromID], toID)
	d.dependents[toID] = append(d.dependents[toID], fromID)
	return nil
}

// GetNode retrieves a node by its ID
func (d *DAG) GetNode(id string) (*Node, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	node, exists := d.nodes[id]
	if !exists {
		return nil, fmt.Errorf("node %s not found", id)
	}
	return node, nil
}

// GetDependencies returns the nodes that must succeed before id can run
func (d *DAG) GetDependencies(id string) ([]string, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	if _, exists := d.nodes[id]; !exists {
		return nil, fmt.Errorf("node %s not found", id)
	}
	return append([]string(nil), d.deps[id]...), nil
}

// GetDependents returns the nodes that depend on id
func (d *DAG) GetDependents(id string) ([]string, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	if _, exists := d.nodes[id]; !exists {
		return nil, fmt.Errorf("node %s not found", id)
	}
	return append([]string(nil), d.dependents[id]...), nil
}

// GetTransitiveDependents returns every node downstream of id, nearest first
func (d *DAG) GetTransitiveDependents(id string) ([]string, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	if _, exists := d.nodes[id]; !exists {
		return nil, fmt.Errorf("node %s not found", id)
	}

	var result []string
	seen := map[string]bool{id: true}
	queue := append([]string(nil), d.dependents[id]...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if seen[current] {
			continue
		}
		seen[current] = true
		result = append(result, current)
		queue = append(queue, d.dependents[current]...)
	}
	return result, nil
}

// GetAllNodes returns all node IDs in insertion order
func (d *DAG) GetAllNodes() []string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return append([]string(nil), d.order...)
}

// GetRootNodes returns nodes with no dependencies
func (d *DAG) GetRootNodes() []string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	var roots []string
	for _, id := range d.order {
		if len(d.deps[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// Edges returns every dependency edge, sorted
func (d *DAG) Edges() []Edge {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	var edges []Edge
	for from, tos := range d.deps {
		for _, to := range tos {
			edges = append(edges, Edge{From: from, To: to})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges
}

// Size returns the number of nodes
func (d *DAG) Size() int {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return len(d.nodes)
}

// TopologicalSort returns the nodes in an order where every node follows its
// dependencies. Ties keep insertion order.
func (d *DAG) TopologicalSort() ([]string, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	position := make(map[string]int, len(d.order))
	inDegree := make(map[string]int, len(d.order))
	var queue []string
	for i, id := range d.order {
		position[id] = i
		inDegree[id] = len(d.deps[id])
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	result := make([]string, 0, len(d.order))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		var released []string
		for _, dependent := range d.dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				released = append(released, dependent)
			}
		}
		sort.Slice(released, func(i, j int) bool { return position[released[i]] < position[released[j]] })
		queue = append(queue, released...)
	}

	if len(result) != len(d.order) {
		return nil, tgerrors.NewCycleError(d.findCycleUnsafe())
	}
	return result, nil
}

// Validate checks the DAG for cycles
func (d *DAG) Validate() error {
	_, err := d.TopologicalSort()
	return err
}

func (d *DAG) findCycleUnsafe() []string {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(d.order))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = inProgress
		stack = append(stack, id)
		for _, dep := range d.deps[id] {
			switch state[dep] {
			case inProgress:
				cycle = cyclePath(stack, dep)
				return true
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, id := range d.order {
		if state[id] == unvisited && visit(id) {
			return cycle
		}
	}
	return nil
}

// cyclePath returns the stack suffix starting at closing, with closing appended.
func cyclePath(stack []string, closing string) []string {
	for i, id := range stack {
		if id == closing {
			path := append([]string(nil), stack[i:]...)
			return append(path, closing)
		}
	}
	return []string{closing, closing}
}

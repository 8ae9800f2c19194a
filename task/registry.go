package task

import (
	"fmt"
	"sort"
	"sync"

	tgerrors "github.com/maxkimambo/taskgraph/internal/errors"
)

// Registry maps module paths to their runners.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]Runner
}

// Default is the registry used by Register.
var Default = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]Runner)}
}

// Register adds a runner under the canonical form of path.
func (r *Registry) Register(path string, runner Runner) error {
	key := ModulePath(path)
	if key == "" {
		return tgerrors.NewConfigurationError(tgerrors.CodeConfigInvalid,
			"cannot register a task with an empty path", "Task registration")
	}
	if runner == nil {
		return tgerrors.NewConfigurationError(tgerrors.CodeConfigInvalid,
			fmt.Sprintf("nil runner registered for %s", key), "Task registration").WithModule(key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runners[key]; exists {
		return tgerrors.NewConfigurationError(tgerrors.CodeDuplicateRegistered,
			fmt.Sprintf("task %s is already registered", key), "Task registration").WithModule(key)
	}
	r.runners[key] = runner
	return nil
}

// Lookup returns the runner registered for path.
func (r *Registry) Lookup(path string) (Runner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[ModulePath(path)]
	return runner, ok
}

// Paths returns the registered module paths in sorted order.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := make([]string, 0, len(r.runners))
	for p := range r.runners {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Register adds runner to the default registry. It panics on a duplicate
// path and is meant to be called from init.
func Register(path string, runner Runner) {
	if err := Default.Register(path, runner); err != nil {
		panic(err)
	}
}

// RunnerFunc adapts a function to a Runner.
type RunnerFunc func(tasks Tasks, hooks Hooks) (any, error)

func (f RunnerFunc) Run(tasks Tasks, hooks Hooks) (any, error) {
	return f(tasks, hooks)
}

package taskmanager

import (
	"fmt"
	"sync"

	tgerrors "github.com/maxkimambo/taskgraph/internal/errors"
	"github.com/maxkimambo/taskgraph/task"
)

// SharedContext holds the published outputs of a run. Each module publishes
// exactly once; readers only ever see complete values.
type SharedContext struct {
	mu   sync.RWMutex
	data map[string]interface{}
}

// NewSharedContext creates a new SharedContext.
func NewSharedContext() *SharedContext {
	return &SharedContext{
		data: make(map[string]interface{}),
	}
}

// Publish stores the output of module path. A second publish for the same path fails.
func (sc *SharedContext) Publish(path string, value interface{}) error {
	key := task.ModulePath(path)

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if _, exists := sc.data[key]; exists {
		return tgerrors.NewRuntimeError(tgerrors.CodeOutputPublished,
			fmt.Sprintf("output of %s was already published", key), key)
	}
	sc.data[key] = value
	return nil
}

// Get retrieves the published output of module path.
func (sc *SharedContext) Get(path string) (interface{}, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	val, ok := sc.data[task.ModulePath(path)]
	return val, ok
}

// Len returns the number of published outputs.
func (sc *SharedContext) Len() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return len(sc.data)
}

// Refs returns the view of the context handed to owner's Run. Only the
// declared upstream modules can be read through it.
func (sc *SharedContext) Refs(owner string, upstream []string) *Refs {
	allowed := make(map[string]bool, len(upstream))
	for _, u := range upstream {
		allowed[task.ModulePath(u)] = true
	}
	return &Refs{ctx: sc, owner: owner, allowed: allowed}
}

// Refs implements task.Tasks for one module.
type Refs struct {
	ctx     *SharedContext
	owner   string
	allowed map[string]bool
}

// Ref returns the output of an upstream module.
func (r *Refs) Ref(path string) (any, error) {
	key := task.ModulePath(path)
	if !r.allowed[key] {
		return nil, tgerrors.NewRuntimeError(tgerrors.CodeUndeclaredRef,
			fmt.Sprintf("%s is not an upstream dependency of %s", key, r.owner), r.owner).
			WithContext("reference", key).
			WithTroubleshooting("Pass a string literal to tasks.Ref so the dependency is recorded")
	}
	val, ok := r.ctx.Get(key)
	if !ok {
		return nil, tgerrors.NewUpstreamMissingError(r.owner, key)
	}
	return val, nil
}

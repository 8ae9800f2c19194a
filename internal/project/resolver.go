package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	tgerrors "github.com/maxkimambo/taskgraph/internal/errors"
	"github.com/maxkimambo/taskgraph/task"
)

// Resolver maps module references to files across an ordered stack of roots.
type Resolver struct {
	mu    sync.RWMutex
	roots []string
}

func NewResolver(roots ...string) *Resolver {
	return &Resolver{roots: append([]string(nil), roots...)}
}

// Push puts roots in front of the current stack. The returned func restores
// the stack as it was before the call.
func (r *Resolver) Push(roots ...string) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.roots
	next := make([]string, 0, len(roots)+len(prev))
	next = append(next, roots...)
	next = append(next, prev...)
	r.roots = next

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.roots = prev
	}
}

// Roots returns a copy of the current search stack.
func (r *Resolver) Roots() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.roots...)
}

// Resolve returns the canonical path of ref if some root holds it.
func (r *Resolver) Resolve(ref string) (string, error) {
	path := task.ModulePath(ref)
	if _, err := r.locate(path); err != nil {
		return "", err
	}
	return path, nil
}

// Load returns the source of the module at the canonical path.
func (r *Resolver) Load(path string) ([]byte, error) {
	file, err := r.locate(task.ModulePath(path))
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, tgerrors.NewStructuralError(tgerrors.CodeModuleUnreadable,
			fmt.Sprintf("failed to read module %s", path), path).
			WithOriginalError(err)
	}
	return src, nil
}

func (r *Resolver) locate(path string) (string, error) {
	roots := r.Roots()
	if path == "" {
		return "", tgerrors.NewModuleNotFoundError(path, roots)
	}
	for _, root := range roots {
		candidate := filepath.Join(root, filepath.FromSlash(path))
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
	}
	return "", tgerrors.NewModuleNotFoundError(path, roots)
}

package dag

import (
	tgerrors "github.com/maxkimambo/taskgraph/internal/errors"
	"github.com/maxkimambo/taskgraph/internal/logger"
	"github.com/maxkimambo/taskgraph/internal/manifest"
)

// Source supplies manifest records during assembly.
type Source interface {
	Resolve(ref string) (string, error)
	Module(path string) (*manifest.Module, error)
}

// ModuleLoader finds and reads module source.
type ModuleLoader interface {
	Resolve(ref string) (string, error)
	Load(path string) ([]byte, error)
}

type extractingSource struct {
	loader ModuleLoader
}

// NewExtractingSource returns a Source that parses module source on demand.
func NewExtractingSource(loader ModuleLoader) Source {
	return &extractingSource{loader: loader}
}

func (s *extractingSource) Resolve(ref string) (string, error) {
	return s.loader.Resolve(ref)
}

func (s *extractingSource) Module(path string) (*manifest.Module, error) {
	src, err := s.loader.Load(path)
	if err != nil {
		return nil, err
	}
	return manifest.Extract(path, src)
}

// Assembler builds the dependency graph reachable from a set of entry modules.
type Assembler struct {
	source Source
}

func NewAssembler(source Source) *Assembler {
	return &Assembler{source: source}
}

const (
	unvisited = iota
	inConstruction
	completed
)

// Assemble walks references from entries and returns the graph and the
// manifest of every module reached. Structural, syntax and cycle errors
// abort assembly.
func (a *Assembler) Assemble(entries []string) (*DAG, *manifest.Manifest, error) {
	graph := NewDAG()
	mf := manifest.New()
	state := make(map[string]int)
	var stack []string

	var visit func(path string) error
	visit = func(path string) error {
		mod, err := a.source.Module(path)
		if err != nil {
			return err
		}
		if err := graph.AddNode(&Node{ID: mod.Path, Module: mod}); err != nil {
			return err
		}
		mf.Add(mod)

		state[mod.Path] = inConstruction
		stack = append(stack, mod.Path)

		for _, ref := range mod.Refs {
			dep, err := a.source.Resolve(ref)
			if err != nil {
				if pe, ok := tgerrors.As(err); ok {
					pe.WithContext("referenced_by", mod.Path)
				}
				return err
			}

			switch state[dep] {
			case inConstruction:
				return tgerrors.NewCycleError(cyclePath(stack, dep))
			case unvisited:
				if err := visit(dep); err != nil {
					return err
				}
			}

			if err := graph.AddDependency(mod.Path, dep); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		state[mod.Path] = completed
		logger.Op.WithFields(map[string]interface{}{
			"module": mod.Path,
			"refs":   len(mod.Refs),
		}).Debug("Module assembled")
		return nil
	}

	for _, entry := range entries {
		path, err := a.source.Resolve(entry)
		if err != nil {
			return nil, nil, err
		}
		if state[path] != unvisited {
			continue
		}
		if err := visit(path); err != nil {
			return nil, nil, err
		}
	}

	return graph, mf, nil
}

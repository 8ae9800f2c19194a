package target

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	tgerrors "github.com/maxkimambo/taskgraph/internal/errors"
	"github.com/maxkimambo/taskgraph/internal/logger"
	"github.com/maxkimambo/taskgraph/internal/manifest"
)

// Writer materializes module outputs into their targets.
type Writer struct {
	eval *Evaluator
}

func NewWriter(eval *Evaluator) *Writer {
	return &Writer{eval: eval}
}

type resolved struct {
	typ      Type
	path     string
	iterator bool
}

func (w *Writer) resolve(m *manifest.Module) ([]resolved, error) {
	out := make([]resolved, 0, len(m.Targets))
	for _, t := range m.Targets {
		typ, err := ParseType(t.Type)
		if err != nil {
			if pe, ok := tgerrors.As(err); ok {
				pe.WithModule(m.Path)
			}
			return nil, err
		}
		path, err := w.eval.Location(m.Path, t.Loc)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved{typ: typ, path: path, iterator: t.Iterator})
	}
	return out, nil
}

// Paths returns the evaluated location of every target of m in declaration order.
func (w *Writer) Paths(m *manifest.Module) ([]string, error) {
	targets, err := w.resolve(m)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(targets))
	for i, t := range targets {
		paths[i] = t.path
	}
	return paths, nil
}

// Write stores value in the targets of m. With several targets value must be
// a []any holding one element per target, in declaration order.
func (w *Writer) Write(m *manifest.Module, value any) error {
	targets, err := w.resolve(m)
	if err != nil || len(targets) == 0 {
		return err
	}

	values := []any{value}
	if len(targets) > 1 {
		tuple, ok := value.([]any)
		if !ok || len(tuple) != len(targets) {
			return tgerrors.NewTargetError(tgerrors.CodeTargetShape,
				fmt.Sprintf("%s declares %d targets and must return []any of that length, got %T", m.Path, len(targets), value), m.Path)
		}
		values = tuple
	}

	for i, t := range targets {
		if err := writeTarget(m.Path, t, values[i]); err != nil {
			return err
		}
		logger.Op.WithFields(map[string]interface{}{
			"module": m.Path,
			"type":   string(t.typ),
			"path":   t.path,
		}).Debug("Target written")
	}
	return nil
}

func writeTarget(module string, t resolved, value any) error {
	if !t.iterator {
		data, err := encode(t.typ, value)
		if err != nil {
			return shapeError(module, t, err)
		}
		return writeFile(module, t.path, data)
	}

	members, ok := value.(map[string]any)
	if !ok {
		return tgerrors.NewTargetError(tgerrors.CodeTargetShape,
			fmt.Sprintf("iterator target %s of %s needs map[string]any, got %T", t.path, module, value), module)
	}
	if err := os.MkdirAll(t.path, 0o755); err != nil {
		return writeError(module, t.path, err)
	}
	for key, member := range members {
		data, err := encode(t.typ, member)
		if err != nil {
			return shapeError(module, t, err)
		}
		if err := writeFile(module, filepath.Join(t.path, memberFile(key, t.typ)), data); err != nil {
			return err
		}
	}
	return nil
}

func memberFile(key string, t Type) string {
	name := filepath.Base(filepath.Clean("/" + key))
	if filepath.Ext(name) == "" {
		name += t.Extension()
	}
	return name
}

// writeFile replaces path atomically.
func writeFile(module, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return writeError(module, path, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return writeError(module, path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return writeError(module, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return writeError(module, path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return writeError(module, path, err)
	}
	return nil
}

func writeError(module, path string, err error) error {
	return tgerrors.NewTargetError(tgerrors.CodeTargetWrite,
		fmt.Sprintf("failed to write target %s", path), module).
		WithOriginalError(err)
}

func shapeError(module string, t resolved, err error) error {
	return tgerrors.NewTargetError(tgerrors.CodeTargetShape,
		fmt.Sprintf("cannot encode output of %s as %s", module, t.typ), module).
		WithContext("path", t.path).
		WithOriginalError(err)
}

// Exists reports whether every target of m is present. Modules without
// targets never count as existing.
func (w *Writer) Exists(m *manifest.Module) (bool, error) {
	targets, err := w.resolve(m)
	if err != nil || len(targets) == 0 {
		return false, err
	}
	for _, t := range targets {
		info, err := os.Stat(t.path)
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if t.iterator != info.IsDir() {
			return false, nil
		}
	}
	return true, nil
}

// Verify fails with a target error naming the first missing target.
func (w *Writer) Verify(m *manifest.Module) error {
	targets, err := w.resolve(m)
	if err != nil {
		return err
	}
	for _, t := range targets {
		if _, err := os.Stat(t.path); err != nil {
			return tgerrors.NewTargetError(tgerrors.CodeTargetMissing,
				fmt.Sprintf("target %s of %s is missing after the run", t.path, m.Path), m.Path).
				WithOriginalError(err)
		}
	}
	return nil
}

// Load reads the targets of m back into the shape Write accepted.
func (w *Writer) Load(m *manifest.Module) (any, error) {
	targets, err := w.resolve(m)
	if err != nil {
		return nil, err
	}

	values := make([]any, len(targets))
	for i, t := range targets {
		v, err := loadTarget(m.Path, t)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}

	switch len(values) {
	case 0:
		return nil, nil
	case 1:
		return values[0], nil
	}
	return values, nil
}

func loadTarget(module string, t resolved) (any, error) {
	if !t.iterator {
		return loadFile(module, t.typ, t.path)
	}

	entries, err := os.ReadDir(t.path)
	if err != nil {
		return nil, loadError(module, t.path, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	members := make(map[string]any)
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		v, err := loadFile(module, t.typ, filepath.Join(t.path, e.Name()))
		if err != nil {
			return nil, err
		}
		members[strings.TrimSuffix(e.Name(), t.typ.Extension())] = v
	}
	return members, nil
}

func loadFile(module string, t Type, path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, loadError(module, path, err)
	}
	v, err := decode(t, data)
	if err != nil {
		return nil, loadError(module, path, err)
	}
	return v, nil
}

func loadError(module, path string, err error) error {
	return tgerrors.NewTargetError(tgerrors.CodeTargetLoad,
		fmt.Sprintf("failed to load target %s", path), module).
		WithOriginalError(err)
}

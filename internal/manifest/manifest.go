package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	tgerrors "github.com/maxkimambo/taskgraph/internal/errors"
	"github.com/maxkimambo/taskgraph/task"
)

const (
	// DefaultDir is where compiled manifests are written, relative to the project.
	DefaultDir = ".compiled"
	// FileName is the manifest file inside DefaultDir.
	FileName = "manifest.json"

	formatVersion = 1
)

// Manifest holds the records of every module reachable from the entry modules.
type Manifest struct {
	mu      sync.RWMutex
	modules map[string]*Module
	order   []string
}

type document struct {
	Version   int       `json:"version"`
	Generated time.Time `json:"generated"`
	Modules   []*Module `json:"modules"`
}

func New() *Manifest {
	return &Manifest{modules: make(map[string]*Module)}
}

// Add records m, replacing any previous record with the same path.
func (mf *Manifest) Add(m *Module) {
	mf.mu.Lock()
	defer mf.mu.Unlock()

	if _, exists := mf.modules[m.Path]; !exists {
		mf.order = append(mf.order, m.Path)
	}
	mf.modules[m.Path] = m
}

func (mf *Manifest) Get(path string) (*Module, bool) {
	mf.mu.RLock()
	defer mf.mu.RUnlock()
	m, ok := mf.modules[task.ModulePath(path)]
	return m, ok
}

// Modules returns the records in insertion order.
func (mf *Manifest) Modules() []*Module {
	mf.mu.RLock()
	defer mf.mu.RUnlock()

	out := make([]*Module, 0, len(mf.order))
	for _, p := range mf.order {
		out = append(out, mf.modules[p])
	}
	return out
}

func (mf *Manifest) Len() int {
	mf.mu.RLock()
	defer mf.mu.RUnlock()
	return len(mf.modules)
}

// Resolve returns the canonical path of ref if the manifest has a record for it.
func (mf *Manifest) Resolve(ref string) (string, error) {
	m, ok := mf.Get(ref)
	if !ok {
		return "", tgerrors.NewModuleNotFoundError(task.ModulePath(ref), []string{"manifest"})
	}
	return m.Path, nil
}

// Module returns the record for path. It lets a loaded manifest stand in for source extraction.
func (mf *Manifest) Module(path string) (*Module, error) {
	m, ok := mf.Get(path)
	if !ok {
		return nil, tgerrors.NewModuleNotFoundError(task.ModulePath(path), []string{"manifest"})
	}
	return m, nil
}

// Write encodes the manifest as indented JSON, modules sorted by path.
func (mf *Manifest) Write(w io.Writer) error {
	modules := mf.Modules()
	sort.Slice(modules, func(i, j int) bool { return modules[i].Path < modules[j].Path })

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(document{
		Version:   formatVersion,
		Generated: time.Now().UTC(),
		Modules:   modules,
	})
}

// Save writes the manifest to path, creating parent directories.
func (mf *Manifest) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}
	if err := mf.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return f.Close()
}

// Read decodes a manifest written by Write.
func Read(r io.Reader) (*Manifest, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if doc.Version != formatVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", doc.Version)
	}

	mf := New()
	for _, m := range doc.Modules {
		if m.Targets == nil {
			m.Targets = []Target{}
		}
		if m.Refs == nil {
			m.Refs = []string{}
		}
		mf.Add(m)
	}
	return mf, nil
}

// Load reads the manifest at path.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()
	return Read(f)
}

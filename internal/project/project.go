package project

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	tgerrors "github.com/maxkimambo/taskgraph/internal/errors"
	"github.com/maxkimambo/taskgraph/internal/manifest"
)

// Project is a directory holding project.toml and its task modules.
type Project struct {
	Dir    string
	Config *Config
}

// Load reads dir/project.toml. A missing file yields the defaults.
func Load(dir string) (*Project, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, tgerrors.NewConfigurationError(tgerrors.CodeConfigUnreadable,
			fmt.Sprintf("project directory %s does not exist", abs), "Project loading")
	}

	var cfg *Config
	path := filepath.Join(abs, ConfigFileName)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	} else {
		cfg, err = LoadFromPath(path)
		if err != nil {
			return nil, err
		}
	}
	if cfg.Name == "" {
		cfg.Name = filepath.Base(abs)
	}

	return &Project{Dir: abs, Config: cfg}, nil
}

func (p *Project) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.Dir, path)
}

// ModulesPath is the absolute modules directory.
func (p *Project) ModulesPath() string {
	return p.abs(p.Config.ModulesDir)
}

// OutputPath is the absolute output directory.
func (p *Project) OutputPath() string {
	return p.abs(p.Config.OutputDir)
}

// ManifestPath is where the compiled manifest is written.
func (p *Project) ManifestPath() string {
	return filepath.Join(p.Dir, manifest.DefaultDir, manifest.FileName)
}

// SearchRoots returns the modules directory followed by the configured search paths.
func (p *Project) SearchRoots() []string {
	roots := []string{p.ModulesPath()}
	for _, sp := range p.Config.SearchPaths {
		roots = append(roots, p.abs(sp))
	}
	return roots
}

// DiscoverModules lists every module under the modules directory, relative
// and slash separated. Test files and hidden, underscore and testdata
// directories are skipped.
func (p *Project) DiscoverModules() ([]string, error) {
	root := p.ModulesPath()
	var paths []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, tgerrors.NewConfigurationError(tgerrors.CodeConfigUnreadable,
			fmt.Sprintf("failed to scan modules directory %s", root), "Module discovery").
			WithOriginalError(err)
	}

	sort.Strings(paths)
	return paths, nil
}

// Connectors returns the connector configs with relative sqlite database
// paths taken from the project directory.
func (p *Project) Connectors() map[string]ConnectorConfig {
	out := make(map[string]ConnectorConfig, len(p.Config.Connectors))
	for name, c := range p.Config.Connectors {
		if c.Driver == "sqlite" && c.DSN != ":memory:" && !strings.HasPrefix(c.DSN, "file:") {
			c.DSN = p.abs(c.DSN)
		}
		out[name] = c
	}
	return out
}

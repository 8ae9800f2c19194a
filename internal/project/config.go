package project

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	tgerrors "github.com/maxkimambo/taskgraph/internal/errors"
)

// ConfigFileName is the project configuration file at the project root.
const ConfigFileName = "project.toml"

// Target policies.
const (
	PolicyAlways       = "always"
	PolicySkipExisting = "skip-existing"
	PolicyVerify       = "verify"
)

// Config is the content of project.toml.
type Config struct {
	Name         string                     `toml:"name"`
	ModulesDir   string                     `toml:"modules_dir"`
	OutputDir    string                     `toml:"output_dir"`
	Concurrency  int                        `toml:"concurrency"`
	FullTB       bool                       `toml:"full_tb"`
	TargetPolicy string                     `toml:"target_policy"`
	TaskTimeout  int                        `toml:"task_timeout_secs"`
	SearchPaths  []string                   `toml:"search_paths"`
	Vars         map[string]string          `toml:"vars"`
	Connectors   map[string]ConnectorConfig `toml:"connectors"`
}

// ConnectorConfig describes one database connection handed to tasks through hooks.
type ConnectorConfig struct {
	Driver       string `toml:"driver"`
	DSN          string `toml:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns"`
}

// Default returns the configuration used when project.toml leaves a field unset.
func Default() *Config {
	return &Config{
		ModulesDir:   "modules",
		OutputDir:    "output",
		Concurrency:  1,
		TargetPolicy: PolicyAlways,
		Vars:         map[string]string{},
		Connectors:   map[string]ConnectorConfig{},
	}
}

// LoadFromPath decodes path over the defaults and applies environment overrides.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, tgerrors.NewConfigurationError(tgerrors.CodeConfigUnreadable,
			fmt.Sprintf("failed to read %s", path), "Project loading").
			WithOriginalError(err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, tgerrors.NewConfigurationError(tgerrors.CodeConfigInvalid,
			fmt.Sprintf("unknown keys in %s: %s", path, strings.Join(keys, ", ")), "Project loading")
	}

	cfg.fillDefaults()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) fillDefaults() {
	def := Default()
	if c.ModulesDir == "" {
		c.ModulesDir = def.ModulesDir
	}
	if c.OutputDir == "" {
		c.OutputDir = def.OutputDir
	}
	if c.TargetPolicy == "" {
		c.TargetPolicy = def.TargetPolicy
	}
	if c.Vars == nil {
		c.Vars = map[string]string{}
	}
	if c.Connectors == nil {
		c.Connectors = map[string]ConnectorConfig{}
	}
}

// ApplyEnvOverrides lets TASKGRAPH_CONCURRENCY and TASKGRAPH_FULL_TB override the file.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TASKGRAPH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency = n
		}
	}
	if v := os.Getenv("TASKGRAPH_FULL_TB"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.FullTB = b
		}
	}
}

// Validate checks the values a run depends on.
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return tgerrors.NewConfigurationError(tgerrors.CodeConfigInvalid,
			fmt.Sprintf("concurrency must be at least 1, got %d", c.Concurrency), "Project validation")
	}
	if c.TaskTimeout < 0 {
		return tgerrors.NewConfigurationError(tgerrors.CodeConfigInvalid,
			fmt.Sprintf("task_timeout_secs must not be negative, got %d", c.TaskTimeout), "Project validation")
	}
	switch c.TargetPolicy {
	case PolicyAlways, PolicySkipExisting, PolicyVerify:
	default:
		return tgerrors.NewConfigurationError(tgerrors.CodeConfigInvalid,
			fmt.Sprintf("unknown target_policy %q", c.TargetPolicy), "Project validation").
			WithTroubleshooting(fmt.Sprintf("Use one of %s, %s, %s", PolicyAlways, PolicySkipExisting, PolicyVerify))
	}
	for _, name := range c.ConnectorNames() {
		conn := c.Connectors[name]
		if conn.Driver == "" || conn.DSN == "" {
			return tgerrors.NewConfigurationError(tgerrors.CodeConfigInvalid,
				fmt.Sprintf("connector %q needs both driver and dsn", name), "Project validation")
		}
	}
	return nil
}

// ConnectorNames returns the configured connector names in sorted order.
func (c *Config) ConnectorNames() []string {
	names := make([]string, 0, len(c.Connectors))
	for name := range c.Connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

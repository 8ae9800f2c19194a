package manifest

import (
	"go/ast"
	"math"
	"time"
)

// Config variable names read from a module's source.
const (
	RetriesVar           = "Retries"
	RetryDelaySecondsVar = "RetryDelaySeconds"
)

// Target is one artifact a module writes after a successful run.
// Type and Loc hold the source text of the directive arguments.
type Target struct {
	Type     string `json:"type"`
	Loc      string `json:"loc"`
	Iterator bool   `json:"iterator,omitempty"`
}

// Module is the manifest record of a single task module.
type Module struct {
	Path     string         `json:"path"`
	Hash     string         `json:"hash"`
	TaskName string         `json:"task"`
	Targets  []Target       `json:"targets"`
	Refs     []string       `json:"refs"`
	Config   map[string]any `json:"config,omitempty"`

	file *ast.File
}

// Lookup returns the last literal value assigned to name in the module
// source. Modules loaded from a persisted manifest answer from Config.
func (m *Module) Lookup(name string) (any, bool) {
	if m.file != nil {
		return lookupLiteral(m.file, name)
	}
	v, ok := m.Config[name]
	return v, ok
}

// TargetLoc returns nil without targets, the single location as a string,
// or every location in declaration order.
func (m *Module) TargetLoc() any {
	switch len(m.Targets) {
	case 0:
		return nil
	case 1:
		return m.Targets[0].Loc
	}
	locs := make([]string, len(m.Targets))
	for i, t := range m.Targets {
		locs[i] = t.Loc
	}
	return locs
}

// Retries returns the number of extra attempts after a failure. Values past
// the int range are clamped to math.MaxInt.
func (m *Module) Retries() int {
	v, ok := m.Lookup(RetriesVar)
	if !ok {
		return 0
	}
	n, ok := asFloat(v)
	if !ok || n < 0 {
		return 0
	}
	if n >= float64(math.MaxInt) {
		return math.MaxInt
	}
	return int(n)
}

// RetryDelay returns the wait between attempts.
func (m *Module) RetryDelay() time.Duration {
	v, ok := m.Lookup(RetryDelaySecondsVar)
	if !ok {
		return 0
	}
	n, ok := asFloat(v)
	if !ok || n < 0 {
		return 0
	}
	if n >= maxDelaySeconds {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(n * float64(time.Second))
}

const maxDelaySeconds = float64(math.MaxInt64) / float64(time.Second)

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

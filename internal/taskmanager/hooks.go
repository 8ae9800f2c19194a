package taskmanager

import (
	"context"
	"database/sql"

	"github.com/maxkimambo/taskgraph/internal/connector"
)

// Hooks implements task.Hooks over the project's connectors and variables.
type Hooks struct {
	ctx   context.Context
	conns *connector.Set
	vars  map[string]string
}

// NewHooks binds hooks to conns and vars. conns may be nil when the project has no connectors.
func NewHooks(conns *connector.Set, vars map[string]string) *Hooks {
	if vars == nil {
		vars = map[string]string{}
	}
	return &Hooks{ctx: context.Background(), conns: conns, vars: vars}
}

// WithContext returns a copy bound to ctx for one task attempt.
func (h *Hooks) WithContext(ctx context.Context) *Hooks {
	cp := *h
	cp.ctx = ctx
	return &cp
}

func (h *Hooks) Context() context.Context {
	return h.ctx
}

func (h *Hooks) Var(name string) (string, bool) {
	v, ok := h.vars[name]
	return v, ok
}

func (h *Hooks) Connector(name string) (*sql.DB, error) {
	return h.conns.DB(name)
}

func (h *Hooks) SQL(ctx context.Context, name, query string, args ...any) ([]map[string]any, error) {
	return h.conns.Query(ctx, name, query, args...)
}

func (h *Hooks) Exec(ctx context.Context, name, stmt string, args ...any) (int64, error) {
	return h.conns.Exec(ctx, name, stmt, args...)
}

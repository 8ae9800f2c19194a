// Package task is the API task modules are written against.
//
// A task module is a Go source file that declares exactly one struct
// embedding Task, with a Run method taking (tasks Tasks, hooks Hooks).
// Upstream dependencies are declared by calling tasks.Ref with a literal
// module path, and outputs are persisted through target directives in the
// Run method's doc comment:
//
//	type Report struct{ task.Task }
//
//	//task:Target(CSV, "${output}/report.csv")
//	func (r *Report) Run(tasks task.Tasks, hooks task.Hooks) (any, error) {
//		rows, err := tasks.Ref("extract.go")
//		...
//	}
//
//	func init() { task.Register("report.go", &Report{}) }
package task

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"strings"

	tgerrors "github.com/maxkimambo/taskgraph/internal/errors"
)

// Task marks a struct as the task of its module.
type Task struct{}

// Runner is implemented by every registered task.
type Runner interface {
	Run(tasks Tasks, hooks Hooks) (any, error)
}

// Tasks gives a running task access to the outputs of its upstream modules.
type Tasks interface {
	Ref(path string) (any, error)
}

// Hooks gives a running task access to project resources.
type Hooks interface {
	Context() context.Context
	Var(name string) (string, bool)
	Connector(name string) (*sql.DB, error)
	SQL(ctx context.Context, connector, query string, args ...any) ([]map[string]any, error)
	Exec(ctx context.Context, connector, stmt string, args ...any) (int64, error)
}

// Errorf returns an error that the pipeline reports as a domain error.
// The message is shown without a stack trace.
func Errorf(format string, args ...any) error {
	return tgerrors.NewRuntimeError(tgerrors.CodeTaskFailed, fmt.Sprintf(format, args...), "")
}

// ModulePath returns the canonical form of a module reference: forward
// slashes, cleaned, relative, with a .go suffix.
func ModulePath(ref string) string {
	p := strings.ReplaceAll(strings.TrimSpace(ref), "\\", "/")
	if p == "" {
		return ""
	}
	p = strings.TrimPrefix(path.Clean(p), "./")
	p = strings.TrimPrefix(p, "/")
	if !strings.HasSuffix(p, ".go") {
		p += ".go"
	}
	return p
}

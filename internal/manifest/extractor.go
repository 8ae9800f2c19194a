package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
	"strconv"
	"strings"

	tgerrors "github.com/maxkimambo/taskgraph/internal/errors"
	"github.com/maxkimambo/taskgraph/task"
)

const (
	baseTypeName     = "Task"
	runMethodName    = "Run"
	refMethodName    = "Ref"
	tasksParamName   = "tasks"
	hooksParamName   = "hooks"
	directivePrefix  = "//task:"
	targetCall       = "Target"
	targetIterCall   = "TargetIterator"
	targetCallArgLen = 2
)

// Extract parses a task module and returns its manifest record.
// Parse failures are syntax errors; rule violations are structural errors.
func Extract(path string, src []byte) (*Module, error) {
	path = task.ModulePath(path)

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, parser.ParseComments)
	if err != nil {
		return nil, tgerrors.NewSourceSyntaxError(path, err)
	}

	if hasEntryGuard(file) {
		return nil, tgerrors.NewEntryGuardError(path)
	}

	taskName, err := findTaskType(file, path)
	if err != nil {
		return nil, err
	}

	methods := methodsOf(file, taskName)
	run := findMethod(methods, runMethodName)
	if run == nil {
		return nil, tgerrors.NewMissingRunError(path, taskName)
	}
	if err := checkRunParams(run, path, taskName); err != nil {
		return nil, err
	}

	targets, err := extractTargets(run.Doc, path)
	if err != nil {
		return nil, err
	}

	refs, err := extractRefs(methods, path)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(src)
	m := &Module{
		Path:     path,
		Hash:     hex.EncodeToString(sum[:]),
		TaskName: taskName,
		Targets:  targets,
		Refs:     refs,
		Config:   make(map[string]any),
		file:     file,
	}
	for _, name := range []string{RetriesVar, RetryDelaySecondsVar} {
		if v, ok := lookupLiteral(file, name); ok {
			m.Config[name] = v
		}
	}

	return m, nil
}

// hasEntryGuard reports a top-level func main. Task modules are loaded, never run directly.
func hasEntryGuard(file *ast.File) bool {
	for _, decl := range file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok && fn.Recv == nil && fn.Name.Name == "main" {
			return true
		}
	}
	return false
}

func findTaskType(file *ast.File, path string) (string, error) {
	var names []string
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts := spec.(*ast.TypeSpec)
			st, ok := ts.Type.(*ast.StructType)
			if !ok {
				continue
			}
			if embedsTask(st) {
				names = append(names, ts.Name.Name)
			}
		}
	}

	switch len(names) {
	case 0:
		return "", tgerrors.NewNoTaskError(path)
	case 1:
		return names[0], nil
	}
	return "", tgerrors.NewMultipleTasksError(path, names)
}

func embedsTask(st *ast.StructType) bool {
	for _, field := range st.Fields.List {
		if len(field.Names) != 0 {
			continue
		}
		typ := field.Type
		if star, ok := typ.(*ast.StarExpr); ok {
			typ = star.X
		}
		switch t := typ.(type) {
		case *ast.Ident:
			if t.Name == baseTypeName {
				return true
			}
		case *ast.SelectorExpr:
			if t.Sel.Name == baseTypeName {
				return true
			}
		}
	}
	return false
}

// methodsOf returns the methods declared on typeName in source order.
func methodsOf(file *ast.File, typeName string) []*ast.FuncDecl {
	var methods []*ast.FuncDecl
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv == nil || len(fn.Recv.List) == 0 {
			continue
		}
		if receiverName(fn.Recv.List[0].Type) == typeName {
			methods = append(methods, fn)
		}
	}
	return methods
}

func receiverName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverName(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		return receiverName(t.X)
	case *ast.IndexListExpr:
		return receiverName(t.X)
	}
	return ""
}

func findMethod(methods []*ast.FuncDecl, name string) *ast.FuncDecl {
	for _, fn := range methods {
		if fn.Name.Name == name {
			return fn
		}
	}
	return nil
}

// checkRunParams requires the parameters to be named tasks and hooks, in either order.
func checkRunParams(run *ast.FuncDecl, path, taskName string) error {
	var params []string
	for _, field := range run.Type.Params.List {
		if len(field.Names) == 0 {
			params = append(params, "_")
			continue
		}
		for _, id := range field.Names {
			params = append(params, id.Name)
		}
	}

	got := append([]string(nil), params...)
	sort.Strings(got)
	if len(got) != 2 || got[0] != hooksParamName || got[1] != tasksParamName {
		return tgerrors.NewRunSignatureError(path, taskName, params)
	}
	return nil
}

// extractTargets reads //task: directives from the Run doc comment.
// Directives naming other calls are ignored.
func extractTargets(doc *ast.CommentGroup, path string) ([]Target, error) {
	targets := []Target{}
	if doc == nil {
		return targets, nil
	}

	for _, c := range doc.List {
		if !strings.HasPrefix(c.Text, directivePrefix) {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(c.Text, directivePrefix))

		fset := token.NewFileSet()
		expr, err := parser.ParseExprFrom(fset, path, []byte(payload), 0)
		if err != nil {
			return nil, tgerrors.NewInvalidTargetError(path, payload).WithOriginalError(err)
		}
		call, ok := expr.(*ast.CallExpr)
		if !ok {
			return nil, tgerrors.NewInvalidTargetError(path, payload)
		}

		name := callName(call.Fun)
		if name != targetCall && name != targetIterCall {
			continue
		}
		if len(call.Args) != targetCallArgLen {
			return nil, tgerrors.NewInvalidTargetError(path, payload)
		}

		targets = append(targets, Target{
			Type:     sourceText(fset, payload, call.Args[0]),
			Loc:      sourceText(fset, payload, call.Args[1]),
			Iterator: name == targetIterCall,
		})
	}
	return targets, nil
}

func callName(fun ast.Expr) string {
	switch f := fun.(type) {
	case *ast.Ident:
		return f.Name
	case *ast.SelectorExpr:
		return f.Sel.Name
	}
	return ""
}

func sourceText(fset *token.FileSet, src string, node ast.Node) string {
	start := fset.Position(node.Pos()).Offset
	end := fset.Position(node.End()).Offset
	return src[start:end]
}

// extractRefs collects tasks.Ref literals from every method of the task type,
// in source order, keeping the first occurrence of each path.
func extractRefs(methods []*ast.FuncDecl, path string) ([]string, error) {
	refs := []string{}
	seen := make(map[string]bool)

	var walkErr error
	for _, fn := range methods {
		if fn.Body == nil {
			continue
		}
		ast.Inspect(fn.Body, func(n ast.Node) bool {
			if walkErr != nil {
				return false
			}
			call, ok := n.(*ast.CallExpr)
			if !ok || !isRefCall(call) {
				return true
			}
			if len(call.Args) > 1 {
				walkErr = tgerrors.NewReferenceArgsError(path, len(call.Args))
				return false
			}
			if len(call.Args) == 0 {
				return true
			}
			lit, ok := call.Args[0].(*ast.BasicLit)
			if !ok || lit.Kind != token.STRING {
				return true
			}
			raw, err := strconv.Unquote(lit.Value)
			if err != nil {
				return true
			}
			ref := task.ModulePath(raw)
			if ref == path {
				walkErr = tgerrors.NewSelfReferenceError(path)
				return false
			}
			if ref != "" && !seen[ref] {
				seen[ref] = true
				refs = append(refs, ref)
			}
			return true
		})
		if walkErr != nil {
			return nil, walkErr
		}
	}
	return refs, nil
}

func isRefCall(call *ast.CallExpr) bool {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != refMethodName {
		return false
	}
	x, ok := sel.X.(*ast.Ident)
	return ok && x.Name == tasksParamName
}

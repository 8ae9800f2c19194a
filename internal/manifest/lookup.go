package manifest

import (
	"go/ast"
	"go/token"
	"strconv"
)

// lookupLiteral finds the last literal assigned to name anywhere in file.
// Names and values are paired by position in const, var and assignment forms.
func lookupLiteral(file *ast.File, name string) (any, bool) {
	var (
		value any
		found bool
	)

	ast.Inspect(file, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.ValueSpec:
			for i, id := range x.Names {
				if id.Name != name || i >= len(x.Values) {
					continue
				}
				if v, ok := literalValue(x.Values[i]); ok {
					value, found = v, true
				}
			}
		case *ast.AssignStmt:
			if len(x.Lhs) != len(x.Rhs) {
				return true
			}
			for i, lhs := range x.Lhs {
				id, ok := lhs.(*ast.Ident)
				if !ok || id.Name != name {
					continue
				}
				if v, ok := literalValue(x.Rhs[i]); ok {
					value, found = v, true
				}
			}
		}
		return true
	})

	return value, found
}

func literalValue(expr ast.Expr) (any, bool) {
	switch e := expr.(type) {
	case *ast.ParenExpr:
		return literalValue(e.X)
	case *ast.BasicLit:
		switch e.Kind {
		case token.INT:
			n, err := strconv.ParseInt(e.Value, 0, 64)
			return n, err == nil
		case token.FLOAT:
			f, err := strconv.ParseFloat(e.Value, 64)
			return f, err == nil
		case token.STRING, token.CHAR:
			s, err := strconv.Unquote(e.Value)
			return s, err == nil
		}
	case *ast.Ident:
		switch e.Name {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	case *ast.UnaryExpr:
		if e.Op != token.SUB && e.Op != token.ADD {
			return nil, false
		}
		v, ok := literalValue(e.X)
		if !ok {
			return nil, false
		}
		if e.Op == token.ADD {
			return v, true
		}
		switch n := v.(type) {
		case int64:
			return -n, true
		case float64:
			return -n, true
		}
	}
	return nil, false
}

package target

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	tgerrors "github.com/maxkimambo/taskgraph/internal/errors"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Scope is what a location template can see.
type Scope struct {
	ProjectName string
	ProjectDir  string
	OutputDir   string
	Vars        map[string]string
}

// Evaluator turns target location source text into file paths.
//
// A location is a Go string literal whose content is an HCL template:
//
//	"${output}/${vars.region}/report.csv"
//	"${project.dir}/exports/${lower(project.name)}.json"
type Evaluator struct {
	scope Scope
	ctx   *hcl.EvalContext
}

func NewEvaluator(scope Scope) *Evaluator {
	vars := make(map[string]cty.Value, len(scope.Vars))
	for k, v := range scope.Vars {
		vars[k] = cty.StringVal(v)
	}
	varsVal := cty.MapValEmpty(cty.String)
	if len(vars) > 0 {
		varsVal = cty.MapVal(vars)
	}

	return &Evaluator{
		scope: scope,
		ctx: &hcl.EvalContext{
			Variables: map[string]cty.Value{
				"output": cty.StringVal(scope.OutputDir),
				"project": cty.ObjectVal(map[string]cty.Value{
					"name":   cty.StringVal(scope.ProjectName),
					"dir":    cty.StringVal(scope.ProjectDir),
					"output": cty.StringVal(scope.OutputDir),
				}),
				"vars": varsVal,
			},
			Functions: map[string]function.Function{
				"upper":     stdlib.UpperFunc,
				"lower":     stdlib.LowerFunc,
				"format":    stdlib.FormatFunc,
				"join":      stdlib.JoinFunc,
				"replace":   stdlib.ReplaceFunc,
				"trimspace": stdlib.TrimSpaceFunc,
			},
		},
	}
}

// Location evaluates loc for module. Relative results are taken from the project directory.
func (e *Evaluator) Location(module, loc string) (string, error) {
	raw, err := strconv.Unquote(loc)
	if err != nil {
		return "", tgerrors.NewSyntaxError(tgerrors.CodeTargetLocation,
			fmt.Sprintf("target location %s in %s is not a string literal", loc, module), module).
			WithOriginalError(err)
	}

	expr, diags := hclsyntax.ParseTemplate([]byte(raw), module, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return "", locationError(module, loc, diags)
	}

	val, diags := expr.Value(e.ctx)
	if diags.HasErrors() {
		return "", locationError(module, loc, diags)
	}

	val, err = convert.Convert(val, cty.String)
	if err != nil || val.IsNull() || !val.IsKnown() {
		return "", tgerrors.NewSyntaxError(tgerrors.CodeTargetLocation,
			fmt.Sprintf("target location %s in %s does not evaluate to a string", loc, module), module)
	}

	path := val.AsString()
	if path == "" {
		return "", tgerrors.NewSyntaxError(tgerrors.CodeTargetLocation,
			fmt.Sprintf("target location %s in %s is empty", loc, module), module)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.scope.ProjectDir, path)
	}
	return filepath.Clean(path), nil
}

func locationError(module, loc string, diags hcl.Diagnostics) error {
	return tgerrors.NewSyntaxError(tgerrors.CodeTargetLocation,
		fmt.Sprintf("invalid target location %s in %s", loc, module), module).
		WithOriginalError(diags)
}

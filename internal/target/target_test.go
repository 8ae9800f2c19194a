package target

import (
	"os"
	"path/filepath"
	"testing"

	tgerrors "github.com/maxkimambo/taskgraph/internal/errors"
	"github.com/maxkimambo/taskgraph/internal/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScope(t *testing.T) Scope {
	t.Helper()
	dir := t.TempDir()
	return Scope{
		ProjectName: "Sales",
		ProjectDir:  dir,
		OutputDir:   filepath.Join(dir, "output"),
		Vars:        map[string]string{"region": "emea"},
	}
}

func TestParseType(t *testing.T) {
	for tag, want := range map[string]Type{
		"CSV":       CSV,
		"task.JSON": JSON,
		"yaml":      YAML,
		`"Text"`:    Text,
		"TOML":      TOML,
	} {
		got, err := ParseType(tag)
		require.NoError(t, err, tag)
		assert.Equal(t, want, got)
	}

	_, err := ParseType("Parquet")
	require.Error(t, err)
	assert.True(t, tgerrors.IsSyntax(err))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyAlways, p)

	p, err = ParsePolicy("verify")
	require.NoError(t, err)
	assert.Equal(t, PolicyVerify, p)

	_, err = ParsePolicy("never")
	assert.Error(t, err)
}

func TestLocation(t *testing.T) {
	scope := testScope(t)
	e := NewEvaluator(scope)

	tests := []struct {
		loc  string
		want string
	}{
		{`"${output}/report.csv"`, filepath.Join(scope.OutputDir, "report.csv")},
		{"`${output}/${vars.region}/r.json`", filepath.Join(scope.OutputDir, "emea", "r.json")},
		{`"exports/${lower(project.name)}.yaml"`, filepath.Join(scope.ProjectDir, "exports", "sales.yaml")},
		{`"${project.output}/${upper(vars.region)}.txt"`, filepath.Join(scope.OutputDir, "EMEA.txt")},
		{`"${output}/${replace(\"a-b\", \"-\", \"_\")}.csv"`, filepath.Join(scope.OutputDir, "a_b.csv")},
		{`"/abs/plain.csv"`, "/abs/plain.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.loc, func(t *testing.T) {
			got, err := e.Location("report.go", tt.loc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocationSyntaxErrors(t *testing.T) {
	e := NewEvaluator(testScope(t))

	for _, loc := range []string{
		`outputPath`,
		`"${output"`,
		`"${missing}/x.csv"`,
		`"${vars.nope}/x.csv"`,
		`""`,
	} {
		t.Run(loc, func(t *testing.T) {
			_, err := e.Location("report.go", loc)
			require.Error(t, err)
			assert.True(t, tgerrors.IsSyntax(err), "got %v", err)
		})
	}
}

func module(targets ...manifest.Target) *manifest.Module {
	return &manifest.Module{Path: "report.go", Targets: targets}
}

func TestWriteAndLoadSingleTarget(t *testing.T) {
	scope := testScope(t)
	w := NewWriter(NewEvaluator(scope))
	m := module(manifest.Target{Type: "CSV", Loc: `"${output}/report.csv"`})

	exists, err := w.Exists(m)
	require.NoError(t, err)
	assert.False(t, exists)

	records := []map[string]any{
		{"region": "emea", "total": 10},
		{"region": "apac", "total": 7},
	}
	require.NoError(t, w.Write(m, records))

	data, err := os.ReadFile(filepath.Join(scope.OutputDir, "report.csv"))
	require.NoError(t, err)
	assert.Equal(t, "region,total\nemea,10\napac,7\n", string(data))

	exists, err = w.Exists(m)
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, w.Verify(m))

	loaded, err := w.Load(m)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"region", "total"}, {"emea", "10"}, {"apac", "7"}}, loaded)
}

func TestWriteMultipleTargets(t *testing.T) {
	scope := testScope(t)
	w := NewWriter(NewEvaluator(scope))
	m := module(
		manifest.Target{Type: "JSON", Loc: `"${output}/summary.json"`},
		manifest.Target{Type: "Text", Loc: `"${output}/summary.txt"`},
		manifest.Target{Type: "YAML", Loc: `"${output}/summary.yaml"`},
		manifest.Target{Type: "TOML", Loc: `"${output}/summary.toml"`},
	)
	summary := map[string]any{"rows": 2, "region": "emea"}

	require.NoError(t, w.Write(m, []any{summary, "2 rows", summary, summary}))

	loaded, err := w.Load(m)
	require.NoError(t, err)
	values, ok := loaded.([]any)
	require.True(t, ok)
	require.Len(t, values, 4)
	assert.Equal(t, map[string]any{"rows": float64(2), "region": "emea"}, values[0])
	assert.Equal(t, "2 rows", values[1])
	assert.Equal(t, map[string]any{"rows": 2, "region": "emea"}, values[2])
	assert.Equal(t, map[string]any{"rows": int64(2), "region": "emea"}, values[3])

	paths, err := w.Paths(m)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(scope.OutputDir, "summary.json"), paths[0])
}

func TestWriteShapeErrors(t *testing.T) {
	w := NewWriter(NewEvaluator(testScope(t)))

	two := module(
		manifest.Target{Type: "Text", Loc: `"${output}/a.txt"`},
		manifest.Target{Type: "Text", Loc: `"${output}/b.txt"`},
	)
	err := w.Write(two, []any{"only one"})
	require.Error(t, err)
	assert.True(t, tgerrors.IsCategory(err, tgerrors.ErrorCategoryTarget))

	csvTarget := module(manifest.Target{Type: "CSV", Loc: `"${output}/a.csv"`})
	err = w.Write(csvTarget, 42)
	require.Error(t, err)
	assert.True(t, tgerrors.IsCategory(err, tgerrors.ErrorCategoryTarget))

	iter := module(manifest.Target{Type: "JSON", Loc: `"${output}/parts"`, Iterator: true})
	err = w.Write(iter, []string{"not", "a", "map"})
	assert.True(t, tgerrors.IsCategory(err, tgerrors.ErrorCategoryTarget))
}

func TestIteratorTarget(t *testing.T) {
	scope := testScope(t)
	w := NewWriter(NewEvaluator(scope))
	m := module(manifest.Target{Type: "JSON", Loc: `"${output}/regions"`, Iterator: true})

	require.NoError(t, w.Write(m, map[string]any{
		"emea": []any{"de", "fr"},
		"apac": []any{"jp"},
	}))

	_, err := os.Stat(filepath.Join(scope.OutputDir, "regions", "emea.json"))
	require.NoError(t, err)

	exists, err := w.Exists(m)
	require.NoError(t, err)
	assert.True(t, exists)

	loaded, err := w.Load(m)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"apac": []any{"jp"},
		"emea": []any{"de", "fr"},
	}, loaded)
}

func TestVerifyMissingTarget(t *testing.T) {
	w := NewWriter(NewEvaluator(testScope(t)))
	m := module(manifest.Target{Type: "Text", Loc: `"${output}/never.txt"`})

	err := w.Verify(m)
	require.Error(t, err)

	pe, ok := tgerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, tgerrors.CodeTargetMissing, pe.Code)
}

func TestModuleWithoutTargets(t *testing.T) {
	w := NewWriter(NewEvaluator(testScope(t)))
	m := module()

	require.NoError(t, w.Write(m, "ignored"))
	exists, err := w.Exists(m)
	require.NoError(t, err)
	assert.False(t, exists)
	require.NoError(t, w.Verify(m))
}

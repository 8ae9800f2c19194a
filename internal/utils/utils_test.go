package utils

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableFormatter(t *testing.T) {
	table := NewTableFormatter("TASK", "OUTCOME")
	table.AddRow("extract.go", "SUCCESS")
	table.AddRow("load.go")

	want := strings.Join([]string{
		"┌────────────┬─────────┐",
		"│ TASK       │ OUTCOME │",
		"├────────────┼─────────┤",
		"│ extract.go │ SUCCESS │",
		"│ load.go    │         │",
		"└────────────┴─────────┘",
		"",
	}, "\n")
	assert.Equal(t, want, table.String())
	assert.Equal(t, 2, table.Len())
}

func TestSelectModules(t *testing.T) {
	known := []string{"extract.go", "reports/daily.go", "reports/weekly.go", "load.go"}

	tests := []struct {
		name      string
		selectors []string
		want      []string
		wantErr   bool
	}{
		{name: "plain path", selectors: []string{"load"}, want: []string{"load.go"}},
		{name: "unknown plain path is kept", selectors: []string{"./other.go"}, want: []string{"other.go"}},
		{name: "glob", selectors: []string{"reports/*"}, want: []string{"reports/daily.go", "reports/weekly.go"}},
		{name: "glob with suffix", selectors: []string{"reports/w*.go"}, want: []string{"reports/weekly.go"}},
		{name: "duplicates dropped", selectors: []string{"reports/daily", "reports/*"}, want: []string{"reports/daily.go", "reports/weekly.go"}},
		{name: "blank ignored", selectors: []string{" "}, want: nil},
		{name: "glob without match", selectors: []string{"missing/*"}, wantErr: true},
		{name: "bad glob", selectors: []string{"reports/[a"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectModules(known, tt.selectors)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPromptForMultipleItems(t *testing.T) {
	var out bytes.Buffer
	ok, err := PromptForMultipleItems(strings.NewReader("yes\n"), &out, false, "remove", []string{"a.csv", "b.csv"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "About to remove the following 2 item(s)")
	assert.Contains(t, out.String(), "  2. b.csv")

	ok, err = PromptForMultipleItems(strings.NewReader("n"), &out, false, "remove", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	out.Reset()
	ok, err = PromptForMultipleItems(strings.NewReader(""), &out, true, "remove", nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, out.String())
}

func TestBoxRender(t *testing.T) {
	out := NewBox(ErrorMessage, "Run failed").WithWidth(60).AddBullet("load.go: no rows").Render()

	assert.Contains(t, out, "✗ Run failed")
	assert.Contains(t, out, "• load.go: no rows")
	assert.True(t, strings.HasPrefix(out, "╭"))
	assert.Contains(t, Success("Done"), "✓ Done")
}

func TestWithWidthOnlyNarrows(t *testing.T) {
	full := NewBox(InfoMessage, "x").width
	assert.Equal(t, full, NewBox(InfoMessage, "x").WithWidth(full+100).width)
	assert.Equal(t, 20, NewBox(InfoMessage, "x").WithWidth(20).width)
	assert.Contains(t, Warning("Clean cancelled", "No targets were removed"), "⚠ Clean cancelled")
}

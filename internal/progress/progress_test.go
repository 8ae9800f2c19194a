package progress

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/maxkimambo/taskgraph/internal/events"
	"github.com/stretchr/testify/assert"
)

func TestCalculateETA(t *testing.T) {
	assert.Equal(t, time.Duration(0), CalculateETA(0, 10, time.Minute))
	assert.Equal(t, time.Duration(0), CalculateETA(10, 10, time.Minute))
	assert.Equal(t, 30*time.Second, CalculateETA(2, 3, time.Minute))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m 5s"},
		{2*time.Hour + 7*time.Minute, "2h 7m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in))
	}
}

func TestReport(t *testing.T) {
	r := NewReporter(time.Hour)
	assert.False(t, r.ShouldReport())

	out := r.Report(ProgressInfo{
		TotalTasks:        4,
		CompletedTasks:    1,
		FailedTasks:       1,
		RunningTasks:      []string{"load.go"},
		ElapsedTime:       10 * time.Second,
		EstimatedTimeLeft: 20 * time.Second,
	})

	assert.Contains(t, out, "Progress: 2/4 tasks done (50.0%), 1 failed")
	assert.Contains(t, out, "ETA: 20s")
	assert.Contains(t, out, "Running: load.go")
	assert.NotContains(t, out, "skipped")

	assert.True(t, NewReporter(0).ShouldReport())
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name string
		e    events.Event
		want string
	}{
		{
			name: "running",
			e:    events.Event{Kind: events.KindRunning, Task: "a.go", Index: 1, Total: 3, Attempt: 1},
			want: "[1 of 3] RUNNING a.go",
		},
		{
			name: "retry attempt",
			e:    events.Event{Kind: events.KindRunning, Task: "a.go", Index: 1, Total: 3, Attempt: 2},
			want: "[1 of 3] RUNNING a.go (attempt 2)",
		},
		{
			name: "success",
			e:    events.Event{Kind: events.KindSuccess, Task: "b.go", Index: 2, Total: 3, Elapsed: 2 * time.Second},
			want: "[2 of 3] SUCCESS b.go in 2s",
		},
		{
			name: "error",
			e: events.Event{Kind: events.KindError, Task: "c.go", Index: 3, Total: 3,
				Outcome: events.OutcomeDomainError, Elapsed: 5 * time.Second, Message: "no rows"},
			want: "[3 of 3] DOMAIN_ERROR c.go in 5s: no rows",
		},
		{
			name: "empty line",
			e:    events.Event{Kind: events.KindEmptyLine, Task: "c.go"},
			want: "",
		},
		{
			name: "diagnostic",
			e:    events.Event{Kind: events.KindDiagnostic, Message: "first\nsecond"},
			want: "    first\n    second",
		},
		{
			name: "skipped",
			e:    events.Event{Kind: events.KindSkipped, Task: "d.go", Index: 4, Total: 4, Message: "upstream a.go failed"},
			want: "[4 of 4] SKIPPED d.go: upstream a.go failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatEvent(tt.e))
		})
	}
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	log := events.NewLog("run-1", NewConsole(&buf))
	m := events.NewManager(log, false)

	m.Manage(t.Context(), "a.go", 1, 1, 1, func(ctx context.Context) (any, error) {
		return nil, errors.New("boom")
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"[1 of 1] RUNNING a.go",
		lines[1],
		"",
		"    boom",
	}, lines)
	assert.True(t, strings.HasPrefix(lines[1], "[1 of 1] GENERIC_ERROR a.go in "))
	assert.True(t, strings.HasSuffix(lines[1], ": boom"))
}

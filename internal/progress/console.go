package progress

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/maxkimambo/taskgraph/internal/events"
	"github.com/maxkimambo/taskgraph/internal/logger"
)

// Console renders the event stream of a run as it happens.
type Console struct {
	out      io.Writer
	running  lipgloss.Style
	success  lipgloss.Style
	failure  lipgloss.Style
	muted    lipgloss.Style
	warning  lipgloss.Style
	position lipgloss.Style
}

// NewConsole writes to out. Colours follow what the renderer detects for out.
func NewConsole(out io.Writer) *Console {
	r := lipgloss.NewRenderer(out)
	return &Console{
		out:      out,
		running:  r.NewStyle().Foreground(lipgloss.Color("86")),
		success:  r.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		failure:  r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		muted:    r.NewStyle().Foreground(lipgloss.Color("245")),
		warning:  r.NewStyle().Foreground(lipgloss.Color("178")),
		position: r.NewStyle().Faint(true),
	}
}

// Fire implements events.Sink. events.Log serializes calls.
func (c *Console) Fire(e events.Event) {
	if e.Kind == events.KindEmptyLine {
		fmt.Fprintln(c.out)
		return
	}
	if e.Kind == events.KindDiagnostic {
		fmt.Fprintln(c.out, c.muted.Render(indent(e.Message)))
		return
	}

	label := string(e.Kind)
	style := c.running
	switch e.Kind {
	case events.KindSuccess:
		style = c.success
	case events.KindError:
		label = string(e.Outcome)
		style = c.failure
	case events.KindSkipped, events.KindRetry:
		style = c.warning
	}

	fmt.Fprintf(c.out, "%s %s%s\n",
		c.position.Render(position(e)),
		style.Render(label),
		strings.TrimPrefix(describe(e), label))
}

// FormatEvent renders e as a single uncoloured line. EMPTY_LINE renders as "".
func FormatEvent(e events.Event) string {
	switch e.Kind {
	case events.KindEmptyLine:
		return ""
	case events.KindDiagnostic:
		return indent(e.Message)
	}
	return position(e) + " " + describe(e)
}

func position(e events.Event) string {
	if e.Total == 0 {
		return "[-]"
	}
	return fmt.Sprintf("[%d of %d]", e.Index, e.Total)
}

func describe(e events.Event) string {
	switch e.Kind {
	case events.KindRunning:
		if e.Attempt > 1 {
			return fmt.Sprintf("RUNNING %s (attempt %d)", e.Task, e.Attempt)
		}
		return "RUNNING " + e.Task
	case events.KindSuccess:
		return fmt.Sprintf("SUCCESS %s in %s", e.Task, FormatDuration(e.Elapsed))
	case events.KindError:
		return fmt.Sprintf("%s %s in %s: %s", e.Outcome, e.Task, FormatDuration(e.Elapsed), e.Message)
	case events.KindRetry:
		return fmt.Sprintf("RETRY %s attempt %d in %s", e.Task, e.Attempt, FormatDuration(e.Elapsed))
	case events.KindSkipped:
		return fmt.Sprintf("SKIPPED %s: %s", e.Task, e.Message)
	}
	return fmt.Sprintf("%s %s", e.Kind, e.Task)
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(s, "\n", "\n    ")
}

// OpSink forwards every event to the operational log at debug level.
func OpSink() events.Sink {
	return events.SinkFunc(func(e events.Event) {
		if e.Kind == events.KindEmptyLine {
			return
		}
		logger.Op.WithFields(map[string]interface{}{
			"run_id":  e.RunID,
			"seq":     e.Seq,
			"kind":    string(e.Kind),
			"task":    e.Task,
			"attempt": e.Attempt,
			"outcome": string(e.Outcome),
		}).Debug(firstLine(e.Message))
	})
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

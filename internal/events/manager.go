package events

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	tgerrors "github.com/maxkimambo/taskgraph/internal/errors"
)

// Execution is the record of one attempt of one task.
type Execution struct {
	Task        string
	Attempt     int
	Outcome     Outcome
	Output      any
	Err         error
	Diagnostic  string
	Start       time.Time
	End         time.Time
	FromTargets bool
}

// Duration is the time between the start and end of the attempt.
func (x *Execution) Duration() time.Duration {
	if x.End.IsZero() {
		return 0
	}
	return x.End.Sub(x.Start)
}

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

// Classify maps an attempt error to its outcome.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		return OutcomeGenericError
	}
	if tgerrors.IsSyntax(err) {
		return OutcomeSyntaxError
	}
	if tgerrors.IsDomain(err) {
		return OutcomeDomainError
	}
	return OutcomeGenericError
}

// Manager wraps task invocations with the event protocol.
type Manager struct {
	log       *Log
	fullTrace bool
}

// NewManager returns a manager that fires into log. fullTrace selects full
// diagnostics for syntax and generic errors instead of the condensed form.
func NewManager(log *Log, fullTrace bool) *Manager {
	return &Manager{log: log, fullTrace: fullTrace}
}

// Manage runs fn as attempt number attempt of task name, the index-th of total.
// It fires RUNNING, then SUCCESS or ERROR; every error is followed by an
// EMPTY_LINE separator and a DIAGNOSTIC event. Panics are recovered.
func (m *Manager) Manage(ctx context.Context, name string, index, total, attempt int, fn func(context.Context) (any, error)) *Execution {
	exec := &Execution{
		Task:    name,
		Attempt: attempt,
		Outcome: OutcomeRunning,
		Start:   time.Now(),
	}
	base := Event{Task: name, Index: index, Total: total, Attempt: attempt}

	running := base
	running.Kind = KindRunning
	running.Outcome = OutcomeRunning
	m.log.Fire(running)

	out, err := invoke(ctx, fn)
	exec.End = time.Now()
	elapsed := exec.Duration()

	if err == nil {
		exec.Outcome = OutcomeSuccess
		exec.Output = out

		done := base
		done.Kind = KindSuccess
		done.Outcome = OutcomeSuccess
		done.Elapsed = elapsed
		m.log.Fire(done)
		return exec
	}

	exec.Err = err
	exec.Outcome = Classify(err)
	exec.Diagnostic = m.diagnostic(exec.Outcome, err)

	failed := base
	failed.Kind = KindError
	failed.Outcome = exec.Outcome
	failed.Elapsed = elapsed
	failed.Message = firstLine(err.Error())
	m.log.Fire(failed)

	m.log.Fire(Event{Kind: KindEmptyLine, Task: name, Attempt: attempt})

	diag := base
	diag.Kind = KindDiagnostic
	diag.Outcome = exec.Outcome
	diag.Message = exec.Diagnostic
	m.log.Fire(diag)

	return exec
}

// Skip records a task that never ran because an upstream module failed.
func (m *Manager) Skip(name string, index, total int, reason string) *Execution {
	now := time.Now()
	m.log.Fire(Event{
		Kind:    KindSkipped,
		Task:    name,
		Index:   index,
		Total:   total,
		Outcome: OutcomeSkipped,
		Message: reason,
	})
	return &Execution{
		Task:       name,
		Outcome:    OutcomeSkipped,
		Diagnostic: reason,
		Start:      now,
		End:        now,
	}
}

// Retry announces that a failed attempt will be repeated after delay.
func (m *Manager) Retry(name string, index, total, nextAttempt int, delay time.Duration) {
	m.log.Fire(Event{
		Kind:    KindRetry,
		Task:    name,
		Index:   index,
		Total:   total,
		Attempt: nextAttempt,
		Elapsed: delay,
		Message: fmt.Sprintf("retrying in %s", delay),
	})
}

func invoke(ctx context.Context, fn func(context.Context) (any, error)) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}

// diagnostic renders the error text kept on the execution record. Domain
// errors show their message only.
func (m *Manager) diagnostic(outcome Outcome, err error) string {
	if outcome == OutcomeDomainError {
		return err.Error()
	}
	if !m.fullTrace {
		return condensed(err)
	}
	return full(err)
}

// condensed is the innermost cause on a single line.
func condensed(err error) string {
	inner := err
	for {
		next := errors.Unwrap(inner)
		if next == nil {
			break
		}
		inner = next
	}
	if inner == err {
		return firstLine(err.Error())
	}
	return fmt.Sprintf("%s (caused by: %s)", firstLine(err.Error()), firstLine(inner.Error()))
}

// full lists the whole error chain, then the stack of a recovered panic.
func full(err error) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		sb.WriteString("\ncaused by: ")
		sb.WriteString(cause.Error())
	}

	var pe *PanicError
	if errors.As(err, &pe) && len(pe.Stack) > 0 {
		sb.WriteString("\n\n")
		sb.Write(pe.Stack)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

package events

import (
	"sync"
	"time"
)

// Kind identifies what an event reports.
type Kind string

const (
	KindRunning    Kind = "RUNNING"
	KindSuccess    Kind = "SUCCESS"
	KindError      Kind = "ERROR"
	KindEmptyLine  Kind = "EMPTY_LINE"
	KindDiagnostic Kind = "DIAGNOSTIC"
	KindRetry      Kind = "RETRY"
	KindSkipped    Kind = "SKIPPED"
)

// Outcome is the state of a single task attempt.
type Outcome string

const (
	OutcomePending      Outcome = "PENDING"
	OutcomeRunning      Outcome = "RUNNING"
	OutcomeSuccess      Outcome = "SUCCESS"
	OutcomeDomainError  Outcome = "DOMAIN_ERROR"
	OutcomeSyntaxError  Outcome = "SYNTAX_ERROR"
	OutcomeGenericError Outcome = "GENERIC_ERROR"
	OutcomeSkipped      Outcome = "SKIPPED"
)

// Failed reports whether the outcome is one of the error states.
func (o Outcome) Failed() bool {
	switch o {
	case OutcomeDomainError, OutcomeSyntaxError, OutcomeGenericError:
		return true
	}
	return false
}

// Terminal reports whether no further transition can happen.
func (o Outcome) Terminal() bool {
	return o == OutcomeSuccess || o == OutcomeSkipped || o.Failed()
}

// Event is one entry in a run's event stream.
type Event struct {
	Seq     int           `json:"seq"`
	RunID   string        `json:"run_id"`
	Time    time.Time     `json:"time"`
	Kind    Kind          `json:"kind"`
	Task    string        `json:"task,omitempty"`
	Index   int           `json:"index,omitempty"`
	Total   int           `json:"total,omitempty"`
	Attempt int           `json:"attempt,omitempty"`
	Elapsed time.Duration `json:"elapsed,omitempty"`
	Outcome Outcome       `json:"outcome,omitempty"`
	Message string        `json:"message,omitempty"`
}

// Sink receives events in the order they are fired.
type Sink interface {
	Fire(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) Fire(e Event) { f(e) }

// Log records every event of a run and forwards them to its sinks.
type Log struct {
	mu     sync.Mutex
	runID  string
	seq    int
	events []Event
	sinks  []Sink
}

func NewLog(runID string, sinks ...Sink) *Log {
	return &Log{runID: runID, sinks: sinks}
}

// Fire stamps e with the next sequence number and run ID. Sinks are called
// under the log's lock so every sink sees the same order.
func (l *Log) Fire(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	e.Seq = l.seq
	e.RunID = l.runID
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	l.events = append(l.events, e)

	for _, s := range l.sinks {
		s.Fire(e)
	}
}

// Events returns a copy of everything fired so far.
func (l *Log) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func (l *Log) RunID() string {
	return l.runID
}

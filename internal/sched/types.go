package sched

import (
	"context"
	"time"
)

// Outcome is the tri-state result of a step's work function.
// The zero value is deliberately invalid so an unset Outcome can't be
// mistaken for success.
type Outcome int

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeFailed
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skip"
	default:
		return "unknown"
	}
}

// Decision is the gate's verdict for one step in one cycle.
type Decision int

const (
	DecisionRun Decision = iota + 1
	DecisionSkipCompleted
	DecisionSkipInProgress
	DecisionSkipWindowClosed
)

func (d Decision) String() string {
	switch d {
	case DecisionRun:
		return "run"
	case DecisionSkipCompleted:
		return "skip_completed"
	case DecisionSkipInProgress:
		return "skip_in_progress"
	case DecisionSkipWindowClosed:
		return "skip_window_closed"
	default:
		return "unknown"
	}
}

// Recurrence is a step's fixed recurrence window.
type Recurrence int

const (
	RecurNone Recurrence = iota
	RecurDaily
	RecurWeekly
)

func (r Recurrence) String() string {
	switch r {
	case RecurDaily:
		return "daily"
	case RecurWeekly:
		return "weekly"
	default:
		return "none"
	}
}

// DayGate restricts when a step may be attempted: only on Weekday, at or
// after AfterHour o'clock, in the canonical timezone. It reopens by itself
// the instant the wall clock enters it.
type DayGate struct {
	Weekday   time.Weekday
	AfterHour int
}

// Open reports whether now (already converted to the canonical timezone)
// falls inside the gate.
func (g DayGate) Open(now time.Time) bool {
	return now.Weekday() == g.Weekday && now.Hour() >= g.AfterHour
}

// WorkFunc does a step's actual work. It is opaque to the scheduler: only
// the tri-state Outcome and the message are inspected. A non-nil error is
// recorded as OutcomeFailed; a panic is caught by the runner and recorded
// the same way.
type WorkFunc func(ctx context.Context, now time.Time) (Outcome, string, error)

// Step is the static definition of one schedulable unit of work.
// Supplied at process start; never persisted.
type Step struct {
	Name       string
	Recurrence Recurrence
	Gate       *DayGate // nil means always attemptable
	Run        WorkFunc
}

// StepResult is the per-cycle record of what happened to one step.
// Used for logging and notification only; never persisted.
type StepResult struct {
	Step     string
	Decision Decision
	Outcome  Outcome // zero unless Decision == DecisionRun
	Message  string
	Err      error // event-store failure, if any
	Took     time.Duration
}

// Failed reports whether the step needs operator attention this cycle.
func (r StepResult) Failed() bool {
	return r.Err != nil || r.Outcome == OutcomeFailed
}

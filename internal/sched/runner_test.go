package sched

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"bookmill/internal/storage"
	logx "bookmill/pkg/logx"
)

func staticClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func workReturning(out Outcome, msg string) WorkFunc {
	return func(ctx context.Context, now time.Time) (Outcome, string, error) {
		return out, msg, nil
	}
}

func TestRunnerBracketsSuccess(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	r := NewRunner(store, logx.Nop())
	now := time.Date(2025, 1, 11, 10, 0, 0, 0, time.UTC)
	r.clock = staticClock(now)

	step := Step{Name: "LOAD_CATALOG", Run: workReturning(OutcomeSuccess, "42000 books")}
	outcome, msg, err := r.Run(context.Background(), step, now)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if outcome != OutcomeSuccess || msg != "42000 books" {
		t.Fatalf("outcome = %v msg = %q", outcome, msg)
	}

	events := store.byStep(step.Name)
	if len(events) != 2 {
		t.Fatalf("got %d events, want processing+success", len(events))
	}
	if events[0].Status != storage.StatusProcessing || events[1].Status != storage.StatusSuccess {
		t.Fatalf("event statuses = %v, %v", events[0].Status, events[1].Status)
	}
}

func TestRunnerConvertsErrorToFailed(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	r := NewRunner(store, logx.Nop())

	step := Step{Name: "DOWNLOAD_BOOKS", Run: func(ctx context.Context, now time.Time) (Outcome, string, error) {
		return 0, "", errors.New("mirror unreachable")
	}}
	outcome, msg, err := r.Run(context.Background(), step, time.Now())
	if err != nil {
		t.Fatalf("store error not expected: %v", err)
	}
	if outcome != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", outcome)
	}
	if msg != "mirror unreachable" {
		t.Fatalf("msg = %q", msg)
	}

	events := store.byStep(step.Name)
	if len(events) != 2 || events[1].Status != storage.StatusFailed {
		t.Fatalf("events = %+v, want processing+failed", events)
	}
}

func TestRunnerCatchesPanic(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	r := NewRunner(store, logx.Nop())

	step := Step{Name: "PARSE_NOVEL", Run: func(ctx context.Context, now time.Time) (Outcome, string, error) {
		panic("nil chapter index")
	}}
	outcome, msg, err := r.Run(context.Background(), step, time.Now())
	if err != nil {
		t.Fatalf("store error not expected: %v", err)
	}
	if outcome != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", outcome)
	}
	if !strings.Contains(msg, "panic") || !strings.Contains(msg, "nil chapter index") {
		t.Fatalf("msg = %q, want panic detail", msg)
	}

	events := store.byStep(step.Name)
	if len(events) != 2 || events[1].Status != storage.StatusFailed {
		t.Fatalf("events = %+v, want processing+failed", events)
	}
}

// SKIP writes no terminal event, so a no-window step keeps running every
// cycle instead of looking "completed".
func TestRunnerSkipWritesNoTerminalEvent(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	r := NewRunner(store, logx.Nop())
	gate := NewGate(store, logx.Nop())

	step := Step{Name: "PROCESS_BOOKS_FROM_CSV", Run: workReturning(OutcomeSkipped, "queue empty")}
	outcome, _, err := r.Run(context.Background(), step, time.Now())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("outcome = %v, want skip", outcome)
	}

	events := store.byStep(step.Name)
	if len(events) != 1 || events[0].Status != storage.StatusProcessing {
		t.Fatalf("events = %+v, want only the processing marker", events)
	}

	if d := mustDecide(t, gate, step, time.Now()); d != DecisionRun {
		t.Fatalf("next decide = %v, want run", d)
	}
}

func TestRunnerAbandonsStepWhenProcessingAppendFails(t *testing.T) {
	t.Parallel()
	appendErr := errors.New("disk full")
	store := &memStore{failAppend: appendErr}
	r := NewRunner(store, logx.Nop())

	invoked := false
	step := Step{Name: "LOAD_CATALOG", Run: func(ctx context.Context, now time.Time) (Outcome, string, error) {
		invoked = true
		return OutcomeSuccess, "", nil
	}}

	outcome, _, err := r.Run(context.Background(), step, time.Now())
	if !errors.Is(err, appendErr) {
		t.Fatalf("err = %v, want %v", err, appendErr)
	}
	if outcome != 0 {
		t.Fatalf("outcome = %v, want unset", outcome)
	}
	if invoked {
		t.Fatal("work function ran without a durable processing marker")
	}
}

func TestRunnerInvalidOutcomeBecomesFailed(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	r := NewRunner(store, logx.Nop())

	step := Step{Name: "RENDER_MEDIA", Run: workReturning(Outcome(42), "")}
	outcome, msg, err := r.Run(context.Background(), step, time.Now())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if outcome != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", outcome)
	}
	if !strings.Contains(msg, "invalid outcome") {
		t.Fatalf("msg = %q", msg)
	}
}

package sched

import (
	"context"
	"errors"
	"testing"
	"time"

	"bookmill/internal/storage"
	logx "bookmill/pkg/logx"
)

func mustDecide(t *testing.T, g *Gate, step Step, now time.Time) Decision {
	t.Helper()
	d, err := g.Decide(context.Background(), step, now)
	if err != nil {
		t.Fatalf("Decide(%s, %v) error: %v", step.Name, now, err)
	}
	return d
}

func appendEvent(t *testing.T, store *memStore, step string, status storage.Status, at time.Time) {
	t.Helper()
	if err := store.Append(context.Background(), storage.Event{At: at, Step: step, Status: status}); err != nil {
		t.Fatalf("append: %v", err)
	}
}

// Success within the current week keeps the step skipped until the week
// rolls over, no matter how often the gate is asked.
func TestDecideWeeklyIdempotent(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	gate := NewGate(store, logx.Nop())
	step := Step{Name: "LOAD_CATALOG", Recurrence: RecurWeekly}

	// Week of Monday 2025-01-06.
	appendEvent(t, store, step.Name, storage.StatusSuccess,
		time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC))

	later := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if d := mustDecide(t, gate, step, later); d != DecisionSkipCompleted {
			t.Fatalf("call %d: decision = %v, want skip_completed", i, d)
		}
	}

	// Next Monday the window resets.
	nextWeek := time.Date(2025, 1, 13, 8, 0, 0, 0, time.UTC)
	if d := mustDecide(t, gate, step, nextWeek); d != DecisionRun {
		t.Fatalf("after rollover: decision = %v, want run", d)
	}
}

// Failures retry every eligible cycle until a success lands.
func TestDecideRetriesFailuresUntilSuccess(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	gate := NewGate(store, logx.Nop())
	step := Step{Name: "DOWNLOAD_BOOKS", Recurrence: RecurWeekly}

	appendEvent(t, store, step.Name, storage.StatusFailed,
		time.Date(2025, 1, 7, 9, 0, 0, 0, time.UTC))

	now := time.Date(2025, 1, 7, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if d := mustDecide(t, gate, step, now); d != DecisionRun {
			t.Fatalf("call %d: decision = %v, want run", i, d)
		}
		// Another failure recorded by the (simulated) run.
		appendEvent(t, store, step.Name, storage.StatusFailed, now)
		now = now.Add(time.Hour)
	}

	appendEvent(t, store, step.Name, storage.StatusSuccess, now)
	if d := mustDecide(t, gate, step, now.Add(time.Minute)); d != DecisionSkipCompleted {
		t.Fatalf("after success: decision = %v, want skip_completed", d)
	}
}

func TestDecideProcessingBlocksIndefinitely(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	gate := NewGate(store, logx.Nop())
	step := Step{Name: "LOAD_CATALOG", Recurrence: RecurWeekly}

	// A crash mid-step left a dangling processing event days ago.
	appendEvent(t, store, step.Name, storage.StatusProcessing,
		time.Date(2025, 1, 6, 1, 0, 0, 0, time.UTC))

	// No staleness threshold: still skipped at the end of the week.
	now := time.Date(2025, 1, 12, 23, 0, 0, 0, time.UTC)
	if d := mustDecide(t, gate, step, now); d != DecisionSkipInProgress {
		t.Fatalf("decision = %v, want skip_in_progress", d)
	}

	// The operator override unblocks it.
	appendEvent(t, store, step.Name, storage.StatusFailed, now)
	if d := mustDecide(t, gate, step, now.Add(time.Minute)); d != DecisionRun {
		t.Fatalf("after mark failed: decision = %v, want run", d)
	}
}

func TestDecidePendingMeansRun(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	gate := NewGate(store, logx.Nop())
	step := Step{Name: "PARSE_NOVEL", Recurrence: RecurDaily}

	appendEvent(t, store, step.Name, storage.StatusPending,
		time.Date(2025, 1, 7, 8, 0, 0, 0, time.UTC))

	now := time.Date(2025, 1, 7, 9, 0, 0, 0, time.UTC)
	if d := mustDecide(t, gate, step, now); d != DecisionRun {
		t.Fatalf("decision = %v, want run", d)
	}
}

// Day-gated steps close and reopen purely on the wall clock.
func TestDecideDayGateBoundary(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	gate := NewGate(store, logx.Nop())
	step := Step{
		Name:       "LOAD_CATALOG",
		Recurrence: RecurWeekly,
		Gate:       &DayGate{Weekday: time.Saturday},
	}

	// Friday 23:59: closed.
	friday := time.Date(2025, 1, 10, 23, 59, 0, 0, time.UTC)
	if d := mustDecide(t, gate, step, friday); d != DecisionSkipWindowClosed {
		t.Fatalf("friday: decision = %v, want skip_window_closed", d)
	}

	// Saturday 00:01, no prior event this week: runs. No event had to be
	// written while the gate was closed for it to reopen.
	saturday := time.Date(2025, 1, 11, 0, 1, 0, 0, time.UTC)
	if d := mustDecide(t, gate, step, saturday); d != DecisionRun {
		t.Fatalf("saturday: decision = %v, want run", d)
	}
}

// Full walk of the catalog-load lifecycle across a week boundary.
func TestDecideCatalogScenario(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	gate := NewGate(store, logx.Nop())
	step := Step{
		Name:       "LOAD_CATALOG",
		Recurrence: RecurWeekly,
		Gate:       &DayGate{Weekday: time.Saturday, AfterHour: 9},
	}

	// Saturday 2025-01-11 10:00, week of Monday 01-06, no prior events.
	saturday := time.Date(2025, 1, 11, 10, 0, 0, 0, time.UTC)
	if d := mustDecide(t, gate, step, saturday); d != DecisionRun {
		t.Fatalf("first attempt: decision = %v, want run", d)
	}

	// Runner brackets the work.
	appendEvent(t, store, step.Name, storage.StatusProcessing, saturday)
	appendEvent(t, store, step.Name, storage.StatusSuccess, saturday.Add(20*time.Minute))

	// Same day 15:00: already satisfied this week.
	if d := mustDecide(t, gate, step, saturday.Add(5*time.Hour)); d != DecisionSkipCompleted {
		t.Fatalf("same week: decision = %v, want skip_completed", d)
	}

	// Monday 00:01 next week: fresh window, but the gate is shut.
	monday := time.Date(2025, 1, 13, 0, 1, 0, 0, time.UTC)
	if d := mustDecide(t, gate, step, monday); d != DecisionSkipWindowClosed {
		t.Fatalf("next week monday: decision = %v, want skip_window_closed", d)
	}
}

// Steps without a window never consult the event log.
func TestDecideNoWindowAlwaysEligible(t *testing.T) {
	t.Parallel()
	store := &memStore{failLatest: errors.New("store must not be read")}
	gate := NewGate(store, logx.Nop())
	step := Step{Name: "PROCESS_BOOKS_FROM_CSV"}

	now := time.Date(2025, 1, 7, 9, 0, 0, 0, time.UTC)
	if d := mustDecide(t, gate, step, now); d != DecisionRun {
		t.Fatalf("decision = %v, want run", d)
	}
}

func TestDecideSurfacesStoreErrors(t *testing.T) {
	t.Parallel()
	readErr := errors.New("disk gone")
	store := &memStore{failLatest: readErr}
	gate := NewGate(store, logx.Nop())
	step := Step{Name: "LOAD_CATALOG", Recurrence: RecurWeekly}

	_, err := gate.Decide(context.Background(), step, time.Now())
	if !errors.Is(err, readErr) {
		t.Fatalf("err = %v, want %v", err, readErr)
	}
}

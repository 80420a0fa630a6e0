package sched

import (
	"context"
	"time"

	"bookmill/internal/storage"
	logx "bookmill/pkg/logx"
)

// Gate decides whether a step is due. It only reads the event log; it
// never writes.
type Gate struct {
	store storage.Store
	log   logx.Logger
}

func NewGate(store storage.Store, log logx.Logger) *Gate {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gate{store: store, log: log}
}

// Decide evaluates step at now (canonical timezone).
//
// The day/time gate is checked first: it overrides everything else, and a
// closed gate never needs the store. Then the latest event within the
// current window settles it:
//
//	no event    -> run
//	success     -> skip, window already satisfied
//	processing  -> skip, someone is (or appears to be) on it
//	anything else (failed, pending) -> run; failures retry forever
//
// A processing event with no terminal sibling — e.g. after a crash
// mid-step — keeps the step skipped until an operator marks it failed
// (bookmillctl mark). There is deliberately no staleness timeout.
func (g *Gate) Decide(ctx context.Context, step Step, now time.Time) (Decision, error) {
	if step.Gate != nil && !step.Gate.Open(now) {
		return DecisionSkipWindowClosed, nil
	}

	// No recurrence window: always eligible once the gate is open. The
	// work function decides each cycle whether there is anything to do.
	start, windowed := windowStart(step.Recurrence, now)
	if !windowed {
		return DecisionRun, nil
	}

	latest, ok, err := g.store.Latest(ctx, step.Name, start)
	if err != nil {
		return 0, err
	}
	if !ok {
		return DecisionRun, nil
	}

	switch latest.Status {
	case storage.StatusSuccess:
		return DecisionSkipCompleted, nil
	case storage.StatusProcessing:
		return DecisionSkipInProgress, nil
	default:
		return DecisionRun, nil
	}
}

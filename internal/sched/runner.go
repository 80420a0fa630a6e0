package sched

import (
	"context"
	"fmt"
	"time"

	"bookmill/internal/storage"
	logx "bookmill/pkg/logx"
)

// Runner executes one step's work function, bracketed by event writes:
// exactly one processing event before, exactly one terminal event after —
// unless the work reports SKIP, which writes nothing at all, so a future
// Decide never mistakes "nothing to do" for "completed this window".
type Runner struct {
	store storage.Store
	log   logx.Logger
	clock func() time.Time
}

func NewRunner(store storage.Store, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{store: store, log: log, clock: time.Now}
}

// Run invokes step's work at now. The returned error is an event-store
// failure; work-function failures (including panics) are folded into
// OutcomeFailed and never propagate.
func (r *Runner) Run(ctx context.Context, step Step, now time.Time) (Outcome, string, error) {
	log := r.log.With(logx.String("step", step.Name))

	if err := r.store.Append(ctx, storage.Event{
		At:     r.clock(),
		Step:   step.Name,
		Status: storage.StatusProcessing,
	}); err != nil {
		// Without a durable processing marker the run bracket would be
		// broken, so the step is abandoned until the next cycle.
		log.Error("event append failed; abandoning step", logx.Err(err))
		return 0, "", err
	}

	outcome, msg := r.invoke(ctx, step, now)

	var status storage.Status
	switch outcome {
	case OutcomeSuccess:
		status = storage.StatusSuccess
	case OutcomeFailed:
		status = storage.StatusFailed
	case OutcomeSkipped:
		// Nothing to do this cycle; no terminal event.
		return outcome, msg, nil
	}

	if err := r.store.Append(ctx, storage.Event{
		At:     r.clock(),
		Step:   step.Name,
		Status: status,
	}); err != nil {
		// The work already ran; losing the terminal event means the next
		// cycle may run it again. Loud is all we can be here.
		log.Error("terminal event append failed", logx.Err(err),
			logx.String("status", string(status)))
		return outcome, msg, err
	}
	return outcome, msg, nil
}

// invoke runs the work function, converting every failure mode — error
// return, panic, out-of-range outcome — into OutcomeFailed. A defective
// step must never take down its runner.
func (r *Runner) invoke(ctx context.Context, step Step, now time.Time) (outcome Outcome, msg string) {
	defer func() {
		if rec := recover(); rec != nil {
			outcome = OutcomeFailed
			msg = fmt.Sprintf("panic: %v", rec)
			r.log.Error("step panicked",
				logx.String("step", step.Name),
				logx.Any("panic", rec),
				logx.Stack(logx.StackTrace(3, 16)))
		}
	}()

	out, m, err := step.Run(ctx, now)
	if err != nil {
		if m == "" {
			m = err.Error()
		}
		return OutcomeFailed, m
	}
	switch out {
	case OutcomeSuccess, OutcomeFailed, OutcomeSkipped:
		return out, m
	default:
		return OutcomeFailed, fmt.Sprintf("work returned invalid outcome %d", out)
	}
}

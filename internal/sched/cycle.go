package sched

import (
	"context"
	"time"

	"bookmill/internal/storage"
	logx "bookmill/pkg/logx"
)

// Orchestrator evaluates and runs one subsystem's fixed, ordered step list
// once per cycle. A step's failure, skip or store error never blocks the
// steps after it; ordering dependencies between steps exist only through
// declaration order.
type Orchestrator struct {
	name   string
	steps  []Step
	gate   *Gate
	runner *Runner
	log    logx.Logger
}

func NewOrchestrator(name string, steps []Step, store storage.Store, log logx.Logger) *Orchestrator {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("subsystem", name))
	return &Orchestrator{
		name:   name,
		steps:  steps,
		gate:   NewGate(store, log),
		runner: NewRunner(store, log),
		log:    log,
	}
}

func (o *Orchestrator) Name() string { return o.name }

// RunCycle processes every step in order and returns their results.
// It always returns one result per step.
func (o *Orchestrator) RunCycle(ctx context.Context, now time.Time) []StepResult {
	results := make([]StepResult, 0, len(o.steps))
	for _, step := range o.steps {
		results = append(results, o.runStep(ctx, step, now))
	}
	return results
}

func (o *Orchestrator) runStep(ctx context.Context, step Step, now time.Time) StepResult {
	log := o.log.With(logx.String("step", step.Name))
	res := StepResult{Step: step.Name}

	decision, err := o.gate.Decide(ctx, step, now)
	if err != nil {
		// Undetected durability loss risks duplicate or missed windowed
		// work, so this is loud. The step is abandoned for this cycle.
		log.Error("event store read failed; abandoning step", logx.Err(err))
		res.Err = err
		return res
	}
	res.Decision = decision

	if decision != DecisionRun {
		log.Info("step skipped", logx.String("decision", decision.String()))
		return res
	}

	started := time.Now()
	outcome, msg, err := o.runner.Run(ctx, step, now)
	res.Outcome = outcome
	res.Message = msg
	res.Err = err
	res.Took = time.Since(started)

	switch {
	case err != nil && outcome == 0:
		// Append of the processing event failed; work never ran.
	case outcome == OutcomeFailed:
		log.Warn("step failed", logx.String("msg", msg), logx.Duration("took", res.Took))
	default:
		log.Info("step finished",
			logx.String("outcome", outcome.String()),
			logx.String("msg", msg),
			logx.Duration("took", res.Took))
	}
	return res
}

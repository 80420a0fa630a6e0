package sched

import (
	"context"
	"sync"
	"time"

	logx "bookmill/pkg/logx"
)

// FailureFunc is called after a cycle for every step result that needs
// attention. It must not block; the notifier behind it queues.
type FailureFunc func(subsystem string, res StepResult)

// Loop is the top-level polling loop. Each iteration runs every subsystem's
// orchestrator in declared order; subsystem A fully completes (including
// its own failure isolation) before B begins. All state lives in the event
// log, so the loop itself is restart-safe.
type Loop struct {
	subsystems []*Orchestrator
	loc        *time.Location
	log        logx.Logger
	clock      func() time.Time
	onFailure  FailureFunc

	mu       sync.Mutex
	interval time.Duration

	runCount uint64
}

func NewLoop(subsystems []*Orchestrator, interval time.Duration, loc *time.Location, log logx.Logger) *Loop {
	if loc == nil {
		loc = time.UTC
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Loop{
		subsystems: subsystems,
		loc:        loc,
		log:        log,
		clock:      time.Now,
		interval:   interval,
	}
}

// OnFailure installs the failure hook. Call before Run.
func (l *Loop) OnFailure(fn FailureFunc) { l.onFailure = fn }

// SetInterval changes the sleep between cycles; takes effect from the next
// sleep. Safe to call while the loop runs (config hot reload).
func (l *Loop) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	l.interval = d
	l.mu.Unlock()
}

func (l *Loop) getInterval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interval
}

// Run blocks until ctx is done. The first cycle starts immediately; after
// that each cycle is separated by the configured interval. Cancellation is
// honored between cycles and between subsystems, never mid-step: in-flight
// work finishes, the loop just declines to start more.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("scheduler started",
		logx.Duration("interval", l.getInterval()),
		logx.String("timezone", l.loc.String()),
		logx.Int("subsystems", len(l.subsystems)))

	for {
		if ctx.Err() != nil {
			break
		}
		l.runCount++
		l.cycle(ctx)

		timer := time.NewTimer(l.getInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
			continue
		}
		break
	}

	l.log.Info("scheduler stopped", logx.Uint64("runs", l.runCount))
	return nil
}

func (l *Loop) cycle(ctx context.Context) {
	now := l.clock().In(l.loc)
	log := l.log.With(logx.Uint64("run", l.runCount))
	log.Info("cycle started", logx.Time("now", now))

	// Steps run to completion even during shutdown: the interrupt context
	// gates what starts next, never what is already in flight, so the
	// processing/terminal event bracket always closes.
	workCtx := context.WithoutCancel(ctx)

	var failed int
	for _, sub := range l.subsystems {
		if ctx.Err() != nil {
			log.Info("cycle interrupted", logx.String("subsystem", sub.Name()))
			return
		}
		failed += l.runSubsystem(workCtx, sub, now, log)
	}
	log.Info("cycle finished", logx.Int("failed_steps", failed))
}

// runSubsystem is the last recovery boundary: the runner already converts
// step panics to failures, so anything escaping here is a bug in the
// orchestrator itself. It is logged and reported, and the loop survives.
func (l *Loop) runSubsystem(ctx context.Context, sub *Orchestrator, now time.Time, log logx.Logger) (failed int) {
	defer func() {
		if rec := recover(); rec != nil {
			failed++
			log.Error("subsystem panicked",
				logx.String("subsystem", sub.Name()),
				logx.Any("panic", rec),
				logx.Stack(logx.StackTrace(3, 16)))
			if l.onFailure != nil {
				l.onFailure(sub.Name(), StepResult{
					Step:    sub.Name(),
					Message: "subsystem panicked",
				})
			}
		}
	}()

	results := sub.RunCycle(ctx, now)
	for _, res := range results {
		if !res.Failed() {
			continue
		}
		failed++
		if l.onFailure != nil {
			l.onFailure(sub.Name(), res)
		}
	}
	return failed
}

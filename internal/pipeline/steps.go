// Package pipeline turns the declarative subsystem config into the
// scheduler's step definitions. All pipeline-specific behavior lives in the
// external commands; this package only wires them up.
package pipeline

import (
	"fmt"
	"strings"

	"bookmill/internal/config"
	"bookmill/internal/sched"
	"bookmill/internal/storage"
	logx "bookmill/pkg/logx"
)

// Build constructs one orchestrator per configured subsystem, in declared
// order. The config is assumed validated.
func Build(cfg *config.Config, store storage.Store, log logx.Logger) ([]*sched.Orchestrator, error) {
	orchestrators := make([]*sched.Orchestrator, 0, len(cfg.Subsystems))
	for _, sub := range cfg.Subsystems {
		steps := make([]sched.Step, 0, len(sub.Steps))
		for _, sc := range sub.Steps {
			step, err := buildStep(sc, log)
			if err != nil {
				return nil, fmt.Errorf("subsystem %q: %w", sub.Name, err)
			}
			steps = append(steps, step)
		}
		orchestrators = append(orchestrators, sched.NewOrchestrator(sub.Name, steps, store, log))
	}
	return orchestrators, nil
}

func buildStep(sc config.StepConfig, log logx.Logger) (sched.Step, error) {
	recurrence, err := parseWindow(sc.Window)
	if err != nil {
		return sched.Step{}, fmt.Errorf("step %q: %w", sc.Name, err)
	}

	var gate *sched.DayGate
	if sc.Gate != nil {
		wd, err := config.ParseWeekday(sc.Gate.Weekday)
		if err != nil {
			return sched.Step{}, fmt.Errorf("step %q: %w", sc.Name, err)
		}
		gate = &sched.DayGate{Weekday: wd, AfterHour: sc.Gate.AfterHour}
	}

	timeout, err := config.ParseDurationField("timeout", sc.Timeout)
	if err != nil {
		return sched.Step{}, fmt.Errorf("step %q: %w", sc.Name, err)
	}

	cs := CommandStep{
		Command:     append([]string(nil), sc.Command...),
		Dir:         sc.Dir,
		Timeout:     timeout,
		SkipIfEmpty: sc.SkipIfEmpty,
	}
	return sched.Step{
		Name:       sc.Name,
		Recurrence: recurrence,
		Gate:       gate,
		Run:        cs.Work(log.With(logx.String("step", sc.Name))),
	}, nil
}

func parseWindow(s string) (sched.Recurrence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return sched.RecurNone, nil
	case "daily":
		return sched.RecurDaily, nil
	case "weekly":
		return sched.RecurWeekly, nil
	default:
		return 0, fmt.Errorf("invalid window %q", s)
	}
}

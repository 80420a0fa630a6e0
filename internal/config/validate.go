package config

import (
	"fmt"
	"strings"
	"time"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts full English weekday names, case-insensitive.
func ParseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("invalid weekday %q", s)
	}
	return d, nil
}

// Validate checks the whole config. It is run on initial load and again
// before a hot reload is committed, so a broken edit never replaces a
// working config.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}

	tz := strings.TrimSpace(c.Timezone)
	if tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	if _, err := ParseDurationField("interval", c.Interval); err != nil {
		return err
	}

	driver := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch driver {
	case "", "sqlite", "sqlite3", "file":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}

	if n := c.Notify; n != nil && n.Enabled {
		if strings.TrimSpace(n.Token) == "" {
			return fmt.Errorf("notify.token is required when notify is enabled")
		}
		if n.ChatID == 0 {
			return fmt.Errorf("notify.chat_id is required when notify is enabled")
		}
	}

	if len(c.Subsystems) == 0 {
		return fmt.Errorf("at least one subsystem is required")
	}

	// Step names key the event log, so they must be unique across the
	// whole config, not just within one subsystem.
	seenSub := map[string]bool{}
	seenStep := map[string]bool{}
	for i, sub := range c.Subsystems {
		name := strings.TrimSpace(sub.Name)
		if name == "" {
			return fmt.Errorf("subsystems[%d]: name is required", i)
		}
		if seenSub[name] {
			return fmt.Errorf("subsystems[%d]: duplicate subsystem name %q", i, name)
		}
		seenSub[name] = true

		if len(sub.Steps) == 0 {
			return fmt.Errorf("subsystem %q: at least one step is required", name)
		}
		for j, st := range sub.Steps {
			where := fmt.Sprintf("subsystem %q steps[%d]", name, j)
			if err := validateStep(where, st, seenStep); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateStep(where string, st StepConfig, seenStep map[string]bool) error {
	stepName := strings.TrimSpace(st.Name)
	if stepName == "" {
		return fmt.Errorf("%s: name is required", where)
	}
	if seenStep[stepName] {
		return fmt.Errorf("%s: duplicate step name %q", where, stepName)
	}
	seenStep[stepName] = true

	switch strings.ToLower(strings.TrimSpace(st.Window)) {
	case "", "none", "daily", "weekly":
	default:
		return fmt.Errorf("%s: invalid window %q (want none|daily|weekly)", where, st.Window)
	}
	if g := st.Gate; g != nil {
		if _, err := ParseWeekday(g.Weekday); err != nil {
			return fmt.Errorf("%s: gate: %w", where, err)
		}
		if g.AfterHour < 0 || g.AfterHour > 23 {
			return fmt.Errorf("%s: gate.after_hour must be 0-23", where)
		}
	}
	if len(st.Command) == 0 || strings.TrimSpace(st.Command[0]) == "" {
		return fmt.Errorf("%s: command is required", where)
	}
	if _, err := ParseDurationField(where+".timeout", st.Timeout); err != nil {
		return err
	}
	return nil
}

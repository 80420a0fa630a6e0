package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"bookmill/internal/sched"
	logx "bookmill/pkg/logx"
)

// CommandStep invokes an external program as a step's unit of work. The
// scheduler never looks inside: exit status maps to the tri-state outcome
// and output is captured for the audit log only.
type CommandStep struct {
	Command []string
	Dir     string

	// Timeout bounds the command. Zero means unbounded — the scheduler
	// itself never cancels running work.
	Timeout time.Duration

	// SkipIfEmpty, when set, names a queue file probed before running:
	// missing or header-only means "nothing to do this cycle" (SKIP).
	SkipIfEmpty string
}

const outputTailLimit = 2048

// Work builds the sched.WorkFunc for cs.
func (cs CommandStep) Work(log logx.Logger) sched.WorkFunc {
	return func(ctx context.Context, now time.Time) (sched.Outcome, string, error) {
		if cs.SkipIfEmpty != "" {
			empty, err := queueEmpty(cs.SkipIfEmpty)
			if err != nil {
				return sched.OutcomeFailed, "", fmt.Errorf("probe %s: %w", cs.SkipIfEmpty, err)
			}
			if empty {
				return sched.OutcomeSkipped, "queue empty: " + cs.SkipIfEmpty, nil
			}
		}

		runCtx := ctx
		if cs.Timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, cs.Timeout)
			defer cancel()
		}

		cmd := exec.CommandContext(runCtx, cs.Command[0], cs.Command[1:]...)
		cmd.Dir = cs.Dir

		started := time.Now()
		out, err := cmd.CombinedOutput()
		took := time.Since(started)

		tail := outputTail(out)
		log.Debug("command finished",
			logx.String("cmd", strings.Join(cs.Command, " ")),
			logx.Duration("took", took),
			logx.Int("output_bytes", len(out)))

		if err == nil {
			return sched.OutcomeSuccess, tail, nil
		}
		if runCtx.Err() == context.DeadlineExceeded {
			return sched.OutcomeFailed, tail, fmt.Errorf("timed out after %s", cs.Timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := fmt.Sprintf("exit status %d", exitErr.ExitCode())
			if tail != "" {
				msg += ": " + tail
			}
			return sched.OutcomeFailed, msg, nil
		}
		// Start failure (missing binary, bad dir, ...).
		return sched.OutcomeFailed, "", err
	}
}

// queueEmpty reports whether the queue file has no content rows. The first
// non-blank line is treated as a header, matching the CSV queues the
// pipeline tools produce.
func queueEmpty(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	defer f.Close()

	rows := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		rows++
		if rows > 1 {
			return false, nil
		}
	}
	if err := sc.Err(); err != nil {
		return false, err
	}
	return rows <= 1, nil
}

// outputTail keeps the last chunk of combined output for the audit message.
func outputTail(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) <= outputTailLimit {
		return s
	}
	return "..." + s[len(s)-outputTailLimit:]
}

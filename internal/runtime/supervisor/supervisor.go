// Package supervisor manages goroutines tied to a shared context:
// named goroutines, panic recovery, graceful timeout-aware stop.
package supervisor

import (
	"context"
	"sync"
	"time"

	logx "bookmill/pkg/logx"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logx.Logger
	wg     sync.WaitGroup
}

func New(parent context.Context, log logx.Logger) *Supervisor {
	if parent == nil {
		parent = context.Background()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{ctx: ctx, cancel: cancel, log: log}
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Go starts fn under the supervisor. A panic is logged with a stack and
// does not take the process down; a non-nil error after a live context is
// logged as the goroutine's failure.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("goroutine panicked",
					logx.String("name", name),
					logx.Any("panic", rec),
					logx.Stack(logx.StackTrace(3, 16)))
			}
		}()

		err := fn(s.ctx)
		if err != nil && s.ctx.Err() == nil {
			s.log.Error("goroutine failed", logx.String("name", name), logx.Err(err))
			return
		}
		s.log.Debug("goroutine stopped", logx.String("name", name))
	}()
}

// Stop cancels the shared context and waits up to timeout for goroutines
// to finish. Returns false when the wait timed out.
func (s *Supervisor) Stop(timeout time.Duration) bool {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		s.log.Warn("supervisor stop timed out", logx.Duration("timeout", timeout))
		return false
	}
}

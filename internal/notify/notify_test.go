package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	logx "bookmill/pkg/logx"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := what.(string); ok {
		f.sent = append(f.sent, s)
	}
	return &tele.Message{}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestService(queueSize int) (*Service, *fakeSender) {
	f := &fakeSender{}
	return &Service{
		log:     logx.Nop(),
		bot:     f,
		chat:    tele.ChatID(1),
		limiter: rate.NewLimiter(rate.Inf, 1),
		queue:   make(chan string, queueSize),
	}, f
}

func TestNewDisabledReturnsNil(t *testing.T) {
	t.Parallel()
	s, err := New(Config{Enabled: false}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s != nil {
		t.Fatal("disabled notifier must be nil")
	}
}

func TestNilServiceIsSafe(t *testing.T) {
	t.Parallel()
	var s *Service
	s.Start(context.Background())
	s.Send("dropped on the floor")
	s.Stop()
}

// Send must return immediately when the queue is full; the scheduler loop
// sits on the other end of this call.
func TestSendNeverBlocksWhenQueueFull(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			s.Send("bookmill: catalog/LOAD_CATALOG failed")
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a full queue")
	}
	if got := len(s.queue); got != 2 {
		t.Fatalf("queued %d alerts, want the queue capacity", got)
	}
}

func TestSendIgnoresEmptyText(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(2)
	s.Send("")
	if got := len(s.queue); got != 0 {
		t.Fatalf("queued %d alerts for empty text", got)
	}
}

func TestWorkerDeliversQueuedAlerts(t *testing.T) {
	t.Parallel()
	s, f := newTestService(8)
	s.Start(context.Background())
	defer s.Stop()

	s.Send("bookmill: catalog/DOWNLOAD_BOOKS failed\nexit status 1")

	deadline := time.After(5 * time.Second)
	for f.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("alert never delivered")
		case <-time.After(time.Millisecond):
		}
	}

	f.mu.Lock()
	got := f.sent[0]
	f.mu.Unlock()
	if got != "bookmill: catalog/DOWNLOAD_BOOKS failed\nexit status 1" {
		t.Fatalf("sent %q", got)
	}
}

func TestStopHaltsWorker(t *testing.T) {
	t.Parallel()
	s, f := newTestService(8)
	s.Start(context.Background())
	s.Stop()

	s.queue <- "after stop"
	time.Sleep(20 * time.Millisecond)
	if f.count() != 0 {
		t.Fatal("worker still sending after Stop")
	}
	// Idempotent.
	s.Stop()
}

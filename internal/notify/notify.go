// Package notify pushes failure alerts to a Telegram chat.
//
// The notifier is strictly best-effort: enqueueing never blocks the
// scheduler loop, sends are rate limited, and a full queue drops new
// alerts with a log line.
package notify

import (
	"context"
	"errors"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"golang.org/x/time/rate"

	logx "bookmill/pkg/logx"
)

type Config struct {
	Enabled    bool
	Token      string
	ChatID     int64
	RatePerSec int
	QueueSize  int
}

// sender is the outbound slice of tele.Bot the worker needs.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type Service struct {
	log     logx.Logger
	bot     sender
	chat    tele.Recipient
	limiter *rate.Limiter

	queue chan string

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds the notifier. Returns (nil, nil) when disabled so callers can
// treat the notifier as optional without nil-check gymnastics at each site.
func New(cfg Config, log logx.Logger) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("notify token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("notify chat_id is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}

	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}

	return &Service{
		log:     log,
		bot:     bot,
		chat:    tele.ChatID(cfg.ChatID),
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		queue:   make(chan string, size),
	}, nil
}

// Start launches the send worker. Safe on a nil (disabled) service.
func (s *Service) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return
	}
	s.running = true

	wctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker(wctx)
	}()
}

// Stop stops the worker without draining; pending alerts are dropped.
func (s *Service) Stop() {
	if s == nil {
		return
	}
	s.runMu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.running = false
	s.runMu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
}

// Send enqueues one alert. Never blocks; drops when the queue is full.
// Safe on a nil (disabled) service.
func (s *Service) Send(text string) {
	if s == nil || text == "" {
		return
	}
	select {
	case s.queue <- text:
	default:
		s.log.Debug("alert dropped (queue full)")
	}
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-s.queue:
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			if _, err := s.bot.Send(s.chat, text); err != nil {
				s.log.Warn("alert send failed", logx.Err(err))
			}
		}
	}
}

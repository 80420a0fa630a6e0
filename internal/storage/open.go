package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "bookmill/pkg/logx"
)

// Store is the event-log API used by the scheduler and by bookmillctl.
//
// Append must be durable and immediately visible to a following read: the
// runner appends and the gate reads back within the same cycle.
// Latest must never serve a cached value from a prior cycle.
type Store interface {
	// Append writes one event. A zero At is stamped with the current time.
	Append(ctx context.Context, e Event) error

	// Latest returns the most recent event for step with At >= since.
	// A zero since matches all events. ok is false when no event matches.
	Latest(ctx context.Context, step string, since time.Time) (e Event, ok bool, err error)

	// Tail returns up to limit most recent events in chronological order.
	Tail(ctx context.Context, limit int) ([]Event, error)

	// Steps returns the distinct step names present in the log, sorted.
	Steps(ctx context.Context) ([]string, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "file":
		return openFile(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}

package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrClosed = errors.New("event store closed")

// Status is a step's recorded state at a point in time.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusFailed     Status = "failed"
	StatusSuccess    Status = "success"
)

// Terminal reports whether the status ends a run bracket.
func (s Status) Terminal() bool {
	return s == StatusFailed || s == StatusSuccess
}

// ParseStatus validates operator-supplied status strings (bookmillctl mark).
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending, nil
	case StatusProcessing:
		return StatusProcessing, nil
	case StatusFailed:
		return StatusFailed, nil
	case StatusSuccess:
		return StatusSuccess, nil
	default:
		return "", fmt.Errorf("invalid status %q (want pending|processing|failed|success)", raw)
	}
}

// Event is one immutable record of the log.
type Event struct {
	At     time.Time `json:"at"`
	Step   string    `json:"step"`
	Status Status    `json:"status"`
}

// Config configures the event-log backend.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "file":   JSON Lines log, one event per line
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

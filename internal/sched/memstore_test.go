package sched

import (
	"context"
	"sort"
	"sync"
	"time"

	"bookmill/internal/storage"
)

// memStore is an in-memory storage.Store for engine tests. Later appends
// win timestamp ties, matching the real drivers.
type memStore struct {
	mu     sync.Mutex
	events []storage.Event

	failAppend error
	failLatest error
}

var _ storage.Store = (*memStore)(nil)

func (m *memStore) Append(ctx context.Context, e storage.Event) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppend != nil {
		return m.failAppend
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memStore) Latest(ctx context.Context, step string, since time.Time) (storage.Event, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLatest != nil {
		return storage.Event{}, false, m.failLatest
	}
	var (
		best  storage.Event
		found bool
	)
	for _, e := range m.events {
		if e.Step != step {
			continue
		}
		if !since.IsZero() && e.At.Before(since) {
			continue
		}
		if !found || !e.At.Before(best.At) {
			best = e
			found = true
		}
	}
	return best, found, nil
}

func (m *memStore) Tail(ctx context.Context, limit int) ([]storage.Event, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]storage.Event(nil), m.events...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memStore) Steps(ctx context.Context) ([]string, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	for _, e := range m.events {
		seen[e.Step] = true
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) all() []storage.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Event(nil), m.events...)
}

func (m *memStore) byStep(step string) []storage.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.Event
	for _, e := range m.events {
		if e.Step == step {
			out = append(out, e)
		}
	}
	return out
}

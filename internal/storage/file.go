package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	logx "bookmill/pkg/logx"
)

// fileStore is a dependency-free backend: one JSON object per line,
// append-only, fsynced per append.
//
// Reads re-scan the file instead of consulting an in-memory index, so an
// operator appending to the same file (bookmillctl with driver "file") is
// picked up on the next read. Event volume is a handful of lines per cycle,
// so scanning stays cheap.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
	f    *os.File
}

type fileRecord struct {
	At     string `json:"at"` // RFC3339Nano
	Step   string `json:"step"`
	Status string `json:"status"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path, f: f}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) Append(ctx context.Context, e Event) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	rec := fileRecord{
		At:     e.At.Format(time.RFC3339Nano),
		Step:   e.Step,
		Status: string(e.Status),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.f).Encode(rec); err != nil {
		return err
	}
	// Durability over throughput: a cycle writes at most a few events.
	return s.f.Sync()
}

func (s *fileStore) Latest(ctx context.Context, step string, since time.Time) (Event, bool, error) {
	_ = ctx
	var (
		best  Event
		found bool
	)
	err := s.scan(func(e Event) {
		if e.Step != step {
			return
		}
		if !since.IsZero() && e.At.Before(since) {
			return
		}
		// Later lines win ties, matching append order.
		if !found || !e.At.Before(best.At) {
			best = e
			found = true
		}
	})
	if err != nil {
		return Event{}, false, err
	}
	return best, found, nil
}

func (s *fileStore) Tail(ctx context.Context, limit int) ([]Event, error) {
	_ = ctx
	if limit <= 0 {
		limit = 50
	}
	var all []Event
	if err := s.scan(func(e Event) { all = append(all, e) }); err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].At.Before(all[j].At) })
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *fileStore) Steps(ctx context.Context) ([]string, error) {
	_ = ctx
	seen := map[string]bool{}
	if err := s.scan(func(e Event) { seen[e.Step] = true }); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// scan replays the log in file order. Undecodable lines are skipped with a
// warning rather than failing the read: a torn final line from a crash must
// not take scheduling down.
func (s *fileStore) scan(fn func(Event)) error {
	s.mu.Lock()
	closed := s.f == nil
	path := s.path
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec fileRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			s.log.Warn("skipping undecodable event line", logx.Err(err))
			continue
		}
		at, err := time.Parse(time.RFC3339Nano, rec.At)
		if err != nil {
			s.log.Warn("skipping event with bad timestamp", logx.String("at", rec.At))
			continue
		}
		fn(Event{At: at, Step: rec.Step, Status: Status(rec.Status)})
	}
	return sc.Err()
}

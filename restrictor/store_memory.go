package restrictor

import (
	"context"
	"sync"
	"time"
)

type memoryEvent struct {
	typ EventType
	at  time.Time
}

// MemoryStore keeps events in process memory. It is suitable for a single
// instance deployment and for tests.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string][]memoryEvent
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]memoryEvent)}
}

func (s *MemoryStore) Count(_ context.Context, key string, since time.Time, types ...EventType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(key, since, types), nil
}

func (s *MemoryStore) countLocked(key string, since time.Time, types []EventType) int {
	n := 0
	for _, ev := range s.events[key] {
		if !ev.at.Before(since) && countMatches(ev.typ, types) {
			n++
		}
	}
	return n
}

func (s *MemoryStore) Append(_ context.Context, ev Event) error {
	s.mu.Lock()
	s.events[ev.Key] = append(s.events[ev.Key], memoryEvent{typ: ev.Type, at: ev.At})
	s.mu.Unlock()
	return nil
}

// AppendWithin checks rules and appends under the store mutex.
func (s *MemoryStore) AppendWithin(_ context.Context, ev Event, rules []Rule) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rule := range rules {
		if s.countLocked(ev.Key, ev.At.Add(-rule.Policy.Window), rule.Types) >= rule.Policy.Max {
			return i, nil
		}
	}
	s.events[ev.Key] = append(s.events[ev.Key], memoryEvent{typ: ev.Type, at: ev.At})
	return -1, nil
}

func (s *MemoryStore) Prune(_ context.Context, key string, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.events[key]
	kept := events[:0]
	for _, ev := range events {
		if !ev.at.Before(before) {
			kept = append(kept, ev)
		}
	}
	if len(kept) == 0 {
		delete(s.events, key)
		return nil
	}
	s.events[key] = kept
	return nil
}

// Len returns the number of stored events for key.
func (s *MemoryStore) Len(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events[key])
}

package audit

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrStoreUnavailable is returned when the persistence medium cannot be
	// reached. Callers treat audit writes as best-effort relative to the
	// action that triggered them.
	ErrStoreUnavailable = errors.New("audit store unavailable")
)

// DefaultMaxEntries bounds the store size. On overflow the oldest entries are
// evicted first.
const DefaultMaxEntries = 1000

// Store defines the interface for audit event persistence. Implementations
// must keep appends in arrival order and never mutate stored events.
type Store interface {
	// Append inserts an event, assigning its ID and, when zero, its
	// timestamp. If the store would exceed its configured maximum entry
	// count, the oldest entries are evicted until the bound holds.
	Append(ctx context.Context, event *Event) (int64, error)

	// All returns every stored event, oldest first.
	All(ctx context.Context) ([]*Event, error)

	// PruneOlderThan deletes events with a timestamp before the cutoff and
	// returns the number removed.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Clear empties the store entirely. Administrative use only; the caller
	// is expected to audit the wipe itself.
	Clear(ctx context.Context) error
}

// MemoryStore is an in-memory implementation of Store. Used for testing and
// development. Thread-safe via RWMutex.
type MemoryStore struct {
	mu         sync.RWMutex
	events     []*Event
	nextID     int64
	maxEntries int
}

// NewMemoryStore creates a bounded in-memory audit store. A maxEntries of
// zero or less falls back to DefaultMaxEntries.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryStore{
		events:     make([]*Event, 0),
		nextID:     1,
		maxEntries: maxEntries,
	}
}

// Append inserts the event in arrival order and evicts from the front when
// the store exceeds its maximum entry count.
func (s *MemoryStore) Append(_ context.Context, event *Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event.ID = s.nextID
	s.nextID++
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	// Store a copy so callers cannot mutate appended events.
	stored := copyEvent(event)
	s.events = append(s.events, stored)

	if excess := len(s.events) - s.maxEntries; excess > 0 {
		s.events = s.events[excess:]
	}

	return event.ID, nil
}

// All returns a snapshot of every stored event, oldest first.
func (s *MemoryStore) All(_ context.Context) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Event, len(s.events))
	for i, e := range s.events {
		out[i] = copyEvent(e)
	}
	return out, nil
}

// PruneOlderThan removes events older than the cutoff and reports how many
// were deleted.
func (s *MemoryStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var removed int64
	for _, e := range s.events {
		if e.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return removed, nil
}

// Clear drops every stored event.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = s.events[:0]
	return nil
}

// copyEvent creates a deep copy of an Event.
func copyEvent(e *Event) *Event {
	if e == nil {
		return nil
	}
	copied := *e
	if e.Changes != nil {
		copied.Changes = make([]Change, len(e.Changes))
		copy(copied.Changes, e.Changes)
	}
	if e.Metadata != nil {
		copied.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			copied.Metadata[k] = v
		}
	}
	return &copied
}

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Entry tracks attempts for one composite key within the active window
type Entry struct {
	Attempts      int       `json:"attempts"`
	WindowStarted time.Time `json:"window_started"`
	BlockedUntil  time.Time `json:"blocked_until"` // zero value means not blocked
	Breaches      int       `json:"breaches"`      // threshold crossings in this window, drives tier escalation
}

// Blocked reports whether the entry is under an active block at now
func (e *Entry) Blocked(now time.Time) bool {
	return e.BlockedUntil.After(now)
}

// Store is the limiter's backing key-value store. The in-memory
// implementation is the default; a shared backend (Redis) can be substituted
// without changing limiter call sites. Get returns (nil, nil) for absent
// keys. Any error from the store makes the limiter fail open.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryStore is a process-local Store with deterministic eviction: expired
// entries are purged lazily when touched and swept periodically, bounding
// memory to the keys active within one window plus one sweep interval.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	sweepInterval time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// NewMemoryStore creates a memory store and starts its background sweep
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries:       make(map[string]memoryEntry),
		sweepInterval: sweepInterval,
		stopCh:        make(chan struct{}),
	}

	go s.sweep()

	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	me, ok := s.entries[key]
	if !ok {
		return nil, nil
	}

	if time.Now().After(me.expiresAt) {
		delete(s.entries, key)
		return nil, nil
	}

	entry := me.entry
	return &entry, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{
		entry:     entry,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Len returns the number of live entries (expired but unswept entries count)
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) sweep() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for key, me := range s.entries {
				if now.After(me.expiresAt) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

// Stop terminates the sweep goroutine. Safe to call more than once.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a Store for tests and single instance development runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]Entry{}}
}

func (s *MemoryStore) Claim(_ context.Context, key Key, fingerprint string, now time.Time, lock time.Duration) (Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, found := s.entries[key.id()]; found {
		if claim, ok, err := decide(existing, fingerprint, now); ok || err != nil {
			return claim, err
		}
	}
	entry := pendingEntry(key, fingerprint, now, lock)
	s.entries[key.id()] = entry
	return Claim{Outcome: OutcomeOwned, Entry: entry}, nil
}

func (s *MemoryStore) Complete(_ context.Context, key Key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, found := s.entries[key.id()]
	switch {
	case !found:
		entry = pendingEntry(key, fingerprint, now, 0)
	case entry.Fingerprint != fingerprint:
		return ErrKeyReused
	}
	s.entries[key.id()] = settle(entry, resp, now, ttl)
	return nil
}

func (s *MemoryStore) Abandon(_ context.Context, key Key) error {
	s.mu.Lock()
	delete(s.entries, key.id())
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Purge(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.entries {
		if limit > 0 && removed == limit {
			break
		}
		if !now.Before(entry.ExpiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

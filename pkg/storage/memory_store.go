package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/finverse/finverse/pkg/domain"
)

// MemoryStore is an in-memory implementation of ClientStore.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]map[string]Entry
	now     func() time.Time
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]map[string]Entry),
		now:     time.Now,
	}
}

// Get retrieves a value from memory.
func (s *MemoryStore) Get(_ context.Context, clientID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[clientID][key]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", domain.ErrKeyNotFound, clientID, key)
	}
	return e.Value, nil
}

// Set stores a value in memory.
func (s *MemoryStore) Set(_ context.Context, clientID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.entries[clientID]
	if !ok {
		client = make(map[string]Entry)
		s.entries[clientID] = client
	}
	client[key] = Entry{Key: key, Value: value, UpdatedAt: s.now().UTC()}
	return nil
}

// Delete removes a value. Deleting a missing key is not an error.
func (s *MemoryStore) Delete(_ context.Context, clientID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries[clientID], key)
	return nil
}

// All lists a client's values ordered by key.
func (s *MemoryStore) All(_ context.Context, clientID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.entries[clientID]))
	for _, e := range s.entries[clientID] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Close is a no-op for memory store.
func (s *MemoryStore) Close() error {
	return nil
}

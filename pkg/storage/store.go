// Package storage persists the small per-client values that pages share:
// the last gate probability, the last decision and the last minted metadata
// URI.
package storage

import (
	"context"
	"strings"
	"time"
)

// Entry is one stored value.
type Entry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClientStore exposes key/value persistence scoped by client ID.
type ClientStore interface {
	// Get returns domain.ErrKeyNotFound when the key has never been set.
	Get(ctx context.Context, clientID, key string) (string, error)
	Set(ctx context.Context, clientID, key, value string) error
	Delete(ctx context.Context, clientID, key string) error
	All(ctx context.Context, clientID string) ([]Entry, error)
	Close() error
}

// Open selects a store for path. An empty path or ":memory:" yields the
// in-memory store.
func Open(ctx context.Context, path string) (ClientStore, error) {
	if p := strings.TrimSpace(path); p == "" || p == ":memory:" {
		return NewMemoryStore(), nil
	}
	return OpenSQLite(ctx, path)
}

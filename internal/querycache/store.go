package querycache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Snapshot is a query result mirrored outside the process-local cache.
type Snapshot struct {
	Data      json.RawMessage `json:"data"`
	StoredAt  time.Time       `json:"storedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// Store mirrors fetched query data so a cold cache (a restart or another
// replica) can answer before the backend does. Keys are namespace:category:rest.
type Store interface {
	Lookup(ctx context.Context, key string) (Snapshot, bool, error)
	Save(ctx context.Context, key string, snapshot Snapshot) error
	DeletePrefix(ctx context.Context, prefix string) error
	Size(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}

type memoryStore struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]Snapshot
}

// NewMemoryStore keeps snapshots in process memory for ttl.
func NewMemoryStore(ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &memoryStore{ttl: ttl, entries: make(map[string]Snapshot)}
}

func (s *memoryStore) Lookup(_ context.Context, key string) (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, ok := s.entries[key]
	if !ok {
		return Snapshot{}, false, nil
	}
	if time.Now().After(snapshot.ExpiresAt) {
		delete(s.entries, key)
		return Snapshot{}, false, nil
	}
	return cloneSnapshot(snapshot), true, nil
}

func (s *memoryStore) Save(_ context.Context, key string, snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snapshot.StoredAt.IsZero() {
		snapshot.StoredAt = time.Now().UTC()
	}
	if snapshot.ExpiresAt.IsZero() || snapshot.ExpiresAt.Before(snapshot.StoredAt) {
		snapshot.ExpiresAt = snapshot.StoredAt.Add(s.ttl)
	}
	s.entries[key] = cloneSnapshot(snapshot)
	return nil
}

func (s *memoryStore) DeletePrefix(_ context.Context, prefix string) error {
	if prefix == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
	return nil
}

func (s *memoryStore) Size(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}

func (s *memoryStore) Close(_ context.Context) error {
	return nil
}

func cloneSnapshot(in Snapshot) Snapshot {
	out := in
	if in.Data != nil {
		out.Data = append(json.RawMessage(nil), in.Data...)
	}
	return out
}

// storeKey maps a cache key onto the namespace:category:rest layout so a
// category prefix never matches a longer category name.
func storeKey(namespace string, key Key) string {
	return storePrefix(namespace, key.Category) + strings.TrimPrefix(key.String(), key.Category)
}

func storePrefix(namespace, category string) string {
	return namespace + ":" + category + ":"
}

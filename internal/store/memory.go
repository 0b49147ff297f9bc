package store

import (
	"sync"
	"sync/atomic"
	"time"

	expirable "github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore is an in-memory LRU store implementing Store.
type MemoryStore struct {
	lru       *expirable.LRU[string, *Entry]
	evictions atomic.Int64
	maxSize   int
}

// NewMemoryStore creates a new in-memory LRU store with the given max size
// and TTL. A ttl of 0 disables expiration (stale entries are tolerated).
func NewMemoryStore(maxSize int, ttl time.Duration) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 1000
	}
	s := &MemoryStore{
		maxSize: maxSize,
	}
	s.lru = expirable.NewLRU[string, *Entry](maxSize, func(key string, value *Entry) {
		s.evictions.Add(1)
	}, ttl)
	return s
}

func (s *MemoryStore) Get(key string) (*Entry, bool) {
	return s.lru.Get(key)
}

func (s *MemoryStore) Set(key string, entry *Entry) {
	s.lru.Add(key, entry)
}

func (s *MemoryStore) Delete(key string) {
	s.lru.Remove(key)
}

func (s *MemoryStore) Keys() []string {
	return s.lru.Keys()
}

func (s *MemoryStore) Len() int {
	return s.lru.Len()
}

func (s *MemoryStore) Purge() {
	s.lru.Purge()
}

func (s *MemoryStore) Stats() Stats {
	return Stats{
		Size:      s.lru.Len(),
		MaxSize:   s.maxSize,
		Evictions: s.evictions.Load(),
	}
}

// MemoryRegistry manages in-memory store namespaces.
type MemoryRegistry struct {
	mu      sync.Mutex
	stores  map[string]*MemoryStore
	maxSize int
	ttl     time.Duration
}

// NewMemoryRegistry creates a registry whose stores share the given size
// and TTL parameters.
func NewMemoryRegistry(maxSize int, ttl time.Duration) *MemoryRegistry {
	return &MemoryRegistry{
		stores:  make(map[string]*MemoryStore),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

func (r *MemoryRegistry) Open(namespace string) (Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[namespace]; ok {
		return s, nil
	}
	s := NewMemoryStore(r.maxSize, r.ttl)
	r.stores[namespace] = s
	return s, nil
}

func (r *MemoryRegistry) Namespaces() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	return names, nil
}

func (r *MemoryRegistry) Drop(namespace string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[namespace]; ok {
		s.Purge()
		delete(r.stores, namespace)
	}
	return nil
}

func (r *MemoryRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, s := range r.stores {
		s.Purge()
		delete(r.stores, name)
	}
	return nil
}

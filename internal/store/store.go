// Package store provides the named cache stores backing the offline edge.
//
// A store is a keyed container of response snapshots. Stores are grouped
// into namespaces ("<prefix>-static-<version>", "<prefix>-data") managed
// by a Registry so that stale generations can be enumerated and dropped
// on activation.
package store

import (
	"net/http"
	"time"
)

// Entry is a cached response snapshot. An entry present in a store was,
// at the time of write, a real upstream response for its key.
type Entry struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	StoredAt   time.Time
}

// Clone returns a deep copy of the entry so callers can serve it without
// sharing header maps or body slices with the store.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	headers := make(http.Header, len(e.Headers))
	for k, vv := range e.Headers {
		headers[k] = append(vv[:0:0], vv...)
	}
	body := append(e.Body[:0:0], e.Body...)
	return &Entry{
		StatusCode: e.StatusCode,
		Headers:    headers,
		Body:       body,
		StoredAt:   e.StoredAt,
	}
}

// Stats contains storage-level statistics.
type Stats struct {
	Size          int   `json:"size"`
	MaxSize       int   `json:"max_size"`       // 0 if N/A (e.g., Redis, SQLite)
	Evictions     int64 `json:"evictions"`      // 0 if not tracked
	WriteFailures int64 `json:"write_failures"` // best-effort writes that failed
}

// Store abstracts a single named cache store. Writes are best-effort: a
// failed Set is logged and counted, never surfaced to the caller.
type Store interface {
	Get(key string) (*Entry, bool)
	Set(key string, entry *Entry)
	Delete(key string)
	Keys() []string
	Len() int
	Purge()
	Stats() Stats
}

// Registry manages the set of store namespaces for one backend.
type Registry interface {
	// Open returns the store for a namespace, creating it if needed.
	Open(namespace string) (Store, error)
	// Namespaces lists every namespace known to the backend, including
	// those created by prior generations of the application.
	Namespaces() ([]string, error)
	// Drop deletes a namespace and all entries in it.
	Drop(namespace string) error
	Close() error
}

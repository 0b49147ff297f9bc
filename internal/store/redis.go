package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/initiative-app/offline-edge/internal/logging"
)

const redisNamespaceSet = "edge:cache:namespaces"

// RedisRegistry manages cache namespaces in Redis for deployments where
// several edge instances share one cache.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRegistry creates a Redis-backed registry. A ttl of 0 stores
// entries without expiry.
func NewRedisRegistry(client *redis.Client, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{client: client, ttl: ttl}
}

func (r *RedisRegistry) Open(namespace string) (Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := r.client.SAdd(ctx, redisNamespaceSet, namespace).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{
		client: r.client,
		prefix: "edge:cache:" + namespace + ":",
		ttl:    r.ttl,
	}, nil
}

func (r *RedisRegistry) Namespaces() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	return r.client.SMembers(ctx, redisNamespaceSet).Result()
}

func (r *RedisRegistry) Drop(namespace string) error {
	s := &RedisStore{client: r.client, prefix: "edge:cache:" + namespace + ":"}
	s.Purge()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return r.client.SRem(ctx, redisNamespaceSet, namespace).Err()
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

// RedisStore is one namespace within a RedisRegistry.
type RedisStore struct {
	client        *redis.Client
	prefix        string
	ttl           time.Duration
	writeFailures atomic.Int64
}

func (s *RedisStore) Get(key string) (*Entry, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logging.Warn("redis cache get failed, treating as miss", zap.Error(err))
		}
		return nil, false
	}

	var entry Entry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entry); err != nil {
		logging.Warn("redis cache decode failed, treating as miss", zap.Error(err))
		return nil, false
	}
	return &entry, true
}

func (s *RedisStore) Set(key string, entry *Entry) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		s.writeFailures.Add(1)
		logging.Warn("redis cache encode failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := s.client.Set(ctx, s.prefix+key, buf.Bytes(), s.ttl).Err(); err != nil {
		s.writeFailures.Add(1)
		logging.Warn("redis cache set failed", zap.Error(err))
	}
}

func (s *RedisStore) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		logging.Warn("redis cache delete failed", zap.Error(err))
	}
}

func (s *RedisStore) Keys() []string {
	keys := s.scan()
	trimmed := make([]string, 0, len(keys))
	for _, k := range keys {
		trimmed = append(trimmed, k[len(s.prefix):])
	}
	return trimmed
}

func (s *RedisStore) Len() int {
	return len(s.scan())
}

func (s *RedisStore) Purge() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, key := range s.scan() {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			logging.Warn("redis cache purge delete failed", zap.Error(err))
			return
		}
	}
}

// scan returns all full (prefixed) keys in this namespace.
func (s *RedisStore) scan() []string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var all []string
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			logging.Warn("redis cache scan failed", zap.Error(err))
			return all
		}
		all = append(all, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return all
}

func (s *RedisStore) Stats() Stats {
	return Stats{
		Size:          s.Len(),
		WriteFailures: s.writeFailures.Load(),
	}
}

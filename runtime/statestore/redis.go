package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-backed Store implementation, for deployments where
// multiple engine processes must share session state. TTL is enforced by
// Redis key expiration (`SET ... EX`), so a sweep goroutine is unnecessary
// here: expired entries simply cease to exist server-side.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix for Redis keys. Default is "remotemedia".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// NewRedisStore creates a new Redis-backed state store.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: "remotemedia"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(k Key) string {
	return fmt.Sprintf("%s:state:%s:%s", s.prefix, k.SessionID, k.NodeID)
}

// sessionIndexKey names the Redis set tracking every node key that belongs
// to sessionID, enabling RemoveSession without a full key scan.
func (s *RedisStore) sessionIndexKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s:keys", s.prefix, sessionID)
}

// GetOrInit returns the current value for key, initializing it via init if
// absent, and refreshes an existing entry's expiry. It reads, then writes
// unconditionally rather than using SETNX or a Lua script, so callers
// racing on an absent key each run init and the last write wins, matching
// the precedent set elsewhere in this package of keeping Redis
// interactions to plain pipelined commands.
func (s *RedisStore) GetOrInit(ctx context.Context, key Key, ttl time.Duration, init func() ([]byte, error)) ([]byte, error) {
	if key.NodeID == "" || key.SessionID == "" {
		return nil, ErrInvalidKey
	}

	rk := s.key(key)
	existing, err := s.client.Get(ctx, rk).Bytes()
	if err == nil {
		pipe := s.client.Pipeline()
		pipe.Expire(ctx, rk, normalizeTTL(ttl))
		pipe.Expire(ctx, s.sessionIndexKey(key.SessionID), normalizeTTL(ttl))
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("statestore: redis pipeline: %w", err)
		}
		return existing, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("statestore: redis get: %w", err)
	}

	value, err := init()
	if err != nil {
		return nil, err
	}
	if err := s.set(ctx, key, value, normalizeTTL(ttl)); err != nil {
		return nil, err
	}
	return value, nil
}

// Update reads the current value (nil if absent) and replaces it with
// fn's result.
func (s *RedisStore) Update(ctx context.Context, key Key, ttl time.Duration, fn func(current []byte) ([]byte, error)) error {
	if key.NodeID == "" || key.SessionID == "" {
		return ErrInvalidKey
	}

	current, _, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return s.set(ctx, key, next, normalizeTTL(ttl))
}

func (s *RedisStore) set(ctx context.Context, key Key, value []byte, ttl time.Duration) error {
	rk := s.key(key)
	indexKey := s.sessionIndexKey(key.SessionID)

	pipe := s.client.Pipeline()
	pipe.Set(ctx, rk, value, ttl)
	pipe.SAdd(ctx, indexKey, rk)
	pipe.Expire(ctx, indexKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("statestore: redis pipeline: %w", err)
	}
	return nil
}

// Get returns the current value for key without initializing it.
func (s *RedisStore) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	if key.NodeID == "" || key.SessionID == "" {
		return nil, false, ErrInvalidKey
	}
	value, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("statestore: redis get: %w", err)
	}
	return value, true, nil
}

// Remove deletes a single entry.
func (s *RedisStore) Remove(ctx context.Context, key Key) error {
	rk := s.key(key)
	pipe := s.client.Pipeline()
	pipe.Del(ctx, rk)
	pipe.SRem(ctx, s.sessionIndexKey(key.SessionID), rk)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("statestore: redis pipeline: %w", err)
	}
	return nil
}

// RemoveSession removes every entry for sessionID using the session's
// key-index set, avoiding a KEYS/SCAN over the whole keyspace. The index is
// read first and the deletes follow in a non-transactional pipeline.
func (s *RedisStore) RemoveSession(ctx context.Context, sessionID string) error {
	indexKey := s.sessionIndexKey(sessionID)
	members, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("statestore: redis smembers: %w", err)
	}
	if len(members) == 0 {
		return s.client.Del(ctx, indexKey).Err()
	}

	pipe := s.client.Pipeline()
	keys := append(members, indexKey)
	for _, k := range keys {
		pipe.Del(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("statestore: redis pipeline: %w", err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

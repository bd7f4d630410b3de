package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// CredentialStore is the key-value contract the session subsystem needs:
// per-key expiry and atomic single-key operations, no multi-key
// transactions.
type CredentialStore interface {
	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the value under key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// HashSet sets field in the hash stored at key.
	HashSet(ctx context.Context, key, field, value string) error
	// HashGetAll returns every field of the hash at key; a missing key yields an empty map.
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	// HashDelete removes fields from the hash at key and returns how many existed.
	HashDelete(ctx context.Context, key string, fields ...string) (int64, error)
	// Expire (re)sets the TTL of key and reports whether key exists.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisCredentialStore implements CredentialStore on top of go-redis.
type RedisCredentialStore struct{ rdb redis.UniversalClient }

func NewRedisCredentialStore(rdb redis.UniversalClient) *RedisCredentialStore {
	return &RedisCredentialStore{rdb: rdb}
}

func (s *RedisCredentialStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *RedisCredentialStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (s *RedisCredentialStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Del(ctx, key).Result()
	return n > 0, err
}

func (s *RedisCredentialStore) HashSet(ctx context.Context, key, field, value string) error {
	return s.rdb.HSet(ctx, key, field, value).Err()
}

func (s *RedisCredentialStore) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, key).Result()
}

func (s *RedisCredentialStore) HashDelete(ctx context.Context, key string, fields ...string) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	return s.rdb.HDel(ctx, key, fields...).Result()
}

func (s *RedisCredentialStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.rdb.Expire(ctx, key, ttl).Result()
}

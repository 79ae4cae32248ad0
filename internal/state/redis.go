package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures a [RedisStore].
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix is prepended to every key, e.g. "reportsync:".
	KeyPrefix string
}

// RedisStore is a key-value store backed by a Redis server.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// OpenRedis connects to Redis and verifies the connection with a PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %q: %w", cfg.Addr, err)
	}
	return &RedisStore{rdb: rdb, prefix: cfg.KeyPrefix}, nil
}

// Close closes the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) key(k string) string          { return s.prefix + k }
func (s *RedisStore) updatedAtKey(k string) string { return s.prefix + k + ":updated_at" }

// Get returns the value stored under key. found is false when the key does
// not exist.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading key %q: %w", key, err)
	}
	return val, true, nil
}

// Set stores value under key without expiry. The value and its write time
// are updated in one MULTI/EXEC transaction.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(key), value, 0)
		pipe.Set(ctx, s.updatedAtKey(key), now, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing key %q: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key), s.updatedAtKey(key)).Err(); err != nil {
		return fmt.Errorf("removing key %q: %w", key, err)
	}
	return nil
}

// UpdatedAt returns when key was last written, or the zero time if the key
// does not exist.
func (s *RedisStore) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	raw, err := s.rdb.Get(ctx, s.updatedAtKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reading key %q: %w", key, err)
	}
	return parseTime(raw)
}

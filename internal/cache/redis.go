package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"order-engine/internal/model"
)

// Store is the shared cache tier behind the in-memory caches.
// Get returns model.ErrCacheMiss when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisOptions configures the pooled Redis client.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string // key namespace, e.g. "order-engine:"
}

// RedisStore implements Store with go-redis. Values are opaque bytes and
// expiry is delegated to Redis.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	ownsClient bool
}

// NewRedisStore dials Redis with a connection pool and verifies it responds.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: max(opts.PoolSize/4, 1),
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}

	return &RedisStore{client: client, prefix: opts.Prefix, ownsClient: true}, nil
}

// NewRedisStoreWithClient wraps an existing client. The caller keeps ownership.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

// Get fetches the value and its remaining TTL in one round trip.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, time.Duration, error) {
	k := s.key(key)
	var getCmd *redis.StringCmd
	var ttlCmd *redis.DurationCmd
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		getCmd = p.Get(ctx, k)
		ttlCmd = p.PTTL(ctx, k)
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, 0, model.ErrCacheMiss
	}
	if err != nil {
		return nil, 0, fmt.Errorf("redis get %s: %w", k, err)
	}

	data, err := getCmd.Bytes()
	if err != nil {
		return nil, 0, fmt.Errorf("redis get %s: %w", k, err)
	}
	ttl := ttlCmd.Val()
	if ttl <= 0 {
		// Key without expiry or already gone; treat as a miss so callers refill it.
		return nil, 0, model.ErrCacheMiss
	}
	return data, ttl, nil
}

// Set stores value with a TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key(key), err)
	}
	return nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", s.key(key), err)
	}
	return nil
}

// Close releases the pool if this store created it.
func (s *RedisStore) Close() error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)

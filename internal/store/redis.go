package store

import (
	"context"
	"errors"
	"time"

	"smartlauncher/internal/redis"
)

// nativeGrace keeps redis keys a little past their logical expiry so the
// store's own check, not redis, decides when a session is gone.
const nativeGrace = time.Minute

// RedisBackend stores entries in redis through the shared client wrapper.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return v, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	var ttl time.Duration
	if !expiresAt.IsZero() {
		ttl = time.Until(expiresAt) + nativeGrace
		if ttl <= 0 {
			ttl = nativeGrace
		}
	}
	return r.client.Set(ctx, key, value, ttl)
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key); err != nil && !errors.Is(err, redis.ErrCacheMiss) {
		return err
	}
	return nil
}

func (r *RedisBackend) Pop(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.GetDel(ctx, key)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return v, nil
}

func (r *RedisBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	return r.client.ScanPrefix(ctx, prefix)
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}

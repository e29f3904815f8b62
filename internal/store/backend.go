package store

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by backends for absent keys.
var ErrKeyNotFound = errors.New("key not found")

// Backend is a flat, namespaced key/value primitive with single-key atomicity.
// It has no expiry semantics of its own: expiresAt is only a hint a backend may
// use to reclaim space (redis does), the store always checks expiry itself.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, expiresAt time.Time) error
	// Delete must not fail when the key is already gone.
	Delete(ctx context.Context, key string) error
	// Pop atomically reads and removes a key.
	Pop(ctx context.Context, key string) ([]byte, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

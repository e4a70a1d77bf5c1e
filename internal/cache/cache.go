// Package cache provides the quote and read-through caches. Values are stored
// as JSON so the memory and redis backends behave the same.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cache stores JSON-encoded values with a TTL.
type Cache interface {
	// Get decodes the value at key into dst. A miss returns false and no
	// error.
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// Key joins parts into a namespaced cache key.
func Key(namespace string, parts ...string) string {
	key := "splito:" + namespace
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// Remember returns the cached value at key or calls load and caches its
// result. Cache failures never fail the call.
func Remember[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var cached T
	if c != nil {
		if ok, err := c.Get(ctx, key, &cached); err == nil && ok {
			return cached, nil
		}
	}
	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	if c != nil {
		_ = c.Set(ctx, key, value, ttl)
	}
	return value, nil
}

func encode(value interface{}) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode cache value: %w", err)
	}
	return raw, nil
}

func decode(raw []byte, dst interface{}) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode cache value: %w", err)
	}
	return nil
}

// Package redis implements storage.KV on Redis strings.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ecobazaar/storefront/internal/storage"
	"github.com/ecobazaar/storefront/pkg/database"
)

const system = "redis"

// KV stores each value as a Redis string. A positive ttl is refreshed on
// every write; zero keeps keys forever.
type KV struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// New creates a Redis-backed KV.
func New(client redis.UniversalClient, ttl time.Duration) *KV {
	if ttl < 0 {
		ttl = 0
	}
	return &KV{client: client, ttl: ttl}
}

// Get returns the value at key.
func (r *KV) Get(ctx context.Context, key string) (_ []byte, err error) {
	ctx, end := database.TraceQuery(ctx, system, "kv.get", "GET "+key)
	defer func() { end(err) }()

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.KeyNotFound(key)
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// Set writes value at key with the configured TTL.
func (r *KV) Set(ctx context.Context, key string, value []byte) (err error) {
	ctx, end := database.TraceQuery(ctx, system, "kv.set", "SET "+key)
	defer func() { end(err) }()

	if err = r.client.Set(ctx, key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping checks the connection.
func (r *KV) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

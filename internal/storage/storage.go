// Package storage defines the durable key-value contract the store persists
// its collections through.
package storage

import (
	"context"
	"errors"

	apperrors "github.com/ecobazaar/storefront/pkg/errors"
)

// Fixed keys for the two persisted collections.
const (
	KeyCart   = "cart"
	KeyOrders = "orders"
)

// KV is a string-keyed store of opaque JSON documents.
type KV interface {
	// Get returns the value stored at key, or an error matching
	// apperrors.ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value at key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error
}

// Pinger is implemented by backends that can report their reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KeyNotFound returns the error backends report for an absent key.
func KeyNotFound(key string) error {
	return apperrors.NotFound("storage key", key)
}

// IsNotFound reports whether err signals an absent key.
func IsNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}

// Namespace returns a KV that prefixes every key with prefix.
func Namespace(kv KV, prefix string) KV {
	if prefix == "" {
		return kv
	}
	if ns, ok := kv.(*namespaced); ok {
		return &namespaced{kv: ns.kv, prefix: ns.prefix + prefix}
	}
	return &namespaced{kv: kv, prefix: prefix}
}

type namespaced struct {
	kv     KV
	prefix string
}

func (n *namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.kv.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.kv.Set(ctx, n.prefix+key, value)
}

func (n *namespaced) Ping(ctx context.Context) error {
	if p, ok := n.kv.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

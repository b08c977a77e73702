// Package store persists coaching history and usage statistics.
//
// A [Store] is a small key/value port holding JSON documents. Three
// implementations are provided: [Memory] for tests and ephemeral runs,
// [File] for a single JSON file on disk and [Postgres] for a shared
// database. Typed repositories such as [History] sit on top of the port.
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store holds JSON documents by key. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the document stored under key. It returns (nil, nil) if the
	// key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous document.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// GetJSON decodes the document under key into v. It reports false if the key
// does not exist.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("store: decode %q: %w", key, err)
	}
	return true, nil
}

// PutJSON encodes v and stores it under key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", key, err)
	}
	return s.Put(ctx, key, data)
}

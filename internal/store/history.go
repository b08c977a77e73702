package store

import (
	"context"
	"fmt"
	"sync"
)

// DefaultHistoryLimit is the number of entries a [History] keeps.
const DefaultHistoryLimit = 10

// History is a newest-first list of T kept under one key and capped at a
// fixed length. Writers through the same History are serialised.
type History[T any] struct {
	store Store
	key   string
	limit int

	mu sync.Mutex
}

// NewHistory returns a History stored under key. A non-positive limit uses
// [DefaultHistoryLimit].
func NewHistory[T any](s Store, key string, limit int) *History[T] {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History[T]{store: s, key: key, limit: limit}
}

// List returns the entries, newest first.
func (h *History[T]) List(ctx context.Context) ([]T, error) {
	var items []T
	if _, err := GetJSON(ctx, h.store, h.key, &items); err != nil {
		return nil, fmt.Errorf("store: list %s: %w", h.key, err)
	}
	return items, nil
}

// Add prepends item and drops entries beyond the limit.
func (h *History[T]) Add(ctx context.Context, item T) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	items, err := h.List(ctx)
	if err != nil {
		return err
	}
	items = append([]T{item}, items...)
	if len(items) > h.limit {
		items = items[:h.limit]
	}
	if err := PutJSON(ctx, h.store, h.key, items); err != nil {
		return fmt.Errorf("store: add %s: %w", h.key, err)
	}
	return nil
}

// Clear removes every entry.
func (h *History[T]) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store.Delete(ctx, h.key)
}

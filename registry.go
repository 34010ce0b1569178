package access

import (
	"cmp"
	"slices"
	"sync"
)

// Ordered entries expose the key used to sort them in a ConfigRegistry.
type Ordered interface {
	SortOrder() int
}

// ConfigRegistry is an append-only list of entries read back sorted by
// SortOrder. Entries with the same order keep their registration order.
type ConfigRegistry[T Ordered] struct {
	mu    sync.RWMutex
	items []T
}

// NewConfigRegistry returns an empty registry.
func NewConfigRegistry[T Ordered]() *ConfigRegistry[T] {
	return &ConfigRegistry[T]{}
}

// Register appends entry. There is no uniqueness check.
func (r *ConfigRegistry[T]) Register(entry T) {
	r.mu.Lock()
	r.items = append(r.items, entry)
	r.mu.Unlock()
}

// Items returns a sorted copy of the registered entries.
func (r *ConfigRegistry[T]) Items() []T {
	r.mu.RLock()
	items := slices.Clone(r.items)
	r.mu.RUnlock()

	slices.SortStableFunc(items, func(a, b T) int {
		return cmp.Compare(a.SortOrder(), b.SortOrder())
	})
	return items
}

func (r *ConfigRegistry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Reset drops every entry.
func (r *ConfigRegistry[T]) Reset() {
	r.mu.Lock()
	r.items = nil
	r.mu.Unlock()
}

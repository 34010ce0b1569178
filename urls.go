package access

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
)

// URLResolver maps a route name to a path. Unknown names must fail with an
// error wrapping ErrRouteNotFound.
type URLResolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// URLResolverFunc adapts a function to the URLResolver interface.
type URLResolverFunc func(ctx context.Context, name string) (string, error)

// Resolve implements URLResolver.
func (f URLResolverFunc) Resolve(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}

// RouteTable is a static URLResolver. Names may be namespaced, for example
// "dashboard:index".
type RouteTable struct {
	mu     sync.RWMutex
	routes map[string]string
}

func NewRouteTable(routes map[string]string) *RouteTable {
	t := &RouteTable{routes: map[string]string{}}
	for name, path := range routes {
		t.Add(name, path)
	}
	return t
}

// Add registers or replaces a route.
func (t *RouteTable) Add(name, path string) {
	t.mu.Lock()
	t.routes[strings.TrimSpace(name)] = path
	t.mu.Unlock()
}

func (t *RouteTable) Resolve(_ context.Context, name string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if path, ok := t.routes[name]; ok {
		return path, nil
	}
	// absolute paths and URLs resolve to themselves
	if strings.HasPrefix(name, "/") || strings.Contains(name, "://") {
		return name, nil
	}
	return "", newError(ErrRouteNotFound, map[string]any{"route": name})
}

// Names returns the sorted route names.
func (t *RouteTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Sorted(maps.Keys(t.routes))
}

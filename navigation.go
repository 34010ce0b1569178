package access

import (
	"context"
	"errors"
)

// NavItem is a menu entry. Target is a route name resolved at render time.
type NavItem struct {
	Name     string    `json:"name"`
	Target   string    `json:"target"`
	Order    int       `json:"order"`
	Fragment string    `json:"fragment,omitempty"`
	Type     string    `json:"type,omitempty"`
	Extra    ConfigMap `json:"extra,omitempty"`
}

func (n NavItem) SortOrder() int { return n.Order }

// ResolvedNavItem is a NavItem with its URL.
type ResolvedNavItem struct {
	NavItem
	URL string `json:"url"`
}

// NavOption customizes a NavItem at registration.
type NavOption func(*NavItem)

func WithOrder(order int) NavOption {
	return func(n *NavItem) { n.Order = order }
}

// WithFragment appends "#fragment" to the resolved URL.
func WithFragment(fragment string) NavOption {
	return func(n *NavItem) { n.Fragment = fragment }
}

func WithType(typ string) NavOption {
	return func(n *NavItem) { n.Type = typ }
}

// WithExtra merges arbitrary metadata into the entry.
func WithExtra(extra ConfigMap) NavOption {
	return func(n *NavItem) {
		if n.Extra == nil {
			n.Extra = ConfigMap{}
		}
		n.Extra.Merge(extra)
	}
}

// NavigationRegistry is the ordered list of menu entries. Registering the
// same entry twice renders it twice.
type NavigationRegistry struct {
	items  *ConfigRegistry[NavItem]
	logger Logger
}

// NavigationOption customizes a NavigationRegistry.
type NavigationOption func(*NavigationRegistry)

func WithNavigationLogger(logger Logger) NavigationOption {
	return func(r *NavigationRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewNavigationRegistry(opts ...NavigationOption) *NavigationRegistry {
	_, logger := ResolveLogger("access.navigation", nil, nil)
	r := &NavigationRegistry{
		items:  NewConfigRegistry[NavItem](),
		logger: logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Register appends an entry.
func (r *NavigationRegistry) Register(name, target string, opts ...NavOption) {
	item := NavItem{Name: name, Target: target}
	for _, opt := range opts {
		if opt != nil {
			opt(&item)
		}
	}
	r.items.Register(item)
}

// Items returns the entries sorted by order, ties in registration order.
func (r *NavigationRegistry) Items() []NavItem {
	return r.items.Items()
}

func (r *NavigationRegistry) Len() int { return r.items.Len() }

// Reset drops every entry.
func (r *NavigationRegistry) Reset() { r.items.Reset() }

// Resolve returns the sorted entries with URLs. Entries whose route cannot
// be resolved are left out.
func (r *NavigationRegistry) Resolve(ctx context.Context, resolver URLResolver) []ResolvedNavItem {
	items := r.Items()
	out := make([]ResolvedNavItem, 0, len(items))

	for _, item := range items {
		url, err := resolver.Resolve(ctx, item.Target)
		if err != nil {
			if errors.Is(err, ErrRouteNotFound) {
				r.logger.Debug("nav item skipped, route not found", "name", item.Name, "target", item.Target)
			} else {
				r.logger.Warn("nav item skipped", "name", item.Name, "target", item.Target, "error", err)
			}
			continue
		}
		if item.Fragment != "" {
			url += "#" + item.Fragment
		}
		out = append(out, ResolvedNavItem{NavItem: item, URL: url})
	}
	return out
}

package access

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// HomeURLRegistry holds the single home route. The first module to register
// owns it.
type HomeURLRegistry struct {
	mu     sync.RWMutex
	name   string
	owner  string
	logger Logger
}

// HomeOption customizes a HomeURLRegistry.
type HomeOption func(*HomeURLRegistry)

func WithHomeLogger(logger Logger) HomeOption {
	return func(r *HomeURLRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewHomeURLRegistry(opts ...HomeOption) *HomeURLRegistry {
	_, logger := ResolveLogger("access.home", nil, nil)
	r := &HomeURLRegistry{logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RegisterHomeURL sets the home route unless one is set already, in which
// case it logs and returns false.
func (r *HomeURLRegistry) RegisterHomeURL(target, owner string) bool {
	if target == "" {
		r.logger.Warn("home url registration without target ignored", "requested_by", owner)
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.name != "" {
		r.logger.Warn("home url already registered, ignoring",
			"registered", r.name,
			"owner", r.owner,
			"target", target,
			"requested_by", owner,
		)
		return false
	}

	r.name, r.owner = target, owner
	r.logger.Info("home url registered", "target", target, "owner", owner)
	return true
}

// HomeURL resolves the home route.
func (r *HomeURLRegistry) HomeURL(ctx context.Context, resolver URLResolver) (string, error) {
	r.mu.RLock()
	name, owner := r.name, r.owner
	r.mu.RUnlock()

	if name == "" {
		return "", newError(ErrNotConfigured, map[string]any{
			"hint": "register a home url during module setup",
		})
	}

	url, err := resolver.Resolve(ctx, name)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "could not resolve home url").
			WithTextCode(TextCodeNotConfigured).
			WithMetadata(map[string]any{"target": name, "owner": owner})
	}
	return url, nil
}

// HomeURLName returns the registered route name or "".
func (r *HomeURLRegistry) HomeURLName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

// HomeOwner returns the module that registered the home route.
func (r *HomeURLRegistry) HomeOwner() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner
}

func (r *HomeURLRegistry) IsRegistered() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name != ""
}

// Clear forgets the registration.
func (r *HomeURLRegistry) Clear() {
	r.mu.Lock()
	r.name, r.owner = "", ""
	r.mu.Unlock()
}

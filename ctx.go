package access

import (
	"context"

	"github.com/goliatone/go-router"
)

var actorCtxKey = &contextKey{"actor"}
var principalCtxKey = &contextKey{"principal"}

type contextKey struct {
	name string
}

// DefaultPrincipalLocalsKey is the router locals key RequirePermission reads
// when no key is given.
const DefaultPrincipalLocalsKey = "principal"

// WithActorContext sets the actor recorded on activity events.
func WithActorContext(ctx context.Context, actor ActorRef) context.Context {
	return context.WithValue(ctx, actorCtxKey, actor)
}

// ActorFromContext finds the actor set by WithActorContext.
func ActorFromContext(ctx context.Context) (ActorRef, bool) {
	if ctx == nil {
		return ActorRef{}, false
	}
	actor, ok := ctx.Value(actorCtxKey).(ActorRef)
	return actor, ok
}

// WithPrincipalContext sets the principal in the given context.
func WithPrincipalContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

// PrincipalFromContext finds the principal from the context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalCtxKey).(*Principal)
	return p, ok && p != nil
}

// GetRouterPrincipal extracts the principal from the router locals.
func GetRouterPrincipal(ctx router.Context, key string) (*Principal, bool) {
	if key == "" {
		key = DefaultPrincipalLocalsKey
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	p, ok := raw.(*Principal)
	return p, ok && p != nil
}

// Can reports whether the principal in ctx holds permission.
func (s *Site) Can(ctx context.Context, permission string) bool {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return false
	}
	return s.PrincipalCan(ctx, p, permission)
}

// PrincipalCan reports whether p holds permission through its role.
// Superusers hold every permission.
func (s *Site) PrincipalCan(ctx context.Context, p *Principal, permission string) bool {
	if p == nil {
		return false
	}
	if p.IsSuperuser {
		return true
	}
	role, err := s.Principals.Role(ctx, p.ID)
	if err != nil {
		s.logger.Debug("permission check without role", "principal_id", p.ID.String(), "error", err)
		return false
	}
	return role != "" && s.Permissions.HasPermission(role, permission)
}

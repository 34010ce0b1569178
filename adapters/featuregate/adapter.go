// Package featuregateadapter exposes site principals to go-featuregate so
// feature flags can be scoped by role and permission.
package featuregateadapter

import (
	"context"
	"slices"

	access "github.com/gcimedia/go-access"
	"github.com/goliatone/go-featuregate/gate"
)

const (
	actorRefType = "principal"
	// MetadataKeyTenant is the principal metadata key read as the claims tenant.
	MetadataKeyTenant = "tenant_id"
	// MetadataKeyOrg is the principal metadata key read as the claims org.
	MetadataKeyOrg = "org_id"
)

// PrincipalExtractor finds the current principal in a context.
type PrincipalExtractor func(context.Context) (*access.Principal, bool)

// Option customizes ClaimsProvider behavior.
type Option func(*ClaimsProvider)

// ClaimsProvider derives feature claims from the principal in context.
type ClaimsProvider struct {
	site      *access.Site
	extractor PrincipalExtractor
}

// NewClaimsProvider builds a claims provider reading roles and permissions
// from site.
func NewClaimsProvider(site *access.Site, opts ...Option) *ClaimsProvider {
	provider := &ClaimsProvider{
		site:      site,
		extractor: access.PrincipalFromContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	if provider.extractor == nil {
		provider.extractor = access.PrincipalFromContext
	}
	return provider
}

// WithPrincipalExtractor overrides the principal extractor.
func WithPrincipalExtractor(extractor PrincipalExtractor) Option {
	return func(provider *ClaimsProvider) {
		if provider == nil {
			return
		}
		provider.extractor = extractor
	}
}

// ClaimsFromContext implements gate.ClaimsProvider. A missing principal
// yields empty claims.
func (p *ClaimsProvider) ClaimsFromContext(ctx context.Context) (gate.ActorClaims, error) {
	if p == nil || p.extractor == nil || ctx == nil {
		return gate.ActorClaims{}, nil
	}
	principal, ok := p.extractor(ctx)
	if !ok || principal == nil {
		return gate.ActorClaims{}, nil
	}
	return ClaimsFromPrincipal(ctx, p.site, principal)
}

// ClaimsFromPrincipal builds ActorClaims for principal. The role comes from
// the principal's group membership and the permissions from that role.
func ClaimsFromPrincipal(ctx context.Context, site *access.Site, principal *access.Principal) (gate.ActorClaims, error) {
	if principal == nil {
		return gate.ActorClaims{}, nil
	}
	claims := gate.ActorClaims{
		SubjectID: principal.ID.String(),
		TenantID:  metadataString(principal, MetadataKeyTenant),
		OrgID:     metadataString(principal, MetadataKeyOrg),
	}
	if site == nil {
		return claims, nil
	}

	role, err := site.Principals.Role(ctx, principal.ID)
	if err != nil {
		return claims, err
	}
	if role != "" {
		claims.Roles = []string{role}
		if perms := site.Permissions.Permissions(role); len(perms) > 0 {
			claims.Perms = perms
		}
	}
	return claims, nil
}

// PermissionProvider resolves permissions from the site's permission registry.
type PermissionProvider struct {
	site *access.Site
}

// NewPermissionProvider builds a permission provider backed by site.
func NewPermissionProvider(site *access.Site) *PermissionProvider {
	return &PermissionProvider{site: site}
}

// Permissions implements gate.PermissionProvider. It merges the claims
// permissions with those of every claimed role.
func (p *PermissionProvider) Permissions(_ context.Context, claims gate.ActorClaims) ([]string, error) {
	if p == nil || p.site == nil {
		return claims.Perms, nil
	}
	var derived []string
	for _, role := range claims.Roles {
		derived = append(derived, p.site.Permissions.Permissions(role)...)
	}
	return mergePerms(claims.Perms, derived), nil
}

func mergePerms(existing, derived []string) []string {
	if len(existing) == 0 && len(derived) == 0 {
		return nil
	}
	merged := make([]string, 0, len(existing)+len(derived))
	merged = append(merged, existing...)
	merged = append(merged, derived...)
	slices.Sort(merged)
	return slices.Compact(merged)
}

// ActorRefFromPrincipal builds a gate.ActorRef from a principal.
func ActorRefFromPrincipal(principal *access.Principal) gate.ActorRef {
	if principal == nil {
		return gate.ActorRef{}
	}
	return gate.ActorRef{
		ID:   principal.ID.String(),
		Type: actorRefType,
		Name: principal.Username,
	}
}

// ActorRefFromContext extracts a gate.ActorRef from context.
func ActorRefFromContext(ctx context.Context) (gate.ActorRef, bool) {
	principal, ok := access.PrincipalFromContext(ctx)
	if !ok {
		return gate.ActorRef{}, false
	}
	return ActorRefFromPrincipal(principal), true
}

func metadataString(principal *access.Principal, key string) string {
	if v, ok := principal.Metadata[key].(string); ok {
		return v
	}
	return ""
}

var _ gate.ClaimsProvider = (*ClaimsProvider)(nil)
var _ gate.PermissionProvider = (*PermissionProvider)(nil)

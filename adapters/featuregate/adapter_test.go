package featuregateadapter

import (
	"context"
	"errors"
	"reflect"
	"testing"

	access "github.com/gcimedia/go-access"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/google/uuid"
)

func newSite(t *testing.T) *access.Site {
	t.Helper()

	site := access.NewSite()
	t.Cleanup(site.Close)
	err := site.Roles.RegisterRoles([]access.RoleInput{
		access.RoleName("student"),
		access.Role{Name: "instructor", Label: "Instructor", IsStaff: true},
	}, "student")
	if err != nil {
		t.Fatalf("register roles: %v", err)
	}
	if _, err := site.Permissions.SetPermissions("instructor", []string{"courses.view", "courses.edit"}); err != nil {
		t.Fatalf("set permissions: %v", err)
	}
	return site
}

func TestClaimsFromPrincipal(t *testing.T) {
	site := newSite(t)
	ctx := context.Background()

	p, err := site.Principals.Create(ctx, access.NewPrincipal{Username: "ana", Role: "instructor"})
	if err != nil {
		t.Fatalf("create principal: %v", err)
	}
	p.AddMetadata(MetadataKeyTenant, "tenant-1")

	claims, err := ClaimsFromPrincipal(ctx, site, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.SubjectID != p.ID.String() {
		t.Fatalf("expected SubjectID %q, got %q", p.ID.String(), claims.SubjectID)
	}
	if claims.TenantID != "tenant-1" || claims.OrgID != "" {
		t.Fatalf("unexpected tenant/org: %q/%q", claims.TenantID, claims.OrgID)
	}
	if !reflect.DeepEqual(claims.Roles, []string{"instructor"}) {
		t.Fatalf("unexpected roles: %#v", claims.Roles)
	}
	if !reflect.DeepEqual(claims.Perms, []string{"courses.edit", "courses.view"}) {
		t.Fatalf("unexpected perms: %#v", claims.Perms)
	}
}

func TestClaimsProviderClaimsFromContext(t *testing.T) {
	site := newSite(t)
	ctx := context.Background()
	provider := NewClaimsProvider(site)

	claims, err := provider.ClaimsFromContext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(claims, gate.ActorClaims{}) {
		t.Fatalf("expected empty claims, got %#v", claims)
	}

	p, err := site.Principals.Create(ctx, access.NewPrincipal{Username: "bo"})
	if err != nil {
		t.Fatalf("create principal: %v", err)
	}
	claims, err = provider.ClaimsFromContext(access.WithPrincipalContext(ctx, p))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(claims.Roles, []string{"student"}) {
		t.Fatalf("unexpected roles: %#v", claims.Roles)
	}
	if claims.Perms != nil {
		t.Fatalf("expected no perms for student, got %#v", claims.Perms)
	}
}

func TestClaimsProviderRoleLookupFailure(t *testing.T) {
	site := newSite(t)
	ctx := context.Background()

	p, err := site.Principals.Create(ctx, access.NewPrincipal{Username: "ana"})
	if err != nil {
		t.Fatalf("create principal: %v", err)
	}
	if err := site.Store.Principals().AddGroups(ctx, p.ID, "instructor"); err != nil {
		t.Fatalf("add groups: %v", err)
	}

	provider := NewClaimsProvider(site, WithPrincipalExtractor(func(context.Context) (*access.Principal, bool) {
		return p, true
	}))
	claims, err := provider.ClaimsFromContext(ctx)
	if !errors.Is(err, access.ErrMultipleRoles) {
		t.Fatalf("expected ErrMultipleRoles, got %v", err)
	}
	if claims.SubjectID != p.ID.String() || claims.Roles != nil {
		t.Fatalf("unexpected claims: %#v", claims)
	}
}

func TestPermissionProviderMergesRolePermissions(t *testing.T) {
	site := newSite(t)
	provider := NewPermissionProvider(site)

	perms, err := provider.Permissions(context.Background(), gate.ActorClaims{
		Roles: []string{"instructor"},
		Perms: []string{"courses.view", "forum.post"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{"courses.edit", "courses.view", "forum.post"}
	if !reflect.DeepEqual(perms, expected) {
		t.Fatalf("unexpected perms: %#v", perms)
	}

	perms, err = provider.Permissions(context.Background(), gate.ActorClaims{Roles: []string{"student"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if perms != nil {
		t.Fatalf("expected nil perms, got %#v", perms)
	}
}

func TestActorRefFromContext(t *testing.T) {
	if _, ok := ActorRefFromContext(context.Background()); ok {
		t.Fatalf("expected no actor without principal")
	}

	p := &access.Principal{ID: uuid.New(), Username: "ana"}
	ref, ok := ActorRefFromContext(access.WithPrincipalContext(context.Background(), p))
	if !ok {
		t.Fatalf("expected actor ref")
	}
	if ref.ID != p.ID.String() || ref.Type != "principal" || ref.Name != "ana" {
		t.Fatalf("unexpected actor ref: %#v", ref)
	}
}

package access

import (
	"context"

	"github.com/google/uuid"
)

// PrincipalFilter narrows ListPrincipals.
type PrincipalFilter struct {
	ExcludeSuperusers bool
	// Group keeps principals that belong to the named group.
	Group string
}

// PrincipalStore persists principals and their group memberships.
type PrincipalStore interface {
	GetPrincipal(ctx context.Context, id uuid.UUID) (*Principal, error)
	CreatePrincipal(ctx context.Context, p *Principal) (*Principal, error)
	SavePrincipal(ctx context.Context, p *Principal) (*Principal, error)
	ListPrincipals(ctx context.Context, filter PrincipalFilter) ([]*Principal, error)

	Groups(ctx context.Context, id uuid.UUID) ([]string, error)
	AddGroups(ctx context.Context, id uuid.UUID, groups ...string) error
	RemoveGroups(ctx context.Context, id uuid.UUID, groups ...string) error

	// UpdateStaffFlag writes the staff column only and runs no save hooks.
	UpdateStaffFlag(ctx context.Context, id uuid.UUID, isStaff bool) error
}

// RoleStore persists role records and their permissions.
type RoleStore interface {
	ListRoles(ctx context.Context) ([]*RoleRecord, error)
	GetRole(ctx context.Context, name string) (*RoleRecord, error)
	CreateRole(ctx context.Context, role *RoleRecord) (*RoleRecord, error)
	UpdateRole(ctx context.Context, role *RoleRecord) (*RoleRecord, error)
	DeleteRole(ctx context.Context, name string) error
	DefaultRoles(ctx context.Context) ([]*RoleRecord, error)

	RolePermissions(ctx context.Context, role string) ([]string, error)
	SetRolePermissions(ctx context.Context, role string, permissions []string) error
}

// Store groups the stores and runs work atomically across them.
type Store interface {
	Principals() PrincipalStore
	Roles() RoleStore
	// RunInTx runs fn against a transactional view of the store. The work is
	// rolled back when fn returns an error.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

func principalNotFound(id uuid.UUID) error {
	return newError(ErrPrincipalNotFound, map[string]any{"principal_id": id.String()})
}

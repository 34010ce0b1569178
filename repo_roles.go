package access

import (
	"context"
	"slices"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Roles is the bun backed RoleStore.
type Roles interface {
	repository.Repository[*RoleRecord]
	RoleStore
}

type roles struct {
	repository.Repository[*RoleRecord]
	db bun.IDB
}

var _ Roles = (*roles)(nil)

// NewRolesRepository returns a RoleStore on db.
func NewRolesRepository(db *bun.DB) Roles {
	return newRoles(db, db)
}

func newRoles(db *bun.DB, idb bun.IDB) *roles {
	repo := repository.NewRepository[*RoleRecord](db, repository.ModelHandlers[*RoleRecord]{
		NewRecord: func() *RoleRecord { return &RoleRecord{} },
		GetID: func(r *RoleRecord) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *RoleRecord, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})
	return &roles{Repository: repo, db: idb}
}

func (a *roles) ListRoles(ctx context.Context) ([]*RoleRecord, error) {
	var records []*RoleRecord
	err := a.db.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.name ASC").
		Scan(ctx)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, persistenceError(err, "list_roles", nil)
	}
	return records, nil
}

func (a *roles) GetRole(ctx context.Context, name string) (*RoleRecord, error) {
	record, err := a.Repository.GetByIdentifierTx(ctx, a.db, name)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, unknownRole(name)
		}
		return nil, persistenceError(err, "get_role", map[string]any{"role": name})
	}
	return record, nil
}

func (a *roles) CreateRole(ctx context.Context, role *RoleRecord) (*RoleRecord, error) {
	if err := ValidateRoleName(role.Name); err != nil {
		return nil, err
	}

	exists, err := a.db.NewSelect().
		Model((*RoleRecord)(nil)).
		Where("?TableAlias.name = ?", role.Name).
		Exists(ctx)
	if err != nil {
		return nil, persistenceError(err, "role_exists", map[string]any{"role": role.Name})
	}
	if exists {
		return nil, newError(ErrDuplicateRole, map[string]any{"role": role.Name})
	}

	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	record, err := a.Repository.CreateTx(ctx, a.db, role)
	if err != nil {
		return nil, persistenceError(err, "create_role", map[string]any{"role": role.Name})
	}
	return record, nil
}

// UpdateRole writes label, flags and description of the role named
// role.Name.
func (a *roles) UpdateRole(ctx context.Context, role *RoleRecord) (*RoleRecord, error) {
	now := time.Now()
	role.UpdatedAt = &now

	res, err := a.db.NewUpdate().
		Model(role).
		Column("label", "is_staff", "is_default", "description", "updated_at").
		Where("?TableAlias.name = ?", role.Name).
		Exec(ctx)
	if err != nil {
		return nil, persistenceError(err, "update_role", map[string]any{"role": role.Name})
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, unknownRole(role.Name)
	}
	return a.GetRole(ctx, role.Name)
}

func (a *roles) DeleteRole(ctx context.Context, name string) error {
	res, err := a.db.NewDelete().
		Model((*RoleRecord)(nil)).
		Where("name = ?", name).
		Exec(ctx)
	if err != nil {
		return persistenceError(err, "delete_role", map[string]any{"role": name})
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return unknownRole(name)
	}

	_, err = a.db.NewDelete().
		Model((*RolePermission)(nil)).
		Where("role_name = ?", name).
		Exec(ctx)
	return persistenceError(err, "delete_role_permissions", map[string]any{"role": name})
}

func (a *roles) DefaultRoles(ctx context.Context) ([]*RoleRecord, error) {
	var records []*RoleRecord
	err := a.db.NewSelect().
		Model(&records).
		Where("?TableAlias.is_default = ?", true).
		OrderExpr("?TableAlias.name ASC").
		Scan(ctx)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, persistenceError(err, "default_roles", nil)
	}
	return records, nil
}

func (a *roles) RolePermissions(ctx context.Context, role string) ([]string, error) {
	var perms []string
	err := a.db.NewSelect().
		Model((*RolePermission)(nil)).
		Column("permission").
		Where("role_name = ?", role).
		OrderExpr("permission ASC").
		Scan(ctx, &perms)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, persistenceError(err, "role_permissions", map[string]any{"role": role})
	}
	return perms, nil
}

// SetRolePermissions replaces the stored permissions of role.
func (a *roles) SetRolePermissions(ctx context.Context, role string, permissions []string) error {
	_, err := a.db.NewDelete().
		Model((*RolePermission)(nil)).
		Where("role_name = ?", role).
		Exec(ctx)
	if err != nil {
		return persistenceError(err, "clear_role_permissions", map[string]any{"role": role})
	}

	perms := slices.Compact(slices.Sorted(slices.Values(permissions)))
	if len(perms) == 0 {
		return nil
	}

	rows := make([]*RolePermission, 0, len(perms))
	for _, p := range perms {
		rows = append(rows, &RolePermission{RoleName: role, Permission: p})
	}
	_, err = a.db.NewInsert().Model(&rows).Exec(ctx)
	return persistenceError(err, "set_role_permissions", map[string]any{"role": role})
}

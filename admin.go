package access

import (
	"context"
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

// RoleForm is the payload of the role admin screens.
type RoleForm struct {
	Name        string   `form:"name" json:"name"`
	Label       string   `form:"label" json:"label"`
	IsStaff     bool     `form:"is_staff" json:"is_staff"`
	IsDefault   bool     `form:"is_default" json:"is_default"`
	Description string   `form:"description" json:"description"`
	Permissions []string `form:"permissions" json:"permissions"`
}

// Validate checks the field formats.
func (f RoleForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Name,
			validation.Required,
			validation.Length(1, RoleNameMaxLength),
			validation.Match(roleNamePattern),
		),
		validation.Field(&f.Label, validation.Length(0, 100)),
		validation.Field(&f.Description, validation.Length(0, 500)),
		validation.Field(&f.Permissions, validation.By(validatePermissionList)),
	)
}

func validatePermissionList(value any) error {
	ids, _ := value.([]string)
	var bad []string
	for _, id := range ids {
		if _, err := ParsePermission(id); err != nil {
			bad = append(bad, id)
		}
	}
	if len(bad) > 0 {
		return errors.New("malformed permissions, expected domain.action: " + strings.Join(bad, ", "))
	}
	return nil
}

func (f RoleForm) role() Role {
	return Role{
		Name:        strings.TrimSpace(f.Name),
		Label:       strings.TrimSpace(f.Label),
		IsStaff:     f.IsStaff,
		IsDefault:   f.IsDefault,
		Description: f.Description,
	}
}

// formError turns a validation failure into a validation category error so
// HTTP layers render it as a form error.
func formError(err error) error {
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		md := make(map[string]any, len(fieldErrs))
		for field, fe := range fieldErrs {
			md[field] = fe.Error()
		}
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid role form").
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(md)
	}
	return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid role form").
		WithCode(goerrors.CodeBadRequest)
}

// RoleAdmin is the administrative surface for persisted roles. Every edit is
// applied to the store first and then mirrored into the registries.
type RoleAdmin struct {
	store    Store
	roles    *RoleRegistry
	perms    *PermissionRegistry
	events   EventPublisher
	activity ActivitySink
	logger   Logger
}

// RoleAdminOption customizes a RoleAdmin.
type RoleAdminOption func(*RoleAdmin)

func WithRoleAdminEvents(p EventPublisher) RoleAdminOption {
	return func(a *RoleAdmin) {
		a.events = p
	}
}

func WithRoleAdminActivitySink(sink ActivitySink) RoleAdminOption {
	return func(a *RoleAdmin) {
		a.activity = sink
	}
}

func WithRoleAdminLogger(logger Logger) RoleAdminOption {
	return func(a *RoleAdmin) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewRoleAdmin(store Store, roles *RoleRegistry, perms *PermissionRegistry, opts ...RoleAdminOption) *RoleAdmin {
	_, logger := ResolveLogger("access.admin", nil, nil)
	a := &RoleAdmin{
		store:  store,
		roles:  roles,
		perms:  perms,
		logger: logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.events = normalizePublisher(a.events)
	return a
}

// AvailableRoleChoices returns the declared roles that have no record yet.
// It is computed on every call.
func (a *RoleAdmin) AvailableRoleChoices(ctx context.Context) ([]Role, error) {
	records, err := a.store.Roles().ListRoles(ctx)
	if err != nil {
		return nil, err
	}

	persisted := make(map[string]struct{}, len(records))
	for _, r := range records {
		persisted[r.Name] = struct{}{}
	}

	var out []Role
	for _, role := range a.roles.Roles() {
		if _, ok := persisted[role.Name]; !ok {
			out = append(out, role)
		}
	}
	return out, nil
}

// ListRoles returns the persisted roles.
func (a *RoleAdmin) ListRoles(ctx context.Context) ([]*RoleRecord, error) {
	return a.store.Roles().ListRoles(ctx)
}

// CreateRole persists a declared role.
func (a *RoleAdmin) CreateRole(ctx context.Context, actor ActorRef, form RoleForm) (*RoleRecord, error) {
	if err := form.Validate(); err != nil {
		return nil, formError(err)
	}
	role := form.role()

	if !a.roles.IsValidRole(role.Name) {
		return nil, newError(ErrUnknownRole, map[string]any{
			"role":   role.Name,
			"reason": "only declared roles can be persisted",
		})
	}

	var record *RoleRecord
	err := a.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		if role.IsDefault {
			if err := ensureNoOtherDefault(ctx, tx.Roles(), role.Name); err != nil {
				return err
			}
		}

		var err error
		if record, err = tx.Roles().CreateRole(ctx, NewRoleRecord(role)); err != nil {
			return err
		}
		return tx.Roles().SetRolePermissions(ctx, role.Name, form.Permissions)
	})
	if err != nil {
		return nil, err
	}

	if err := a.mirror(role, form.Permissions); err != nil {
		return record, err
	}

	recordActivity(ctx, a.activity, a.logger, ActivityEvent{
		EventType: ActivityEventRoleCreated,
		Actor:     actor,
		Role:      role.Name,
		Metadata:  map[string]any{"is_staff": role.IsStaff, "is_default": role.IsDefault},
	})
	return record, nil
}

// UpdateRole edits a persisted role. When the staff flag changes a
// RoleDefinitionChanged event is published so principals get reconciled.
func (a *RoleAdmin) UpdateRole(ctx context.Context, actor ActorRef, form RoleForm) (*RoleRecord, error) {
	if err := form.Validate(); err != nil {
		return nil, formError(err)
	}
	role := form.role()

	var (
		record       *RoleRecord
		staffChanged bool
	)
	err := a.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		current, err := tx.Roles().GetRole(ctx, role.Name)
		if err != nil {
			return err
		}
		if role.IsDefault {
			if err := ensureNoOtherDefault(ctx, tx.Roles(), role.Name); err != nil {
				return err
			}
		}
		staffChanged = current.IsStaff != role.IsStaff

		next := NewRoleRecord(role)
		next.ID = current.ID
		if record, err = tx.Roles().UpdateRole(ctx, next); err != nil {
			return err
		}
		return tx.Roles().SetRolePermissions(ctx, role.Name, form.Permissions)
	})
	if err != nil {
		return nil, err
	}

	if err := a.mirror(role, form.Permissions); err != nil {
		return record, err
	}

	recordActivity(ctx, a.activity, a.logger, ActivityEvent{
		EventType: ActivityEventRoleUpdated,
		Actor:     actor,
		Role:      role.Name,
		Metadata:  map[string]any{"is_staff": role.IsStaff, "is_default": role.IsDefault},
	})

	if staffChanged {
		recordActivity(ctx, a.activity, a.logger, ActivityEvent{
			EventType: ActivityEventRoleStaffChanged,
			Actor:     actor,
			Role:      role.Name,
			Metadata:  map[string]any{"is_staff": role.IsStaff},
		})
		a.events.Publish(ctx, RoleDefinitionChanged{Role: role.Name, IsStaff: role.IsStaff})
	}
	return record, nil
}

// SetRoleStaffStatus flips the staff flag of a role in the registry and, when
// a record exists, in the store. Principals are reconciled via the
// RoleDefinitionChanged event.
func (a *RoleAdmin) SetRoleStaffStatus(ctx context.Context, actor ActorRef, name string, isStaff bool) error {
	changed, err := a.roles.SetRoleStaffStatus(name, isStaff)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	record, err := a.store.Roles().GetRole(ctx, name)
	switch {
	case err == nil:
		record.IsStaff = isStaff
		if _, err := a.store.Roles().UpdateRole(ctx, record); err != nil {
			return err
		}
	case !errors.Is(err, ErrUnknownRole):
		return err
	}

	recordActivity(ctx, a.activity, a.logger, ActivityEvent{
		EventType: ActivityEventRoleStaffChanged,
		Actor:     actor,
		Role:      name,
		Metadata:  map[string]any{"is_staff": isStaff},
	})
	a.events.Publish(ctx, RoleDefinitionChanged{Role: name, IsStaff: isStaff})
	return nil
}

// DeleteRole removes the record, its permissions and the declaration.
// Principals in the group lose the role on their next reconciliation.
func (a *RoleAdmin) DeleteRole(ctx context.Context, actor ActorRef, name string) error {
	if err := a.store.Roles().DeleteRole(ctx, name); err != nil {
		return err
	}
	a.perms.ClearRole(name)

	if err := a.roles.RemoveRole(name); err != nil && !errors.Is(err, ErrUnknownRole) {
		return err
	}

	recordActivity(ctx, a.activity, a.logger, ActivityEvent{
		EventType: ActivityEventRoleDeleted,
		Actor:     actor,
		Role:      name,
	})
	a.events.Publish(ctx, RoleDefinitionChanged{Role: name})
	return nil
}

// SetRolePermissions replaces the permissions of a role. Malformed ids are
// skipped and returned.
func (a *RoleAdmin) SetRolePermissions(ctx context.Context, actor ActorRef, role string, ids []string) ([]Reject, error) {
	rejects, err := a.perms.SetPermissions(role, ids)
	if err != nil {
		return nil, err
	}

	if err := a.store.Roles().SetRolePermissions(ctx, role, a.perms.Permissions(role)); err != nil {
		return rejects, err
	}

	recordActivity(ctx, a.activity, a.logger, ActivityEvent{
		EventType: ActivityEventPermissionsSynced,
		Actor:     actor,
		Role:      role,
		Metadata:  map[string]any{"permissions": len(ids) - len(rejects), "rejected": len(rejects)},
	})
	return rejects, nil
}

// mirror copies an edited role into the registries. Registry state is not
// rolled back when the store write already succeeded.
func (a *RoleAdmin) mirror(role Role, permissions []string) error {
	if err := a.roles.UpdateRole(role); err != nil {
		return err
	}
	_, err := a.perms.SetPermissions(role.Name, permissions)
	return err
}

func ensureNoOtherDefault(ctx context.Context, roles RoleStore, name string) error {
	defaults, err := roles.DefaultRoles(ctx)
	if err != nil {
		return err
	}
	for _, d := range defaults {
		if d.Name != name {
			return newError(ErrInvalidDefaultRole, map[string]any{
				"role":    name,
				"default": d.Name,
				"reason":  "only one role can be the default",
			})
		}
	}
	return nil
}

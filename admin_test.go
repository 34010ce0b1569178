package access

import (
	"context"
	"errors"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var adminActor = ActorRef{ID: "admin-1", Type: "user"}

func newTestSite(t *testing.T, opts ...SiteOption) *Site {
	t.Helper()

	opts = append([]SiteOption{WithLoggerProvider(&loggerProviderSpy{logger: &captureLogger{}})}, opts...)
	site := NewSite(opts...)
	require.NoError(t, site.Roles.RegisterRoles(schoolRoles(), "student"))
	t.Cleanup(site.Close)
	return site
}

func TestRoleFormValidate(t *testing.T) {
	tests := []struct {
		name   string
		form   RoleForm
		fields []string
	}{
		{name: "valid", form: RoleForm{Name: "student", Permissions: []string{"courses.view"}}},
		{name: "missing name", form: RoleForm{}, fields: []string{"Name"}},
		{name: "bad name", form: RoleForm{Name: "Head Teacher"}, fields: []string{"Name"}},
		{
			name:   "bad permissions",
			form:   RoleForm{Name: "student", Permissions: []string{"courses.view", "grades"}},
			fields: []string{"Permissions"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.form.Validate()
			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}

			var fieldErrs validation.Errors
			require.True(t, errors.As(err, &fieldErrs))
			for _, f := range tt.fields {
				assert.Contains(t, fieldErrs, f)
			}
		})
	}
}

func TestAvailableRoleChoices(t *testing.T) {
	site := newTestSite(t)
	ctx := context.Background()

	choices, err := site.Admin.AvailableRoleChoices(ctx)
	require.NoError(t, err)
	assert.Len(t, choices, 3)

	_, err = site.Admin.CreateRole(ctx, adminActor, RoleForm{Name: "instructor", Label: "Instructor"})
	require.NoError(t, err)

	choices, err = site.Admin.AvailableRoleChoices(ctx)
	require.NoError(t, err)
	var names []string
	for _, c := range choices {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"student", "admin"}, names)
}

func TestCreateRole(t *testing.T) {
	var events []ActivityEvent
	sink := ActivitySinkFunc(func(_ context.Context, e ActivityEvent) error {
		events = append(events, e)
		return nil
	})
	site := newTestSite(t, WithActivitySink(sink))
	ctx := context.Background()

	record, err := site.Admin.CreateRole(ctx, adminActor, RoleForm{
		Name:        "instructor",
		IsStaff:     true,
		Description: "Teaches courses",
		Permissions: []string{"courses.edit", "courses.view"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Instructor", record.Label)
	assert.True(t, record.IsStaff)

	stored, err := site.Store.Roles().RolePermissions(ctx, "instructor")
	require.NoError(t, err)
	assert.Equal(t, []string{"courses.edit", "courses.view"}, stored)
	assert.True(t, site.Permissions.HasPermission("instructor", "courses.edit"))
	assert.True(t, site.Roles.RoleStaffStatus("instructor"))

	require.Len(t, events, 1)
	assert.Equal(t, ActivityEventRoleCreated, events[0].EventType)
	assert.Equal(t, adminActor, events[0].Actor)

	_, err = site.Admin.CreateRole(ctx, adminActor, RoleForm{Name: "instructor"})
	assert.ErrorIs(t, err, ErrDuplicateRole)
}

func TestCreateRoleRejectsInput(t *testing.T) {
	site := newTestSite(t)
	ctx := context.Background()

	_, err := site.Admin.CreateRole(ctx, adminActor, RoleForm{Name: "janitor"})
	assert.ErrorIs(t, err, ErrUnknownRole)

	_, err = site.Admin.CreateRole(ctx, adminActor, RoleForm{Name: "student", Permissions: []string{"bad"}})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	records, err := site.Admin.ListRoles(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCreateRoleSingleDefault(t *testing.T) {
	site := newTestSite(t)
	ctx := context.Background()

	_, err := site.Admin.CreateRole(ctx, adminActor, RoleForm{Name: "student", IsDefault: true})
	require.NoError(t, err)

	_, err = site.Admin.CreateRole(ctx, adminActor, RoleForm{Name: "instructor", IsDefault: true})
	require.ErrorIs(t, err, ErrInvalidDefaultRole)

	_, err = site.Store.Roles().GetRole(ctx, "instructor")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestUpdateRoleStaffFlagReconcilesPrincipals(t *testing.T) {
	var events []ActivityEvent
	sink := ActivitySinkFunc(func(_ context.Context, e ActivityEvent) error {
		events = append(events, e)
		return nil
	})
	site := newTestSite(t, WithActivitySink(sink))
	ctx := context.Background()

	_, err := site.Admin.CreateRole(ctx, adminActor, RoleForm{Name: "student", IsDefault: true})
	require.NoError(t, err)

	ana, err := site.Principals.Create(ctx, NewPrincipal{Username: "ana"})
	require.NoError(t, err)
	require.False(t, ana.IsStaff)

	record, err := site.Admin.UpdateRole(ctx, adminActor, RoleForm{Name: "student", IsStaff: true, IsDefault: true})
	require.NoError(t, err)
	assert.True(t, record.IsStaff)

	got, err := site.Principals.Get(ctx, ana.ID)
	require.NoError(t, err)
	assert.True(t, got.IsStaff)

	var staffChanged int
	for _, e := range events {
		if e.EventType == ActivityEventRoleStaffChanged {
			staffChanged++
		}
	}
	assert.Equal(t, 1, staffChanged)

	_, err = site.Admin.UpdateRole(ctx, adminActor, RoleForm{Name: "admin"})
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestAdminSetRoleStaffStatus(t *testing.T) {
	site := newTestSite(t)
	ctx := context.Background()

	ana, err := site.Principals.Create(ctx, NewPrincipal{Username: "ana", Role: "instructor"})
	require.NoError(t, err)
	require.False(t, ana.IsStaff)

	require.NoError(t, site.Admin.SetRoleStaffStatus(ctx, adminActor, "instructor", true))

	got, err := site.Principals.Get(ctx, ana.ID)
	require.NoError(t, err)
	assert.True(t, got.IsStaff)

	require.NoError(t, site.Admin.SetRoleStaffStatus(ctx, adminActor, "instructor", true))
	assert.ErrorIs(t, site.Admin.SetRoleStaffStatus(ctx, adminActor, "ghost", true), ErrUnknownRole)
}

func TestDeleteRole(t *testing.T) {
	site := newTestSite(t)
	ctx := context.Background()

	_, err := site.Admin.CreateRole(ctx, adminActor, RoleForm{
		Name:        "admin",
		IsStaff:     true,
		Permissions: []string{"site.manage"},
	})
	require.NoError(t, err)

	bo, err := site.Principals.Create(ctx, NewPrincipal{Username: "bo", Role: "admin"})
	require.NoError(t, err)
	require.True(t, bo.IsStaff)

	require.NoError(t, site.Admin.DeleteRole(ctx, adminActor, "admin"))

	assert.False(t, site.Roles.IsValidRole("admin"))
	assert.False(t, site.Permissions.HasPermission("admin", "site.manage"))
	got, err := site.Principals.Get(ctx, bo.ID)
	require.NoError(t, err)
	assert.False(t, got.IsStaff)

	assert.ErrorIs(t, site.Admin.DeleteRole(ctx, adminActor, "admin"), ErrUnknownRole)
}

func TestAdminSetRolePermissions(t *testing.T) {
	site := newTestSite(t)
	ctx := context.Background()

	rejects, err := site.Admin.SetRolePermissions(ctx, adminActor, "student", []string{"forum.post", "oops", "courses.view"})
	require.NoError(t, err)
	require.Len(t, rejects, 1)
	assert.Equal(t, "oops", rejects[0].Permission)

	stored, err := site.Store.Roles().RolePermissions(ctx, "student")
	require.NoError(t, err)
	assert.Equal(t, []string{"courses.view", "forum.post"}, stored)

	_, err = site.Admin.SetRolePermissions(ctx, adminActor, "ghost", []string{"forum.post"})
	assert.ErrorIs(t, err, ErrUnknownRole)
}

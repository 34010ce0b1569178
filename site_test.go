package access

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSiteInstallRunsModulesInOrder(t *testing.T) {
	site := NewSite()
	t.Cleanup(site.Close)
	ctx := context.Background()

	var order []string
	module := func(name string) Module {
		return ModuleFunc{ModuleName: name, Fn: func(*Site) error {
			order = append(order, name)
			return nil
		}}
	}

	require.NoError(t, site.Install(ctx, module("courses"), nil, module("forums"), ModuleFunc{ModuleName: "empty"}))
	assert.Equal(t, []string{"courses", "forums"}, order)
	assert.Equal(t, []string{"courses", "forums", "empty"}, site.Modules())
}

func TestSiteInstallModulesDisablingSamePage(t *testing.T) {
	site := NewSite()
	t.Cleanup(site.Close)

	disableSignup := func(name string) Module {
		return ModuleFunc{ModuleName: name, Fn: func(s *Site) error {
			return s.Pages.Disable(PageSignUp)
		}}
	}

	require.NoError(t, site.Install(context.Background(), disableSignup("courses"), disableSignup("forums")))
	assert.False(t, site.Pages.IsEnabled(PageSignUp))
	assert.True(t, site.Pages.IsEnabled(PageSignIn))
}

func TestSiteInstallStopsOnFailure(t *testing.T) {
	logger := &captureLogger{}
	site := NewSite(WithLogger(logger))
	t.Cleanup(site.Close)
	ctx := context.Background()

	var ran bool
	err := site.Install(ctx,
		ModuleFunc{ModuleName: "broken", Fn: func(*Site) error { return errors.New("boom") }},
		ModuleFunc{ModuleName: "after", Fn: func(*Site) error { ran = true; return nil }},
	)
	require.Error(t, err)
	assert.False(t, ran)
	assert.Empty(t, site.Modules())

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryInternal, richErr.Category)
	assert.Equal(t, "broken", richErr.Metadata["module"])
	require.Len(t, logger.byLevel("error"), 1)

	err = site.Install(ctx, ModuleFunc{ModuleName: "roles", Fn: func(s *Site) error {
		return s.Roles.RegisterRoles([]RoleInput{RoleName("student")}, "tutor")
	}})
	assert.ErrorIs(t, err, ErrInvalidDefaultRole)
}

func TestSiteInstallCancelledContext(t *testing.T) {
	site := NewSite()
	t.Cleanup(site.Close)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := site.Install(ctx, ModuleFunc{ModuleName: "courses"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSiteHomeURL(t *testing.T) {
	site := NewSite(WithRoutes(NewRouteTable(map[string]string{"courses:list": "/courses/"})))
	t.Cleanup(site.Close)
	ctx := context.Background()

	_, err := site.HomeURL(ctx)
	assert.ErrorIs(t, err, ErrNotConfigured)

	require.NoError(t, site.Install(ctx,
		ModuleFunc{ModuleName: "courses", Fn: func(s *Site) error {
			s.Home.RegisterHomeURL("courses:list", "courses")
			return nil
		}},
		ModuleFunc{ModuleName: "forums", Fn: func(s *Site) error {
			s.Home.RegisterHomeURL("forums:index", "forums")
			return nil
		}},
	))

	home, err := site.HomeURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/courses/", home)
}

func TestSiteLoadPermissions(t *testing.T) {
	site := newTestSite(t)
	ctx := context.Background()

	_, err := site.Store.Roles().CreateRole(ctx, &RoleRecord{Name: "student"})
	require.NoError(t, err)
	require.NoError(t, site.Store.Roles().SetRolePermissions(ctx, "student", []string{"courses.view", "forum.post"}))

	require.NoError(t, site.LoadPermissions(ctx))
	assert.Equal(t, []string{"courses.view", "forum.post"}, site.Permissions.Permissions("student"))
	assert.Empty(t, site.Permissions.Permissions("admin"))
}

func TestSiteEventQueueReconciles(t *testing.T) {
	site := newTestSite(t, WithEventQueue(8))
	site.Start()
	ctx := context.Background()

	p, err := site.Principals.Create(ctx, NewPrincipal{Username: "ana"})
	require.NoError(t, err)
	require.NoError(t, site.Store.Principals().UpdateStaffFlag(ctx, p.ID, true))

	require.NoError(t, site.Principals.SetRole(ctx, p.ID, "instructor"))
	site.Close()

	got, err := site.Principals.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.IsStaff)
}

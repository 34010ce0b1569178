package access

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())
	t.Cleanup(func() { _ = bunDB.Close() })

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, bunDB))
	// migrations are idempotent
	require.NoError(t, Migrate(ctx, bunDB))
	return bunDB
}

func TestRepositoryManagerValidate(t *testing.T) {
	mngr := NewRepositoryManager(setupTestDB(t))
	require.NoError(t, mngr.Validate())
	assert.NotPanics(t, mngr.MustValidate)
	assert.NotNil(t, mngr.DB())

	assert.Error(t, NewRepositoryManager(nil).Validate())
}

func TestPrincipalsRepository(t *testing.T) {
	store := NewRepositoryManager(setupTestDB(t)).Principals()
	ctx := context.Background()

	ana, err := store.CreatePrincipal(ctx, &Principal{Email: "ana@example.com"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, ana.ID)
	assert.Equal(t, "ana", ana.Username)

	root, err := store.CreatePrincipal(ctx, &Principal{Username: "root", IsSuperuser: true})
	require.NoError(t, err)
	assert.True(t, root.IsStaff)

	got, err := store.GetPrincipal(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", got.Email)

	_, err = store.GetPrincipal(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrPrincipalNotFound)

	require.NoError(t, store.AddGroups(ctx, ana.ID, "student", " newsletter ", ""))
	require.NoError(t, store.AddGroups(ctx, ana.ID, "student"))
	groups, err := store.Groups(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"newsletter", "student"}, groups)

	assert.ErrorIs(t, store.AddGroups(ctx, uuid.New(), "student"), ErrPrincipalNotFound)

	require.NoError(t, store.AddGroups(ctx, root.ID, "student"))
	list, err := store.ListPrincipals(ctx, PrincipalFilter{Group: "student", ExcludeSuperusers: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ana.ID, list[0].ID)

	all, err := store.ListPrincipals(ctx, PrincipalFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, store.RemoveGroups(ctx, ana.ID, "newsletter"))
	groups, err = store.Groups(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"student"}, groups)

	require.NoError(t, store.UpdateStaffFlag(ctx, ana.ID, true))
	got, err = store.GetPrincipal(ctx, ana.ID)
	require.NoError(t, err)
	assert.True(t, got.IsStaff)
	assert.ErrorIs(t, store.UpdateStaffFlag(ctx, uuid.New(), true), ErrPrincipalNotFound)

	got.AddMetadata("theme", "dark")
	saved, err := store.SavePrincipal(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, "dark", saved.Metadata["theme"])
}

func TestRolesRepository(t *testing.T) {
	store := NewRepositoryManager(setupTestDB(t)).Roles()
	ctx := context.Background()

	_, err := store.CreateRole(ctx, NewRoleRecord(Role{Name: "student", IsDefault: true}))
	require.NoError(t, err)
	_, err = store.CreateRole(ctx, NewRoleRecord(Role{Name: "instructor", Label: "Instructor"}))
	require.NoError(t, err)

	_, err = store.CreateRole(ctx, &RoleRecord{Name: "student"})
	assert.ErrorIs(t, err, ErrDuplicateRole)
	_, err = store.CreateRole(ctx, &RoleRecord{Name: "Head Teacher"})
	assert.ErrorIs(t, err, ErrInvalidRoleName)

	records, err := store.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "instructor", records[0].Name)
	assert.Equal(t, "Student", records[1].Label)

	updated, err := store.UpdateRole(ctx, &RoleRecord{Name: "instructor", Label: "Teacher", IsStaff: true})
	require.NoError(t, err)
	assert.True(t, updated.IsStaff)
	assert.Equal(t, "Teacher", updated.Label)

	_, err = store.UpdateRole(ctx, &RoleRecord{Name: "ghost"})
	assert.ErrorIs(t, err, ErrUnknownRole)

	defaults, err := store.DefaultRoles(ctx)
	require.NoError(t, err)
	require.Len(t, defaults, 1)
	assert.Equal(t, "student", defaults[0].Name)

	require.NoError(t, store.SetRolePermissions(ctx, "instructor", []string{"courses.view", "courses.edit", "courses.view"}))
	perms, err := store.RolePermissions(ctx, "instructor")
	require.NoError(t, err)
	assert.Equal(t, []string{"courses.edit", "courses.view"}, perms)

	require.NoError(t, store.SetRolePermissions(ctx, "instructor", nil))
	perms, err = store.RolePermissions(ctx, "instructor")
	require.NoError(t, err)
	assert.Empty(t, perms)

	require.NoError(t, store.SetRolePermissions(ctx, "student", []string{"courses.view"}))
	require.NoError(t, store.DeleteRole(ctx, "student"))
	perms, err = store.RolePermissions(ctx, "student")
	require.NoError(t, err)
	assert.Empty(t, perms)

	_, err = store.GetRole(ctx, "student")
	assert.ErrorIs(t, err, ErrUnknownRole)
	assert.ErrorIs(t, store.DeleteRole(ctx, "student"), ErrUnknownRole)
}

func TestRepositoryManagerRunInTxRollsBack(t *testing.T) {
	mngr := NewRepositoryManager(setupTestDB(t))
	ctx := context.Background()
	boom := errors.New("boom")

	err := mngr.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		if _, err := tx.Roles().CreateRole(ctx, &RoleRecord{Name: "student"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	records, err := mngr.Roles().ListRoles(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	err = mngr.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		return tx.RunInTx(ctx, func(ctx context.Context, inner Store) error {
			_, err := inner.Roles().CreateRole(ctx, &RoleRecord{Name: "student"})
			return err
		})
	})
	require.NoError(t, err)

	_, err = mngr.Roles().GetRole(ctx, "student")
	assert.NoError(t, err)
}

func TestSiteOnRepositoryStore(t *testing.T) {
	site := newTestSite(t, WithStore(NewRepositoryManager(setupTestDB(t))))
	ctx := context.Background()

	res, err := site.CreateGroupsIfNeeded(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Created, 3)

	ana, err := site.Principals.Create(ctx, NewPrincipal{Username: "ana"})
	require.NoError(t, err)
	require.NoError(t, site.Principals.SetRole(ctx, ana.ID, "admin"))

	got, err := site.Principals.Get(ctx, ana.ID)
	require.NoError(t, err)
	assert.True(t, got.IsStaff)

	require.NoError(t, site.Admin.SetRoleStaffStatus(ctx, adminActor, "admin", false))
	got, err = site.Principals.Get(ctx, ana.ID)
	require.NoError(t, err)
	assert.False(t, got.IsStaff)
}

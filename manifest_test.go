package access

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schoolsManifest = `
name: schools
roles:
  default: student
  items:
    - student
    - [instructor, Instructor]
    - {name: admin, display_name: Administrator, is_staff: true}
pages:
  signup: {enabled: false}
  signin: {remember_me: true, max_attempts: 5}
global:
  brand: Acme Schools
username: {label: Student ID, placeholder: Enter your student ID}
routes:
  "courses:list": /courses/
  "dashboard:index": /dashboard/
navigation:
  - {name: Courses, target: "courses:list", order: 10}
  - {name: Help, target: "https://help.example.com", order: 20, type: external}
home: "dashboard:index"
permissions:
  instructor: [courses.edit, courses.view]
  student: [courses.view, broken]
`

func TestDecodeManifest(t *testing.T) {
	m, err := DecodeManifest(strings.NewReader(schoolsManifest))
	require.NoError(t, err)

	assert.Equal(t, "schools", m.Name())
	assert.Equal(t, "student", m.Roles.Default)
	assert.Len(t, m.Roles.Items, 3)
	assert.Len(t, m.Navigation, 2)
	assert.Equal(t, "dashboard:index", m.Home)
}

func TestDecodeManifestRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{name: "unknown field", input: "name: x\ncolour: blue\n"},
		{name: "missing name", input: "home: dashboard\n", field: "name"},
		{name: "unknown page", input: "name: x\npages:\n  register: {enabled: false}\n", field: "pages"},
		{name: "nav without target", input: "name: x\nnavigation:\n  - {name: Courses}\n", field: "navigation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeManifest(strings.NewReader(tt.input))
			require.ErrorIs(t, err, ErrInvalidManifest)
			assert.True(t, IsValidationError(err))

			var richErr *goerrors.Error
			require.True(t, goerrors.As(err, &richErr))
			assert.Equal(t, TextCodeInvalidManifest, richErr.TextCode)

			if tt.field != "" {
				var fieldErrs validation.Errors
				require.True(t, goerrors.As(err, &fieldErrs))
				assert.Contains(t, fieldErrs, tt.field)
			}
		})
	}
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(schoolsManifest), 0o600))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "schools", m.Name())

	_, err = LoadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryNotFound, richErr.Category)
}

func TestManifestRegister(t *testing.T) {
	logger := &captureLogger{}
	site := NewSite(WithLoggerProvider(&loggerProviderSpy{logger: logger}))
	t.Cleanup(site.Close)
	ctx := context.Background()

	m, err := DecodeManifest(strings.NewReader(schoolsManifest))
	require.NoError(t, err)
	require.NoError(t, site.Install(ctx, m))

	assert.Equal(t, []string{"student", "instructor", "admin"}, site.Roles.RoleNames())
	instructor, ok := site.Roles.Role("instructor")
	require.True(t, ok)
	assert.Equal(t, "Instructor", instructor.Label)
	assert.Equal(t, []string{"admin"}, site.Roles.StaffRoles())

	assert.False(t, site.Pages.IsEnabled(PageSignUp))
	assert.True(t, site.Pages.PageConfig(PageSignIn).GetBool("remember_me", false))
	assert.Equal(t, int64(5), site.Pages.PageConfig(PageSignIn).GetInt("max_attempts", 0))

	brand, ok := site.Pages.GlobalConfig("brand")
	require.True(t, ok)
	assert.Equal(t, "Acme Schools", brand.String())
	assert.Equal(t, "Student ID", site.Pages.UsernameLabel())

	nav := site.Navigation.Resolve(ctx, site.Routes)
	require.Len(t, nav, 2)
	assert.Equal(t, "/courses/", nav[0].URL)
	assert.Equal(t, "https://help.example.com", nav[1].URL)

	home, err := site.HomeURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/dashboard/", home)
	assert.Equal(t, "schools", site.Home.HomeOwner())

	assert.True(t, site.Permissions.HasPermission("instructor", "courses.edit"))
	assert.Equal(t, []string{"courses.view"}, site.Permissions.Permissions("student"))

	var rejected int
	for _, c := range logger.byLevel("warn") {
		if c.message == "manifest permission rejected" {
			rejected++
		}
	}
	assert.Equal(t, 1, rejected)
	assert.Equal(t, []string{"schools"}, site.Modules())
}

func TestManifestRoutesNeedRouteTable(t *testing.T) {
	site := NewSite(WithRoutes(URLResolverFunc(func(context.Context, string) (string, error) {
		return "/", nil
	})))
	t.Cleanup(site.Close)

	m := &Manifest{ModuleName: "custom", Routes: map[string]string{"a": "/a"}}
	err := m.Register(site)
	assert.ErrorIs(t, err, ErrInvalidManifest)
}

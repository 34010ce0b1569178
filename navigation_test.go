package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNavigationOrdering(t *testing.T) {
	r := NewNavigationRegistry()

	r.Register("Blog", "blog:index", WithOrder(20))
	r.Register("Courses", "courses:index", WithOrder(10))
	r.Register("About", "/about", WithOrder(20))
	r.Register("Home", "home")

	var names []string
	for _, item := range r.Items() {
		names = append(names, item.Name)
	}
	assert.Equal(t, []string{"Home", "Courses", "Blog", "About"}, names)
	assert.Equal(t, 4, r.Len())
}

func TestNavigationKeepsDuplicates(t *testing.T) {
	r := NewNavigationRegistry()

	r.Register("Blog", "blog:index")
	r.Register("Blog", "blog:index")

	assert.Len(t, r.Items(), 2)
}

func TestNavigationResolve(t *testing.T) {
	logger := &captureLogger{}
	r := NewNavigationRegistry(WithNavigationLogger(logger))
	routes := NewRouteTable(map[string]string{
		"courses:index": "/courses/",
		"blog:index":    "/blog/",
	})

	r.Register("Blog", "blog:index", WithOrder(2), WithFragment("latest"), WithType("link"))
	r.Register("Courses", "courses:index", WithOrder(1), WithExtra(MustConfigMap(map[string]any{"icon": "book"})))
	r.Register("Shop", "shop:index", WithOrder(3))
	r.Register("Docs", "https://docs.example.com", WithOrder(4))

	resolved := r.Resolve(context.Background(), routes)
	require.Len(t, resolved, 3)

	assert.Equal(t, "/courses/", resolved[0].URL)
	assert.Equal(t, "book", resolved[0].Extra.GetString("icon", ""))
	assert.Equal(t, "/blog/#latest", resolved[1].URL)
	assert.Equal(t, "link", resolved[1].Type)
	assert.Equal(t, "https://docs.example.com", resolved[2].URL)

	debug := logger.byLevel("debug")
	require.Len(t, debug, 1)
	assert.Contains(t, debug[0].args, "shop:index")
}

func TestNavigationResolveLogsResolverFailures(t *testing.T) {
	logger := &captureLogger{}
	r := NewNavigationRegistry(WithNavigationLogger(logger))
	r.Register("Broken", "broken")

	failing := URLResolverFunc(func(context.Context, string) (string, error) {
		return "", assert.AnError
	})

	assert.Empty(t, r.Resolve(context.Background(), failing))
	assert.Len(t, logger.byLevel("warn"), 1)
}

func TestNavigationReset(t *testing.T) {
	r := NewNavigationRegistry()
	r.Register("Blog", "blog:index")

	r.Reset()

	assert.Zero(t, r.Len())
}

func TestRouteTable(t *testing.T) {
	routes := NewRouteTable(map[string]string{" dashboard:index ": "/dashboard/"})
	routes.Add("home", "/")

	url, err := routes.Resolve(context.Background(), "dashboard:index")
	require.NoError(t, err)
	assert.Equal(t, "/dashboard/", url)

	url, err = routes.Resolve(context.Background(), "/static/page")
	require.NoError(t, err)
	assert.Equal(t, "/static/page", url)

	_, err = routes.Resolve(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRouteNotFound)

	assert.Equal(t, []string{"dashboard:index", "home"}, routes.Names())
}

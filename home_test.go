package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHomeURLFirstRegistrationWins(t *testing.T) {
	r := NewHomeURLRegistry(WithHomeLogger(&captureLogger{}))
	routes := NewRouteTable(map[string]string{
		"dashboard:index": "/dashboard/",
		"blog:index":      "/blog/",
	})

	assert.True(t, r.RegisterHomeURL("dashboard:index", "dashboard"))
	assert.False(t, r.RegisterHomeURL("blog:index", "blog"))

	url, err := r.HomeURL(context.Background(), routes)
	require.NoError(t, err)
	assert.Equal(t, "/dashboard/", url)
	assert.Equal(t, "dashboard:index", r.HomeURLName())
	assert.Equal(t, "dashboard", r.HomeOwner())
}

func TestHomeURLNotConfigured(t *testing.T) {
	r := NewHomeURLRegistry(WithHomeLogger(&captureLogger{}))

	_, err := r.HomeURL(context.Background(), NewRouteTable(nil))
	require.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, r.IsRegistered())

	assert.False(t, r.RegisterHomeURL("", "blog"))
	assert.False(t, r.IsRegistered())
}

func TestHomeURLUnresolvable(t *testing.T) {
	r := NewHomeURLRegistry(WithHomeLogger(&captureLogger{}))
	require.True(t, r.RegisterHomeURL("dashboard:index", "dashboard"))

	_, err := r.HomeURL(context.Background(), NewRouteTable(nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRouteNotFound)
}

func TestHomeURLClear(t *testing.T) {
	r := NewHomeURLRegistry(WithHomeLogger(&captureLogger{}))
	require.True(t, r.RegisterHomeURL("dashboard:index", "dashboard"))

	r.Clear()

	assert.False(t, r.IsRegistered())
	assert.True(t, r.RegisterHomeURL("blog:index", "blog"))
}

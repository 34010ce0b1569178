package main

import (
	"context"
	"testing"

	access "github.com/gcimedia/go-access"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintClaims(t *testing.T) {
	site := access.NewSite()
	t.Cleanup(site.Close)
	ctx := context.Background()
	require.NoError(t, site.Install(ctx, defaultRoles))

	p, err := site.Principals.Create(ctx, access.NewPrincipal{Username: "ana", Role: "instructor"})
	require.NoError(t, err)

	require.NoError(t, printClaims(ctx, site, p.ID.String()))
	assert.Error(t, printClaims(ctx, site, "not-a-uuid"))
	assert.ErrorIs(t, printClaims(ctx, site, uuid.NewString()), access.ErrPrincipalNotFound)
}

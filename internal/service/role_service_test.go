package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/newsroom-auth/internal/rbac"
)

func TestRoleService_List(t *testing.T) {
	env := newTestEnv(t)
	roles, err := env.roleSvc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, roles, 5)
	assert.Equal(t, "super_admin", roles[0].Name)
	assert.Equal(t, 100, roles[0].Level)
	assert.Contains(t, roles[len(roles)-1].Permissions, "articles:read")
}

func TestRoleService_Assign(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerActive(t, "alice@x.com", "alice")
	ctx := context.Background()
	env.clock.Advance(time.Minute)

	names, err := env.roleSvc.Assign(ctx, id, "editor", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"public", "editor"}, names)

	// Primary role is still the first assigned.
	res := env.login(t, "alice@x.com", false)
	assert.Equal(t, "public", res.User.Role)

	names, err = env.roleSvc.Assign(ctx, id, "editor", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"editor"}, names)

	res = env.login(t, "alice@x.com", false)
	assert.Equal(t, "editor", res.User.Role)
	p, err := env.tokenSvc.Verify(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, rbac.Allow, rbac.Authorize(p, rbac.Rule{Permissions: []rbac.Permission{rbac.P("articles", "publish")}}))

	_, err = env.roleSvc.Assign(ctx, id, "wizard", false)
	assert.Equal(t, KindValidation, KindOf(err))
	_, err = env.roleSvc.Assign(ctx, 999, "editor", false)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRoleService_Revoke(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerActive(t, "alice@x.com", "alice")
	ctx := context.Background()
	env.clock.Advance(time.Minute)

	_, err := env.roleSvc.Assign(ctx, id, "author", false)
	require.NoError(t, err)

	names, err := env.roleSvc.Revoke(ctx, id, "public")
	require.NoError(t, err)
	assert.Equal(t, []string{"author"}, names)

	_, err = env.roleSvc.Revoke(ctx, id, "public")
	assert.ErrorIs(t, err, ErrRoleNotAssigned)
	_, err = env.roleSvc.Revoke(ctx, id, "author")
	assert.ErrorIs(t, err, ErrLastRole)
	_, err = env.roleSvc.Revoke(ctx, 999, "author")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

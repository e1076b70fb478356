package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePermission(t *testing.T) {
	p, err := ParsePermission(" Articles:Publish ")
	require.NoError(t, err)
	assert.Equal(t, P("articles", "publish"), p)
	assert.Equal(t, "articles:publish", p.String())

	for _, bad := range []string{"", "articles", ":read", "articles:", "a:b:c"} {
		_, err := ParsePermission(bad)
		assert.Error(t, err, bad)
	}
}

func TestSet(t *testing.T) {
	s := ParseSet([]string{"articles:read", "bogus", "users:manage", "articles:read"})
	assert.Len(t, s, 2)
	assert.True(t, HasPermission(s, "articles", "read"))
	assert.False(t, HasPermission(s, "articles", "publish"))
	assert.Equal(t, []string{"articles:read", "users:manage"}, s.Strings())
}

func TestAuthorize(t *testing.T) {
	editor := &Principal{
		UserID:      1,
		Role:        "editor",
		Permissions: NewSet(P("articles", "read"), P("articles", "publish")),
	}

	tests := []struct {
		name string
		p    *Principal
		rule Rule
		want Decision
	}{
		{name: "no principal", p: nil, rule: Rule{}, want: Unauthenticated},
		{name: "zero principal", p: &Principal{}, rule: Rule{}, want: Unauthenticated},
		{name: "authenticated only", p: editor, rule: Rule{}, want: Allow},
		{name: "role match", p: editor, rule: Rule{Roles: []string{"author", "editor"}}, want: Allow},
		{name: "role mismatch", p: editor, rule: Rule{Roles: []string{"super_admin"}}, want: Forbidden},
		{name: "all permissions held", p: editor, rule: Rule{Permissions: []Permission{P("articles", "read"), P("articles", "publish")}}, want: Allow},
		{name: "one permission missing", p: editor, rule: Rule{Permissions: []Permission{P("articles", "read"), P("users", "manage")}}, want: Forbidden},
		{name: "unauthenticated beats permissions", p: nil, rule: Rule{Permissions: []Permission{P("users", "manage")}}, want: Unauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Authorize(tt.p, tt.rule))
		})
	}
}

func TestAuthorize_MatchesHasPermission(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	for _, role := range c.Roles {
		p := &Principal{UserID: 1, Role: role.Name, Permissions: NewSet(role.Permissions...)}
		for _, perm := range c.Permissions {
			want := Forbidden
			if HasPermission(p.Permissions, perm.Resource, perm.Action) {
				want = Allow
			}
			assert.Equal(t, want, Authorize(p, Rule{Permissions: []Permission{perm}}), "%s %s", role.Name, perm)
		}
	}
}

func TestDefaultCatalog(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	names := make([]string, 0, len(c.Roles))
	for _, r := range c.Roles {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"super_admin", "editor", "author", "contributor", "public"}, names)

	admin, ok := c.Role("super_admin")
	require.True(t, ok)
	assert.Len(t, admin.Permissions, len(c.Permissions))

	public, ok := c.Role("public")
	require.True(t, ok)
	assert.True(t, NewSet(public.Permissions...).Has(P("articles", "read")))
	assert.False(t, NewSet(public.Permissions...).Has(P("articles", "publish")))
}

func TestParseCatalog_RejectsUndeclaredPermission(t *testing.T) {
	_, err := ParseCatalog([]byte(`
permissions: [articles:read]
roles:
  - name: editor
    level: 1
    permissions: [articles:publish]
`))
	assert.ErrorContains(t, err, "undeclared permission")
}

func TestParseCatalog_RejectsDuplicateRole(t *testing.T) {
	_, err := ParseCatalog([]byte(`
permissions: [articles:read]
roles:
  - name: editor
  - name: editor
`))
	assert.ErrorContains(t, err, "duplicate role")
}

package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"kbengine.dev/auth"
)

func TestFragmentAnonymousOnlyMatchesPublic(t *testing.T) {
	frag := Fragment(nil)
	boolClause, ok := frag["bool"].(map[string]any)
	require.True(t, ok)
	should, ok := boolClause["should"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, should, 1)
	assert.Equal(t, 1, boolClause["minimum_should_match"])
}

func TestFragmentSuperuserIsMatchAll(t *testing.T) {
	u := &auth.User{ID: "root", IsSuperuser: true}
	frag := Fragment(u)
	_, ok := frag["match_all"]
	assert.True(t, ok)
}

func TestFragmentAuthenticatedUserIncludesOwnerOrgAndShareClauses(t *testing.T) {
	u := &auth.User{ID: "bob", OrgID: "acme", RoleCodes: auth.StringSet{auth.RoleEditor}}
	frag := Fragment(u)
	boolClause := frag["bool"].(map[string]any)
	should := boolClause["should"].([]map[string]any)
	// public, owner, org, shared_with_users, shared_with_roles
	assert.Len(t, should, 5)
}

func TestFragmentUserWithNoRolesOmitsRoleClause(t *testing.T) {
	u := &auth.User{ID: "bob", OrgID: "acme"}
	frag := Fragment(u)
	boolClause := frag["bool"].(map[string]any)
	should := boolClause["should"].([]map[string]any)
	assert.Len(t, should, 4)
}

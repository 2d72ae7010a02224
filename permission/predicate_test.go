package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"kbengine.dev/auth"
	"kbengine.dev/catalog"
)

func TestCheckUnauthenticatedOnlySeesPublic(t *testing.T) {
	assert.True(t, Check(nil, catalog.OwnerRecord{Visibility: catalog.VisibilityPublic}))
	assert.False(t, Check(nil, catalog.OwnerRecord{Visibility: catalog.VisibilityOrganization}))
	assert.False(t, Check(nil, catalog.OwnerRecord{Visibility: catalog.VisibilityPrivate}))
}

func TestCheckSuperuserSeesEverything(t *testing.T) {
	u := &auth.User{ID: "u1", OrgID: "org-a", IsSuperuser: true}
	assert.True(t, Check(u, catalog.OwnerRecord{Visibility: catalog.VisibilityPrivate, OwnerID: "someone-else", OrgID: "org-b"}))
}

func TestCheckOwnerSeesOwnPrivateRecord(t *testing.T) {
	u := &auth.User{ID: "u1", OrgID: "org-a"}
	r := catalog.OwnerRecord{Visibility: catalog.VisibilityPrivate, OwnerID: "u1", OrgID: "org-a"}
	assert.True(t, Check(u, r))
}

func TestCheckOrganizationVisibilityRequiresSameOrg(t *testing.T) {
	r := catalog.OwnerRecord{Visibility: catalog.VisibilityOrganization, OwnerID: "alice", OrgID: "acme"}
	bob := &auth.User{ID: "bob", OrgID: "acme"}
	carol := &auth.User{ID: "carol", OrgID: "beta"}
	assert.True(t, Check(bob, r))
	assert.False(t, Check(carol, r))
}

func TestCheckSharedWithUserOverridesOrg(t *testing.T) {
	r := catalog.OwnerRecord{
		Visibility:    catalog.VisibilityOrganization,
		OwnerID:       "alice",
		OrgID:         "acme",
		SharedUserIDs: auth.StringSet{"carol"},
	}
	carol := &auth.User{ID: "carol", OrgID: "beta"}
	assert.True(t, Check(carol, r))
}

func TestCheckSharedWithRoleGrantsAccess(t *testing.T) {
	r := catalog.OwnerRecord{
		Visibility:      catalog.VisibilityPrivate,
		OwnerID:         "alice",
		OrgID:           "acme",
		SharedRoleCodes: auth.StringSet{auth.RoleEditor},
	}
	dave := &auth.User{ID: "dave", OrgID: "beta", RoleCodes: auth.StringSet{auth.RoleEditor}}
	assert.True(t, Check(dave, r))
}

func TestCheckPrivateDeniesUnrelatedUser(t *testing.T) {
	r := catalog.OwnerRecord{Visibility: catalog.VisibilityPrivate, OwnerID: "alice", OrgID: "acme"}
	eve := &auth.User{ID: "eve", OrgID: "acme"}
	assert.False(t, Check(eve, r))
}

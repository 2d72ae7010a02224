// Package permission implements the Permission Engine (C9): the single
// predicate P(U,R) spec section 4.9 defines, evaluated identically as an
// in-process check for C2 reads and as a structured query fragment handed
// to C3 at search time.
//
// The teacher repo carries no standalone permission engine; the closest
// shape is api/authorization.go's AuthUser plus its scope-checking
// middleware, a small boolean predicate evaluated over a claims set. This
// package follows that same "plain function over a small struct" style,
// generalized from scope membership to the ownership/visibility/org/share
// formula P(U,R).
package permission

import (
	"kbengine.dev/auth"
	"kbengine.dev/catalog"
)

// Check implements P(U,R) from spec section 4.9. A nil user models the
// unauthenticated caller {id: nil, org_id: nil, roles: ∅, is_superuser:
// false}, for whom only visibility = public can match.
func Check(u *auth.User, r catalog.OwnerRecord) bool {
	if r.Visibility == catalog.VisibilityPublic {
		return true
	}
	if u == nil {
		return false
	}
	if u.IsSuperuser {
		return true
	}
	if r.OwnerID == u.ID {
		return true
	}
	if r.Visibility == catalog.VisibilityOrganization && r.OrgID == u.OrgID {
		return true
	}
	if r.SharedUserIDs.Contains(u.ID) {
		return true
	}
	if r.SharedRoleCodes.Intersects(u.RoleCodes) {
		return true
	}
	return false
}

// CheckVersion is Check specialized to a catalog.DocumentVersion, the
// shape C2 reads actually hold.
func CheckVersion(u *auth.User, v *catalog.DocumentVersion) bool {
	return Check(u, v.AsOwnerRecord())
}

package permission

import (
	"kbengine.dev/auth"
	"kbengine.dev/catalog"
)

// Fragment compiles P(U,R) into the structured filter clause spec section
// 4.9 requires C10 hand to C3: a boolean `should` group with
// minimum_should_match 1, over the denormalized metadata.* fields every
// index.Document carries. It is meant to be appended to
// index.SearchRequest.Filter, where it combines in filter (AND) context
// with any caller-supplied filters while remaining an OR internally.
//
// A nil user produces the unauthenticated fragment: only
// metadata.visibility = public matches.
func Fragment(u *auth.User) map[string]any {
	if u != nil && u.IsSuperuser {
		return map[string]any{"match_all": map[string]any{}}
	}

	should := []map[string]any{
		{"term": map[string]any{"metadata.visibility": string(catalog.VisibilityPublic)}},
	}

	if u != nil {
		should = append(should,
			map[string]any{"term": map[string]any{"metadata.owner_id": u.ID}},
			map[string]any{"bool": map[string]any{
				"must": []map[string]any{
					{"term": map[string]any{"metadata.visibility": string(catalog.VisibilityOrganization)}},
					{"term": map[string]any{"metadata.org_id": u.OrgID}},
				},
			}},
			map[string]any{"term": map[string]any{"metadata.shared_with_users": u.ID}},
		)
		if len(u.RoleCodes) > 0 {
			should = append(should, map[string]any{
				"terms": map[string]any{"metadata.shared_with_roles": []string(u.RoleCodes)},
			})
		}
	}

	return map[string]any{
		"bool": map[string]any{
			"should":               should,
			"minimum_should_match": 1,
		},
	}
}

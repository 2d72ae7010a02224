package permission

import (
	"context"
	"time"

	"kbengine.dev/auth"
	"kbengine.dev/catalog"
	"kbengine.dev/common"
	"kbengine.dev/index"
)

// ShareRequest is the body of PUT /documents/{id}/permissions (spec
// section 6).
type ShareRequest struct {
	Visibility      catalog.Visibility
	SharedWithUsers []string
	SharedWithRoles []string
}

// Manager applies visibility/share changes against C2 and drives the
// selective re-index spec section 4.9 requires: "Changing visibility
// updates all chunk records in C3 via a selective re-index keyed by
// version_id."
type Manager struct {
	store catalog.Store
	index index.Index
}

func NewManager(store catalog.Store, idx index.Index) *Manager {
	return &Manager{store: store, index: idx}
}

// SetVisibility validates actor's authority to change v's visibility and
// share sets per spec section 4.9's state machine, persists the change,
// and re-indexes every chunk belonging to v so C3's denormalized
// permission snapshot stays in sync with C2 (invariant I2).
//
// State machine: private/organization/public transitions are only ever
// initiated by the record's owner or a superuser ("freely allowed" per
// spec text — no further restriction on direction is stated, so any of
// the three values may be set by an authorized actor, not only the
// forward private→organization→public direction the prose lists as the
// common case). shared_with_users/roles may only admit users from the
// same organization as the record unless actor is a superuser, in which
// case any user may be added.
func (m *Manager) SetVisibility(ctx context.Context, actor *auth.User, versionID string, req ShareRequest, targetOrgIDs map[string]string) error {
	v, err := m.store.GetVersion(ctx, versionID)
	if err != nil {
		return err
	}

	if actor == nil || (!actor.IsSuperuser && actor.ID != v.UploadedBy) {
		return common.PermissionErr("only the owner or a superuser may change visibility", nil)
	}

	if !actor.IsSuperuser {
		for _, uid := range req.SharedWithUsers {
			if targetOrgIDs[uid] != v.OrgID {
				return common.PermissionErr("shared_with_users may only name users in the record's organization", nil)
			}
		}
	}

	sharedUsers := auth.StringSet(req.SharedWithUsers)
	sharedRoles := auth.StringSet(req.SharedWithRoles)
	if err := m.store.UpdateVersionVisibility(ctx, versionID, req.Visibility, sharedUsers, sharedRoles); err != nil {
		return err
	}

	return m.reindexVersion(ctx, versionID, req.Visibility, sharedUsers, sharedRoles)
}

// reindexVersion rewrites every chunk's denormalized permission snapshot
// and bulk re-indexes the version's chunk documents, keyed by version_id
// exactly as spec section 4.9 specifies, without touching chunk text,
// vectors, or page associations.
func (m *Manager) reindexVersion(ctx context.Context, versionID string, visibility catalog.Visibility, sharedUsers, sharedRoles auth.StringSet) error {
	chunks, err := m.store.ListChunksForVersion(ctx, versionID)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	for _, c := range chunks {
		c.Metadata.Visibility = visibility
		c.Metadata.SharedUserIDs = sharedUsers
		c.Metadata.SharedRoleCodes = sharedRoles
	}
	if err := m.store.SaveChunks(ctx, chunks); err != nil {
		return err
	}

	now := time.Now().Format(time.RFC3339)
	docs := make([]index.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = index.Document{
			ChunkID:       c.ChunkID,
			VersionID:     c.VersionID,
			PageNumber:    c.PageNumber,
			Text:          c.Text,
			ContentVector: c.Vector,
			Metadata:      c.Metadata,
			UpdatedAt:     now,
		}
	}
	return m.index.BulkIndex(ctx, docs)
}

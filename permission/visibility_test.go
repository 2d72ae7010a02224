package permission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"kbengine.dev/auth"
	"kbengine.dev/catalog"
	"kbengine.dev/common"
	"kbengine.dev/index"
)

func seedVersion(t *testing.T, ctx context.Context, store catalog.Store, owner, org string, vis catalog.Visibility) *catalog.DocumentVersion {
	t.Helper()
	require.NoError(t, store.CreateGroup(ctx, &catalog.DocumentGroup{GroupID: "g1", CanonicalFilename: "doc.pdf", OwnerID: owner, OrgID: org}))
	v := &catalog.DocumentVersion{
		ID: "v1", GroupID: "g1", VersionNumber: 1, Checksum: "abc", FileType: "pdf",
		UploadedBy: owner, OrgID: org, Visibility: vis, Status: catalog.StatusCompleted,
	}
	require.NoError(t, store.CreateVersion(ctx, v))
	return v
}

func TestSetVisibilityRejectsNonOwnerNonSuperuser(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemStore()
	idx := index.NewMemIndex()
	seedVersion(t, ctx, store, "alice", "acme", catalog.VisibilityPrivate)

	mgr := NewManager(store, idx)
	intruder := &auth.User{ID: "mallory", OrgID: "acme"}
	err := mgr.SetVisibility(ctx, intruder, "v1", ShareRequest{Visibility: catalog.VisibilityPublic}, nil)
	require.Error(t, err)
	assert.Equal(t, common.KindPermission, common.KindOf(err))
}

func TestSetVisibilityAllowsOwnerToWidenScope(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemStore()
	idx := index.NewMemIndex()
	seedVersion(t, ctx, store, "alice", "acme", catalog.VisibilityPrivate)

	mgr := NewManager(store, idx)
	alice := &auth.User{ID: "alice", OrgID: "acme"}
	require.NoError(t, mgr.SetVisibility(ctx, alice, "v1", ShareRequest{Visibility: catalog.VisibilityOrganization}, nil))

	v, err := store.GetVersion(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, catalog.VisibilityOrganization, v.Visibility)
}

func TestSetVisibilityRejectsSharingOutsideOrgForNonSuperuser(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemStore()
	idx := index.NewMemIndex()
	seedVersion(t, ctx, store, "alice", "acme", catalog.VisibilityOrganization)

	mgr := NewManager(store, idx)
	alice := &auth.User{ID: "alice", OrgID: "acme"}
	err := mgr.SetVisibility(ctx, alice, "v1", ShareRequest{
		Visibility:      catalog.VisibilityOrganization,
		SharedWithUsers: []string{"carol"},
	}, map[string]string{"carol": "beta"})
	require.Error(t, err)
	assert.Equal(t, common.KindPermission, common.KindOf(err))
}

func TestSetVisibilitySuperuserCanShareAcrossOrgs(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemStore()
	idx := index.NewMemIndex()
	seedVersion(t, ctx, store, "alice", "acme", catalog.VisibilityOrganization)

	mgr := NewManager(store, idx)
	root := &auth.User{ID: "root", IsSuperuser: true}
	err := mgr.SetVisibility(ctx, root, "v1", ShareRequest{
		Visibility:      catalog.VisibilityOrganization,
		SharedWithUsers: []string{"carol"},
	}, map[string]string{"carol": "beta"})
	require.NoError(t, err)

	v, err := store.GetVersion(ctx, "v1")
	require.NoError(t, err)
	assert.Contains(t, v.SharedUserIDs, "carol")
}

func TestSetVisibilityReindexesExistingChunks(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemStore()
	idx := index.NewMemIndex()
	seedVersion(t, ctx, store, "alice", "acme", catalog.VisibilityPrivate)
	require.NoError(t, store.SaveChunks(ctx, []*catalog.Chunk{
		{ChunkID: "v1-1-0", VersionID: "v1", PageNumber: 1, LocalIndex: 0, Text: "reset procedure",
			Metadata: catalog.ChunkMetadata{OwnerID: "alice", OrgID: "acme", Visibility: catalog.VisibilityPrivate}},
	}))

	mgr := NewManager(store, idx)
	alice := &auth.User{ID: "alice", OrgID: "acme"}
	require.NoError(t, mgr.SetVisibility(ctx, alice, "v1", ShareRequest{Visibility: catalog.VisibilityPublic}, nil))

	chunks, err := store.ListChunksForVersion(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, catalog.VisibilityPublic, chunks[0].Metadata.Visibility)

	hits, err := idx.Search(ctx, index.SearchRequest{QueryText: "reset", UseHybrid: true, K: 5})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, catalog.VisibilityPublic, hits[0].Metadata.Visibility)
}

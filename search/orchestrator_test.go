package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"kbengine.dev/auth"
	"kbengine.dev/catalog"
	"kbengine.dev/index"
	"kbengine.dev/modelgateway"
)

func seedSearchableVersion(t *testing.T, ctx context.Context, store catalog.Store, idx index.Index, owner, org string, vis catalog.Visibility) {
	t.Helper()
	require.NoError(t, store.CreateGroup(ctx, &catalog.DocumentGroup{GroupID: "g1", CanonicalFilename: "manual.pdf", OwnerID: owner, OrgID: org}))
	v := &catalog.DocumentVersion{
		ID: "v1", GroupID: "g1", VersionNumber: 1, Checksum: "c1", FileType: "pdf",
		UploadedBy: owner, OrgID: org, Visibility: vis, Status: catalog.StatusCompleted, TotalPages: 1,
	}
	require.NoError(t, store.CreateVersion(ctx, v))
	require.NoError(t, store.SavePage(ctx, &catalog.Page{
		DocumentVersionID: "v1", PageNumber: 1, Text: "reset procedure for the unit",
		Bboxes: []catalog.BBoxEntry{
			{Text: "reset procedure", Confidence: 0.9, X1: 0, Y1: 0, X2: 10, Y2: 10},
			{Text: "unrelated footer", Confidence: 0.95, X1: 0, Y1: 20, X2: 10, Y2: 30},
		},
	}))
	require.NoError(t, idx.BulkIndex(ctx, []index.Document{
		{
			ChunkID: "v1-1-0", VersionID: "v1", PageNumber: 1, Text: "reset procedure for the unit",
			Metadata: catalog.ChunkMetadata{
				Filename: "manual.pdf", OwnerID: owner, OrgID: org, Visibility: vis,
			},
			UpdatedAt: "2026-01-01T00:00:00Z",
		},
	}))
}

func TestSearchReturnsHitWithMatchedBBoxesForSameOrgUser(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemStore()
	idx := index.NewMemIndex()
	gw := modelgateway.NewMemGateway(4)
	seedSearchableVersion(t, ctx, store, idx, "alice", "acme", catalog.VisibilityOrganization)

	orch := New(store, idx, gw)
	bob := &auth.User{ID: "bob", OrgID: "acme"}
	results, err := orch.Search(ctx, Request{QueryText: "reset procedure", K: 5, UseHybrid: true, User: bob})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "manual.pdf", results[0].Metadata.Filename)
	assert.Equal(t, 1, results[0].PageNumber)
	assert.Greater(t, results[0].Score, 0.0)
	require.NotEmpty(t, results[0].MatchedBBoxes)
	assert.Equal(t, "reset procedure", results[0].MatchedBBoxes[0].Text)
}

func TestSearchExcludesHitForUserOutsideOrgAndNotShared(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemStore()
	idx := index.NewMemIndex()
	gw := modelgateway.NewMemGateway(4)
	seedSearchableVersion(t, ctx, store, idx, "alice", "acme", catalog.VisibilityOrganization)

	orch := New(store, idx, gw)
	carol := &auth.User{ID: "carol", OrgID: "beta"}
	results, err := orch.Search(ctx, Request{QueryText: "reset procedure", K: 5, UseHybrid: true, User: carol})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchBBoxMatchOnlyIncludesSharedTokenRegions(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemStore()
	idx := index.NewMemIndex()
	gw := modelgateway.NewMemGateway(4)
	seedSearchableVersion(t, ctx, store, idx, "alice", "acme", catalog.VisibilityPublic)

	orch := New(store, idx, gw)
	results, err := orch.Search(ctx, Request{QueryText: "reset procedure", K: 5, UseHybrid: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	for _, b := range results[0].MatchedBBoxes {
		assert.NotEqual(t, "unrelated footer", b.Text)
	}
}

func TestSearchEmptyQueryTextDegradesToFilterOnlyListing(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemStore()
	idx := index.NewMemIndex()
	gw := modelgateway.NewMemGateway(4)
	seedSearchableVersion(t, ctx, store, idx, "alice", "acme", catalog.VisibilityPublic)

	orch := New(store, idx, gw)
	results, err := orch.Search(ctx, Request{QueryText: "", K: 5, UseHybrid: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].MatchedBBoxes)
}

package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndexDeleter struct {
	deletedVersions []string
}

func (f *fakeIndexDeleter) DeleteByVersion(_ context.Context, versionID string) error {
	f.deletedVersions = append(f.deletedVersions, versionID)
	return nil
}

type fakeBlobDeleter struct {
	deletedKeys []string
}

func (f *fakeBlobDeleter) Delete(_ context.Context, _, key string) error {
	f.deletedKeys = append(f.deletedKeys, key)
	return nil
}

func seedGroupWithVersions(t *testing.T, store *MemStore, n int) (string, []*DocumentVersion) {
	t.Helper()
	ctx := context.Background()
	groupID := "group-1"
	require.NoError(t, store.CreateGroup(ctx, &DocumentGroup{GroupID: groupID, OwnerID: "user-1", OrgID: "org-1"}))

	var versions []*DocumentVersion
	for i := 1; i <= n; i++ {
		v := &DocumentVersion{
			ID:            "version-" + string(rune('0'+i)),
			GroupID:       groupID,
			VersionNumber: i,
			Status:        StatusCompleted,
			UploadedBy:    "user-1",
			OrgID:         "org-1",
			CreatedAt:     time.Now(),
			UpdatedAt:     time.Now(),
		}
		require.NoError(t, store.CreateVersion(ctx, v))
		versions = append(versions, v)
	}
	return groupID, versions
}

func TestCompleteVersionFlipsLatest(t *testing.T) {
	store := NewMemStore()
	groupID, versions := seedGroupWithVersions(t, store, 2)
	vm := NewVersionManager(store, nil, nil, nil)

	require.NoError(t, vm.CompleteVersion(context.Background(), versions[0].ID))
	assert.True(t, versions[0].IsLatest)
	assert.False(t, versions[1].IsLatest)

	require.NoError(t, vm.CompleteVersion(context.Background(), versions[1].ID))
	assert.False(t, versions[0].IsLatest)
	assert.True(t, versions[1].IsLatest)
	_ = groupID
}

func TestRestorePromotesOlderVersion(t *testing.T) {
	store := NewMemStore()
	groupID, versions := seedGroupWithVersions(t, store, 2)
	vm := NewVersionManager(store, nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, vm.CompleteVersion(ctx, versions[1].ID))
	require.NoError(t, vm.Restore(ctx, groupID, versions[0].ID))

	assert.True(t, versions[0].IsLatest)
	assert.False(t, versions[1].IsLatest)
}

func TestRestoreRejectsVersionFromAnotherGroup(t *testing.T) {
	store := NewMemStore()
	groupID, versions := seedGroupWithVersions(t, store, 1)
	vm := NewVersionManager(store, nil, nil, nil)

	err := vm.Restore(context.Background(), "other-group", versions[0].ID)
	assert.Error(t, err)
	_ = groupID
}

func TestDeleteVersionSoft(t *testing.T) {
	store := NewMemStore()
	_, versions := seedGroupWithVersions(t, store, 1)
	vm := NewVersionManager(store, nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, vm.DeleteVersion(ctx, versions[0].GroupID, versions[0].ID, false))
	assert.Equal(t, StatusCancelled, versions[0].Status)

	// Soft delete doesn't remove the row.
	_, err := store.GetVersion(ctx, versions[0].ID)
	assert.NoError(t, err)
}

func TestDeleteVersionHardPromotesRemaining(t *testing.T) {
	store := NewMemStore()
	groupID, versions := seedGroupWithVersions(t, store, 2)
	ctx := context.Background()
	require.NoError(t, store.CreateVersion(ctx, versions[1])) // no-op, already created
	require.NoError(t, store.FlipLatest(ctx, groupID, versions[1].ID))

	idx := &fakeIndexDeleter{}
	blob := &fakeBlobDeleter{}
	require.NoError(t, store.SavePage(ctx, &Page{DocumentVersionID: versions[1].ID, PageNumber: 1, ImageKey: "pages/v2/1/image.png"}))
	vm := NewVersionManager(store, idx, blob, nil)

	require.NoError(t, vm.DeleteVersion(ctx, groupID, versions[1].ID, true))

	_, err := store.GetVersion(ctx, versions[1].ID)
	assert.Error(t, err)
	assert.Contains(t, idx.deletedVersions, versions[1].ID)
	assert.Contains(t, blob.deletedKeys, "pages/v2/1/image.png")

	remaining, err := store.GetVersion(ctx, versions[0].ID)
	require.NoError(t, err)
	assert.True(t, remaining.IsLatest)
}

package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimNextTaskOnlyClaimsQueued(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	require.NoError(t, store.CreateTask(ctx, &Task{ID: "t1", Kind: TaskKindIngest, State: TaskQueued, CreatedAt: time.Now()}))
	require.NoError(t, store.CreateTask(ctx, &Task{ID: "t2", Kind: TaskKindIngest, State: TaskRunning, CreatedAt: time.Now()}))

	claimed, err := store.ClaimNextTask(ctx, []TaskKind{TaskKindIngest}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "t1", claimed.ID)
	assert.Equal(t, TaskRunning, claimed.State)
	assert.NotNil(t, claimed.LeaseExpiresAt)

	_, err = store.ClaimNextTask(ctx, []TaskKind{TaskKindIngest}, time.Minute)
	assert.Error(t, err)
}

func TestClaimNextTaskFiltersByKind(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.CreateTask(ctx, &Task{ID: "t1", Kind: TaskKindCleanup, State: TaskQueued, CreatedAt: time.Now()}))

	_, err := store.ClaimNextTask(ctx, []TaskKind{TaskKindIngest}, time.Minute)
	assert.Error(t, err)
}

func TestSweepExpiredLeasesRequeues(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	past := time.Now().Add(-time.Minute)
	require.NoError(t, store.CreateTask(ctx, &Task{ID: "t1", Kind: TaskKindIngest, State: TaskRunning, LeaseExpiresAt: &past}))

	n, err := store.SweepExpiredLeases(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	task, err := store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, TaskQueued, task.State)
	assert.Equal(t, 1, task.AttemptCount)
}

func TestUpdateVersionProgress(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.CreateVersion(ctx, &DocumentVersion{ID: "v1", GroupID: "g1", Status: StatusProcessing}))

	require.NoError(t, store.UpdateVersionProgress(ctx, "v1", 5, 50.0, "halfway"))

	v, err := store.GetVersion(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 5, v.ProcessedPages)
	assert.Equal(t, 50.0, v.ProgressPercent)
	assert.Equal(t, "halfway", v.ProgressMessage)
}

func TestGetVersionByChecksumOnlyMatchesCompleted(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.CreateVersion(ctx, &DocumentVersion{ID: "v1", Checksum: "abc", UploadedBy: "u1", Status: StatusProcessing}))

	_, err := store.GetVersionByChecksum(ctx, "abc", "u1")
	assert.Error(t, err)

	require.NoError(t, store.UpdateVersionStatus(ctx, "v1", StatusCompleted, ""))
	v, err := store.GetVersionByChecksum(ctx, "abc", "u1")
	require.NoError(t, err)
	assert.Equal(t, "v1", v.ID)
}

func TestSaveAndListChunksForVersion(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.SaveChunks(ctx, []*Chunk{
		{ChunkID: "c1", VersionID: "v1", PageNumber: 1, LocalIndex: 0},
		{ChunkID: "c2", VersionID: "v1", PageNumber: 1, LocalIndex: 1},
		{ChunkID: "c3", VersionID: "v2", PageNumber: 1, LocalIndex: 0},
	}))

	chunks, err := store.ListChunksForVersion(ctx, "v1")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)

	require.NoError(t, store.DeleteChunksForVersion(ctx, "v1"))
	chunks, err = store.ListChunksForVersion(ctx, "v1")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"kbengine.dev/catalog"
	"kbengine.dev/common"
)

func newTestManager() (*Manager, *catalog.MemStore) {
	store := catalog.NewMemStore()
	log := common.NewLogger("task-test", common.LoggerConfig{})
	return NewManager(store, log), store
}

func TestEnqueueRejectsSecondActiveTaskForSameVersion(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	_, err := m.Enqueue(ctx, catalog.TaskKindIngest, "v1")
	require.NoError(t, err)

	_, err = m.Enqueue(ctx, catalog.TaskKindIngest, "v1")
	require.Error(t, err)
	assert.Equal(t, common.KindPermanentInput, common.KindOf(err))
}

func TestPauseThenResumeRoundTripsStageCursor(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager()

	created, err := m.Enqueue(ctx, catalog.TaskKindIngest, "v1")
	require.NoError(t, err)
	require.NoError(t, store.UpdateTaskState(ctx, created.ID, catalog.TaskRunning, "render"))

	require.NoError(t, m.Pause(ctx, created.ID))
	paused, err := store.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.TaskPaused, paused.State)
	assert.Equal(t, "render", paused.StageCursor)

	require.NoError(t, m.Resume(ctx, created.ID))
	resumed, err := store.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.TaskQueued, resumed.State)
	assert.Equal(t, "render", resumed.StageCursor)
}

func TestCancelMarksTaskCancelledRegardlessOfRunningState(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager()

	created, err := m.Enqueue(ctx, catalog.TaskKindIngest, "v1")
	require.NoError(t, err)
	require.NoError(t, store.UpdateTaskState(ctx, created.ID, catalog.TaskRunning, "chunk"))

	require.NoError(t, m.Cancel(ctx, created.ID))
	got, err := store.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.TaskCancelled, got.State)
}

func TestCancelIsNoopOnAlreadyTerminalTask(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager()

	created, err := m.Enqueue(ctx, catalog.TaskKindIngest, "v1")
	require.NoError(t, err)
	require.NoError(t, store.UpdateTaskState(ctx, created.ID, catalog.TaskCompleted, "done"))

	require.NoError(t, m.Cancel(ctx, created.ID))
	got, err := store.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.TaskCompleted, got.State)
}

func TestCancelCascadesToNestedChildren(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager()

	parent, err := m.Enqueue(ctx, catalog.TaskKindIngest, "v1")
	require.NoError(t, err)
	require.NoError(t, store.UpdateTaskState(ctx, parent.ID, catalog.TaskRunning, "await_children"))

	parentID := parent.ID
	child := &catalog.Task{ID: "child-1", Kind: catalog.TaskKindIngest, TargetVersionID: "v2", State: catalog.TaskQueued, ParentTaskID: &parentID}
	require.NoError(t, store.CreateTask(ctx, child))

	childID := child.ID
	grandchild := &catalog.Task{ID: "grandchild-1", Kind: catalog.TaskKindIngest, TargetVersionID: "v3", State: catalog.TaskQueued, ParentTaskID: &childID}
	require.NoError(t, store.CreateTask(ctx, grandchild))

	require.NoError(t, m.Cancel(ctx, parent.ID))

	got, err := store.GetTask(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.TaskCancelled, got.State)

	got, err = store.GetTask(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.TaskCancelled, got.State)

	got, err = store.GetTask(ctx, grandchild.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.TaskCancelled, got.State)
}

func TestListFiltersByState(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager()

	a, err := m.Enqueue(ctx, catalog.TaskKindIngest, "v1")
	require.NoError(t, err)
	_, err = m.Enqueue(ctx, catalog.TaskKindIngest, "v2")
	require.NoError(t, err)
	require.NoError(t, store.UpdateTaskState(ctx, a.ID, catalog.TaskRunning, "render"))

	running, err := m.List(ctx, catalog.TaskRunning)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, a.ID, running[0].ID)
}

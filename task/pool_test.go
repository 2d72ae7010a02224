package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"kbengine.dev/blob"
	"kbengine.dev/catalog"
	"kbengine.dev/chunk"
	"kbengine.dev/common"
	"kbengine.dev/index"
	"kbengine.dev/modelgateway"
	"kbengine.dev/pipeline"
	"kbengine.dev/render"
)

const testBucket = "pool-test-bucket"

func TestPoolDrivesEnqueuedTaskToCompletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := catalog.NewMemStore()
	b := blob.NewMemBlob()
	idx := index.NewMemIndex()
	gw := modelgateway.NewMemGateway(4)
	reg := render.NewRegistry(&render.MemConverter{PagesPerDoc: 1}, &render.MemOCR{})
	splitter := chunk.New(chunk.DefaultConfig())
	log := common.NewLogger("pool-test", common.LoggerConfig{})
	vm := catalog.NewVersionManager(store, idx, b, log)

	pipe := pipeline.New(pipeline.Config{
		Store: store, Blob: b, Render: reg, OCR: &render.MemOCR{}, Gateway: gw,
		Index: idx, Chunker: splitter, Versions: vm, Bucket: testBucket,
	}, log)

	require.NoError(t, store.CreateGroup(ctx, &catalog.DocumentGroup{GroupID: "g1", CanonicalFilename: "doc.txt", OwnerID: "u1", OrgID: "org1"}))
	data := []byte("pool-driven end to end document body")
	checksum := common.Checksum(data)
	_, err := b.Put(ctx, testBucket, blob.RawDocumentKey(checksum), data, "text/plain")
	require.NoError(t, err)
	version := &catalog.DocumentVersion{ID: "v1", GroupID: "g1", VersionNumber: 1, Checksum: checksum, FileType: "txt", UploadedBy: "u1", OrgID: "org1", Status: catalog.StatusQueued}
	require.NoError(t, store.CreateVersion(ctx, version))

	mgr := NewManager(store, log)
	_, err = mgr.Enqueue(ctx, catalog.TaskKindIngest, version.ID)
	require.NoError(t, err)

	cfg := DefaultPoolConfig()
	cfg.CPUWorkers, cfg.ModelWorkers = 1, 1
	cfg.PollInterval = 10 * time.Millisecond
	cfg.HeartbeatInterval = time.Second
	pool := NewPool(store, pipe, cfg, log)
	pool.Start(ctx)
	defer pool.Stop()

	require.Eventually(t, func() bool {
		v, err := store.GetVersion(ctx, version.ID)
		return err == nil && v.Status == catalog.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	tasks, err := store.ListTasks(ctx, catalog.TaskCompleted)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, version.ID, tasks[0].TargetVersionID)
}

func TestSemForRoutesEmbedAndOCRToModelPool(t *testing.T) {
	pool := NewPool(nil, nil, DefaultPoolConfig(), common.NewLogger("sem-test", common.LoggerConfig{}))

	assert.True(t, pool.semFor(pipeline.StageEmbed) == pool.modelSem)
	assert.True(t, pool.semFor(pipeline.StageOCR) == pool.modelSem)
	assert.True(t, pool.semFor(pipeline.StageRender) == pool.cpuSem)
	assert.True(t, pool.semFor(pipeline.StageAdmit) == pool.cpuSem)
}

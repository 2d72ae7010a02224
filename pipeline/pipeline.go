package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"kbengine.dev/blob"
	"kbengine.dev/catalog"
	"kbengine.dev/chunk"
	"kbengine.dev/index"
	"kbengine.dev/modelgateway"
	"kbengine.dev/render"
)

// presignTTL bounds the page-image URLs denormalized onto chunk
// metadata (spec section 4.3's page_image_url field).
const presignTTL = 24 * time.Hour

// Pipeline wires every adapter the seven-stage DAG depends on (spec
// section 4.7): C2 for durable state, C1 for bytes, C5 for rendering and
// OCR, C6 for chunking, C4 for embedding and VLM correction, C3 for
// indexing, and C11 for the finalize stage's is_latest flip. Narrow
// interfaces throughout (catalog.Store, blob.Blob, render.OCREngine,
// modelgateway.Gateway, index.Index) let tests substitute every one of
// them with an in-memory fake, grounded on the dependency-inversion
// style used by coordinator/phases.go's PhaseManager, which is itself
// constructed from narrow collaborator interfaces.
type Pipeline struct {
	store    catalog.Store
	blob     blob.Blob
	render   *render.Registry
	ocr      render.OCREngine
	gateway  modelgateway.Gateway
	index    index.Index
	chunker  *chunk.Splitter
	versions *catalog.VersionManager
	bucket   string
	log      *logrus.Entry
}

// Config bundles a Pipeline's dependencies.
type Config struct {
	Store    catalog.Store
	Blob     blob.Blob
	Render   *render.Registry
	OCR      render.OCREngine
	Gateway  modelgateway.Gateway
	Index    index.Index
	Chunker  *chunk.Splitter
	Versions *catalog.VersionManager
	Bucket   string
}

func New(cfg Config, log *logrus.Entry) *Pipeline {
	return &Pipeline{
		store:    cfg.Store,
		blob:     cfg.Blob,
		render:   cfg.Render,
		ocr:      cfg.OCR,
		gateway:  cfg.Gateway,
		index:    cfg.Index,
		chunker:  cfg.Chunker,
		versions: cfg.Versions,
		bucket:   cfg.Bucket,
		log:      log,
	}
}

// Step runs task through exactly one stage-to-checkpoint transition and
// returns the cursor the caller (C8's worker loop) should persist via
// catalog.Store.UpdateTaskState before looping. done reports whether the
// task reached StageFinalize and completed; the caller is then
// responsible for recording TaskCompleted.
//
// This one-checkpoint-per-call shape is deliberate: spec section 5
// describes workers as "each pulls one task, runs it to the next
// checkpoint, persists cursor, releases", which only holds if Step
// itself never runs past a single suspension point. Cancellation is
// cooperative at exactly this granularity (spec section 4.8): the
// caller checks the task's cancellation flag between Step calls, not
// inside one.
func (p *Pipeline) Step(ctx context.Context, task *catalog.Task) (cursor string, done bool, err error) {
	version, err := p.store.GetVersion(ctx, task.TargetVersionID)
	if err != nil {
		return "", false, err
	}

	cur := decodeCursor(task.StageCursor)
	var next Cursor

	switch cur.Stage {
	case StageAdmit:
		next, err = p.admit(ctx, version)
	case StageRender:
		next, err = p.renderStage(ctx, task, version)
	case StageOCR:
		next, err = p.ocrPage(ctx, version, cur.Sub+1)
	case StageChunk:
		next, err = p.chunkStage(ctx, version)
	case StageEmbed:
		next, err = p.embedStage(ctx, version, cur.Sub)
	case StageIndex:
		next, err = p.indexStage(ctx, version)
	case StageAwaitChildren:
		next, err = p.awaitChildrenStage(ctx, task, version)
	case StageFinalize:
		next, err = p.finalizeStage(ctx, version)
	case StageDone:
		return encodeCursor(cur), true, nil
	default:
		return "", false, fmt.Errorf("pipeline: unknown stage %q", cur.Stage)
	}
	if err != nil {
		return "", false, err
	}

	return encodeCursor(next), next.Stage == StageDone, nil
}

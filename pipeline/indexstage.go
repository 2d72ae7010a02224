package pipeline

import (
	"context"
	"time"

	"kbengine.dev/catalog"
	"kbengine.dev/index"
)

// indexStage implements stage 6: bulk-write every chunk document for the
// version to C3, carrying the full permission snapshot each chunk's
// Metadata already denormalizes (spec section 4.7 step 6). Unlike
// embed, a single bulk call covers the whole version; spec section 5's
// suspension point is "after index bulk commit", i.e. once per stage,
// not once per batch.
func (p *Pipeline) indexStage(ctx context.Context, version *catalog.DocumentVersion) (Cursor, error) {
	chunks, err := p.store.ListChunksForVersion(ctx, version.ID)
	if err != nil {
		return Cursor{}, err
	}

	docs := make([]index.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = index.Document{
			ChunkID:       c.ChunkID,
			VersionID:     c.VersionID,
			PageNumber:    c.PageNumber,
			Text:          c.Text,
			ContentVector: c.Vector,
			Metadata:      c.Metadata,
			UpdatedAt:     version.UpdatedAt.Format(time.RFC3339),
		}
	}

	if len(docs) > 0 {
		if err := p.index.BulkIndex(ctx, docs); err != nil {
			return Cursor{}, err
		}
	}
	return Cursor{Stage: StageFinalize}, nil
}

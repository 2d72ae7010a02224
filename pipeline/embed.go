package pipeline

import (
	"context"
	"sort"

	"kbengine.dev/catalog"
)

// embedBatchSize is spec section 4.7's "batching within stage 5 groups
// consecutive chunks": a fixed, modest batch bounds a single C4 call's
// payload size and blast radius on failure.
const embedBatchSize = 16

// embedStage implements stage 5: batch chunk texts through C4's
// embed_batch and write the resulting vectors back. Each call embeds
// exactly one batch, matching spec section 5's suspension point "after
// each embed batch"; Cursor.Sub tracks how many chunks (in stable
// page_number, local_index order) have already been embedded.
func (p *Pipeline) embedStage(ctx context.Context, version *catalog.DocumentVersion, done int) (Cursor, error) {
	chunks, err := p.store.ListChunksForVersion(ctx, version.ID)
	if err != nil {
		return Cursor{}, err
	}
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].PageNumber != chunks[j].PageNumber {
			return chunks[i].PageNumber < chunks[j].PageNumber
		}
		return chunks[i].LocalIndex < chunks[j].LocalIndex
	})

	if done >= len(chunks) {
		return Cursor{Stage: StageIndex}, nil
	}

	end := done + embedBatchSize
	if end > len(chunks) {
		end = len(chunks)
	}
	batch := chunks[done:end]

	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}
	vectors, err := p.gateway.EmbedBatch(ctx, texts)
	if err != nil {
		return Cursor{}, err
	}
	for i, c := range batch {
		c.Vector = vectors[i]
	}
	if err := p.store.SaveChunks(ctx, batch); err != nil {
		return Cursor{}, err
	}

	if end >= len(chunks) {
		return Cursor{Stage: StageIndex}, nil
	}
	return Cursor{Stage: StageEmbed, Sub: end}, nil
}

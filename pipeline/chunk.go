package pipeline

import (
	"context"
	"fmt"

	"kbengine.dev/catalog"
)

// chunkStage implements stage 4 of spec section 4.7: split every page's
// text into fragments via C6 and persist chunk rows with a vector-field
// placeholder (the Embed stage fills Vector in). An empty page keeps its
// record with no chunks (spec section 4.7 edge policy).
func (p *Pipeline) chunkStage(ctx context.Context, version *catalog.DocumentVersion) (Cursor, error) {
	group, err := p.store.GetGroup(ctx, version.GroupID)
	if err != nil {
		return Cursor{}, err
	}
	pages, err := p.store.ListPagesForVersion(ctx, version.ID)
	if err != nil {
		return Cursor{}, err
	}

	meta := catalog.ChunkMetadata{
		Filename:        group.CanonicalFilename,
		Filepath:        group.CanonicalFilename,
		DocumentID:      group.GroupID,
		OwnerID:         version.UploadedBy,
		OrgID:           version.OrgID,
		Visibility:      version.Visibility,
		SharedUserIDs:   version.SharedUserIDs,
		SharedRoleCodes: version.SharedRoleCodes,
		Checksum:        version.Checksum,
	}

	var rows []*catalog.Chunk
	for _, pg := range pages {
		fragments, err := p.chunker.Split(pg.Text)
		if err != nil {
			return Cursor{}, err
		}
		pageMeta := meta
		if pg.ImageKey != "" {
			url, err := p.blob.Presign(ctx, p.bucket, pg.ImageKey, presignTTL)
			if err != nil {
				return Cursor{}, err
			}
			pageMeta.PageImageURL = url
		}
		for _, frag := range fragments {
			rows = append(rows, &catalog.Chunk{
				ChunkID:    fmt.Sprintf("%s-%d-%d", version.ID, pg.PageNumber, frag.LocalIndex),
				VersionID:  version.ID,
				PageNumber: pg.PageNumber,
				LocalIndex: frag.LocalIndex,
				Text:       frag.Text,
				Metadata:   pageMeta,
			})
		}
	}

	if len(rows) > 0 {
		if err := p.store.SaveChunks(ctx, rows); err != nil {
			return Cursor{}, err
		}
	}
	return Cursor{Stage: StageEmbed}, nil
}

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"kbengine.dev/blob"
	"kbengine.dev/catalog"
	"kbengine.dev/common"
)

// admit implements stage 1 of spec section 4.7: verify the uploaded
// bytes against the version's recorded checksum, then check whether a
// completed version with that checksum already exists for the same
// owner. If so, this skips render, OCR, chunk, and embed entirely and
// jumps straight to StageIndex: page rows and chunk rows (vectors
// included) are copied onto the new version, carrying its own
// permission-snapshot metadata so the two versions can later diverge in
// visibility independently, and only the index bulk-write and finalize
// stages run. This is spec section 8's upload-idempotence invariant:
// C4 (Embed) is never called a second time for identical content.
func (p *Pipeline) admit(ctx context.Context, version *catalog.DocumentVersion) (Cursor, error) {
	raw, err := p.blob.Get(ctx, p.bucket, blob.RawDocumentKey(version.Checksum))
	if err != nil {
		return Cursor{}, err
	}
	if sum := common.Checksum(raw); sum != version.Checksum {
		return Cursor{}, common.PermanentInput("uploaded bytes do not match recorded checksum", nil)
	}

	existing, err := p.store.GetVersionByChecksum(ctx, version.Checksum, version.UploadedBy)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return Cursor{Stage: StageRender}, nil
		}
		return Cursor{}, err
	}
	if existing.ID == version.ID {
		return Cursor{Stage: StageRender}, nil
	}

	pages, err := p.store.ListPagesForVersion(ctx, existing.ID)
	if err != nil {
		return Cursor{}, err
	}
	imageKeys := make(map[int]string, len(pages))
	for _, pg := range pages {
		copied := *pg
		copied.DocumentVersionID = version.ID
		if err := p.store.SavePage(ctx, &copied); err != nil {
			return Cursor{}, err
		}
		imageKeys[pg.PageNumber] = pg.ImageKey
	}
	if err := p.store.SetTotalPages(ctx, version.ID, existing.TotalPages); err != nil {
		return Cursor{}, err
	}

	group, err := p.store.GetGroup(ctx, version.GroupID)
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
	pageMetaByNumber := make(map[int]catalog.ChunkMetadata, len(imageKeys))

	existingChunks, err := p.store.ListChunksForVersion(ctx, existing.ID)
	if err != nil {
		return Cursor{}, err
	}
	var rows []*catalog.Chunk
	for _, c := range existingChunks {
		pageMeta, ok := pageMetaByNumber[c.PageNumber]
		if !ok {
			pageMeta = meta
			if key := imageKeys[c.PageNumber]; key != "" {
				url, err := p.blob.Presign(ctx, p.bucket, key, presignTTL)
				if err != nil {
					return Cursor{}, err
				}
				pageMeta.PageImageURL = url
			}
			pageMetaByNumber[c.PageNumber] = pageMeta
		}
		rows = append(rows, &catalog.Chunk{
			ChunkID:    fmt.Sprintf("%s-%d-%d", version.ID, c.PageNumber, c.LocalIndex),
			VersionID:  version.ID,
			PageNumber: c.PageNumber,
			LocalIndex: c.LocalIndex,
			Text:       c.Text,
			Vector:     c.Vector,
			Metadata:   pageMeta,
		})
	}
	if len(rows) > 0 {
		if err := p.store.SaveChunks(ctx, rows); err != nil {
			return Cursor{}, err
		}
	}

	if err := p.store.UpdateVersionProgress(ctx, version.ID, existing.TotalPages, 100, "reusing identical prior version's pages and chunks"); err != nil {
		return Cursor{}, err
	}
	return Cursor{Stage: StageIndex}, nil
}

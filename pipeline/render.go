package pipeline

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"kbengine.dev/blob"
	"kbengine.dev/catalog"
	"kbengine.dev/common"
	"kbengine.dev/render"
)

// renderStage implements stage 2 of spec section 4.7: produce page
// images and native text for an ordinary document, persisting image
// blobs and total_pages; or, for an archive upload, expand it and fan
// out one child ingest task per member instead of producing pages of
// its own (spec section 4.5). This is the single suspension point spec
// section 5 names "after render": every page produced here is persisted
// before the cursor advances, so a crash mid-render only loses an
// in-progress page, not completed ones.
func (p *Pipeline) renderStage(ctx context.Context, task *catalog.Task, version *catalog.DocumentVersion) (Cursor, error) {
	raw, err := p.blob.Get(ctx, p.bucket, blob.RawDocumentKey(version.Checksum))
	if err != nil {
		return Cursor{}, err
	}

	if render.IsArchive(version.FileType) {
		return p.renderArchive(ctx, task, version, raw)
	}

	renderer, err := p.render.Get(version.FileType)
	if err != nil {
		return Cursor{}, common.PermanentInput("unsupported file type", err)
	}

	ch, err := renderer.RenderPages(ctx, raw)
	if err != nil {
		return Cursor{}, err
	}

	total := 0
	for result := range ch {
		if result.Err != nil {
			return Cursor{}, result.Err
		}
		pg := result.Page
		total = pg.PageNumber

		row := &catalog.Page{
			DocumentVersionID: version.ID,
			PageNumber:        pg.PageNumber,
			Text:              pg.NativeText,
			Bboxes:            pg.NativeBBoxes,
		}
		if len(pg.ImageBytes) > 0 {
			key := blob.PageImageKey(version.ID, pg.PageNumber)
			if _, err := p.blob.Put(ctx, p.bucket, key, pg.ImageBytes, "image/png"); err != nil {
				return Cursor{}, err
			}
			row.ImageKey = key
		}
		if err := p.store.SavePage(ctx, row); err != nil {
			return Cursor{}, err
		}
	}

	if err := p.store.SetTotalPages(ctx, version.ID, total); err != nil {
		return Cursor{}, err
	}
	return Cursor{Stage: StageOCR, Sub: 0}, nil
}

// renderArchive expands an archive upload and dispatches one child
// ingest task per member, grounded on render.ExpandArchive plus
// DetectParentCycle's ancestor-chain guard. The archive's own version
// carries no pages and no content of its own to finalize; once every
// member is dispatched its task moves to StageAwaitChildren rather than
// StageFinalize directly, since spec section 4.5 requires the parent to
// stay non-terminal until every child task it dispatched has itself
// reached a terminal state.
func (p *Pipeline) renderArchive(ctx context.Context, task *catalog.Task, version *catalog.DocumentVersion, raw []byte) (Cursor, error) {
	members, err := render.ExpandArchive(raw)
	if err != nil {
		return Cursor{}, common.PermanentInput("invalid archive", err)
	}

	for _, member := range members {
		checksum := common.Checksum(member.Data)
		if err := DetectParentCycle(ctx, p.store, task.ID, checksum); err != nil {
			return Cursor{}, err
		}

		if _, err := p.blob.Put(ctx, p.bucket, blob.RawDocumentKey(checksum), member.Data, "application/octet-stream"); err != nil {
			return Cursor{}, err
		}

		group := &catalog.DocumentGroup{
			GroupID:           uuid.NewString(),
			CanonicalFilename: member.Name,
			OwnerID:           version.UploadedBy,
			OrgID:             version.OrgID,
		}
		if err := p.store.CreateGroup(ctx, group); err != nil {
			return Cursor{}, err
		}

		childVersion := &catalog.DocumentVersion{
			ID:            uuid.NewString(),
			GroupID:       group.GroupID,
			VersionNumber: 1,
			IsLatest:      false,
			Checksum:      checksum,
			FileType:      inferFileType(member.Name),
			FileSize:      int64(len(member.Data)),
			StorageKey:    blob.RawDocumentKey(checksum),
			Status:        catalog.StatusQueued,
			UploadedBy:    version.UploadedBy,
			Visibility:    version.Visibility,
			OrgID:         version.OrgID,
		}
		if err := p.store.CreateVersion(ctx, childVersion); err != nil {
			return Cursor{}, err
		}

		parentID := task.ID
		childTask := &catalog.Task{
			ID:              uuid.NewString(),
			Kind:            catalog.TaskKindIngest,
			TargetVersionID: childVersion.ID,
			State:           catalog.TaskQueued,
			ParentTaskID:    &parentID,
		}
		if err := p.store.CreateTask(ctx, childTask); err != nil {
			return Cursor{}, err
		}
	}

	if err := p.store.SetTotalPages(ctx, version.ID, 0); err != nil {
		return Cursor{}, err
	}
	if len(members) == 0 {
		return Cursor{Stage: StageFinalize}, nil
	}
	return Cursor{Stage: StageAwaitChildren}, nil
}

// inferFileType maps an archive member's name to the normalized
// file-type key render.Registry expects, mirroring the extension-based
// dispatch a real upload handler performs ahead of C7.
func inferFileType(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	return ext
}

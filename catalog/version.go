package catalog

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"kbengine.dev/common"
)

// IndexDeleter is the slice of the Index Store Adapter (C3) the Version
// Manager needs: removing every chunk document for a version during a
// hard delete or a visibility-change re-index. Declared here rather than
// imported from the index package to keep catalog free of a dependency on
// C3's OpenSearch client.
type IndexDeleter interface {
	DeleteByVersion(ctx context.Context, versionID string) error
}

// BlobDeleter is the slice of the Blob Store Adapter (C1) the Version
// Manager needs for hard deletes.
type BlobDeleter interface {
	Delete(ctx context.Context, bucket, key string) error
}

// VersionManager implements C11: flipping is_latest on completion,
// restoring an older version as latest, and deleting a version (soft or
// hard).
type VersionManager struct {
	store Store
	index IndexDeleter
	blob  BlobDeleter
	log   *logrus.Entry
}

func NewVersionManager(store Store, index IndexDeleter, blob BlobDeleter, log *logrus.Entry) *VersionManager {
	return &VersionManager{store: store, index: index, blob: blob, log: log}
}

// CompleteVersion flips is_latest to v within its group, as the Finalize
// stage does on terminal completion (spec section 4.7 step 7, section
// 4.11).
func (vm *VersionManager) CompleteVersion(ctx context.Context, versionID string) error {
	v, err := vm.store.GetVersion(ctx, versionID)
	if err != nil {
		return err
	}
	if err := vm.store.FlipLatest(ctx, v.GroupID, v.ID); err != nil {
		return common.Invariant("flip is_latest", err)
	}
	return nil
}

// Restore marks an older version as latest without reprocessing it. Chunk
// visibility is unaffected since chunks carry their own version_id and the
// permission predicate evaluates against the version's own metadata, not
// group-level latest status.
func (vm *VersionManager) Restore(ctx context.Context, groupID, versionID string) error {
	v, err := vm.store.GetVersion(ctx, versionID)
	if err != nil {
		return err
	}
	if v.GroupID != groupID {
		return common.PermanentInput("version does not belong to group", nil)
	}
	if v.Status != StatusCompleted {
		return common.PermanentInput("only a completed version can be restored", nil)
	}
	return vm.store.FlipLatest(ctx, groupID, versionID)
}

// DeleteVersion implements delete_version(G, v, hard). A soft delete marks
// the version cancelled/superseded without touching blobs or the index; a
// hard delete removes chunk documents, metadata rows, and (if the caller
// supplies a storage key deletion path through blob) the underlying
// objects, then promotes the highest remaining version number to latest
// if v was latest.
func (vm *VersionManager) DeleteVersion(ctx context.Context, groupID, versionID string, hard bool) error {
	v, err := vm.store.GetVersion(ctx, versionID)
	if err != nil {
		return err
	}
	if v.GroupID != groupID {
		return common.PermanentInput("version does not belong to group", nil)
	}

	if !hard {
		return vm.store.UpdateVersionStatus(ctx, versionID, StatusCancelled, "")
	}

	if vm.index != nil {
		if err := vm.index.DeleteByVersion(ctx, versionID); err != nil {
			return common.Transient("delete chunk documents", err)
		}
	}
	if err := vm.store.DeleteChunksForVersion(ctx, versionID); err != nil {
		return fmt.Errorf("delete chunk rows: %w", err)
	}
	pages, err := vm.store.ListPagesForVersion(ctx, versionID)
	if err != nil {
		return fmt.Errorf("list pages: %w", err)
	}
	if vm.blob != nil {
		for _, p := range pages {
			if p.ImageKey != "" {
				_ = vm.blob.Delete(ctx, "", p.ImageKey)
			}
			if p.OCRJSONKey != "" {
				_ = vm.blob.Delete(ctx, "", p.OCRJSONKey)
			}
		}
	}

	if err := vm.store.DeleteVersionRow(ctx, versionID); err != nil {
		return fmt.Errorf("delete version row: %w", err)
	}

	if v.IsLatest {
		remaining, err := vm.store.ListVersionsByGroup(ctx, groupID)
		if err != nil {
			return fmt.Errorf("list remaining versions: %w", err)
		}
		if best := highestVersionNumber(remaining); best != nil {
			if err := vm.store.FlipLatest(ctx, groupID, best.ID); err != nil {
				return common.Invariant("promote remaining version to latest", err)
			}
		}
	}
	return nil
}

func highestVersionNumber(versions []*DocumentVersion) *DocumentVersion {
	var best *DocumentVersion
	for _, v := range versions {
		if best == nil || v.VersionNumber > best.VersionNumber {
			best = v
		}
	}
	return best
}

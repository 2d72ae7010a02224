package pipeline

import (
	"context"

	"kbengine.dev/catalog"
)

// finalizeStage implements stage 7: mark the version completed, flip the
// group's is_latest pointer to it via C11, and write a structured audit
// log line recording who finalized what (spec section 4.7 step 7,
// section 4.11).
func (p *Pipeline) finalizeStage(ctx context.Context, version *catalog.DocumentVersion) (Cursor, error) {
	if err := p.store.UpdateVersionStatus(ctx, version.ID, catalog.StatusCompleted, ""); err != nil {
		return Cursor{}, err
	}
	if err := p.versions.CompleteVersion(ctx, version.ID); err != nil {
		return Cursor{}, err
	}

	p.log.WithFields(map[string]interface{}{
		"event":      "version_finalized",
		"version_id": version.ID,
		"group_id":   version.GroupID,
		"owner_id":   version.UploadedBy,
		"org_id":     version.OrgID,
	}).Info("document version processing complete")

	return Cursor{Stage: StageDone}, nil
}

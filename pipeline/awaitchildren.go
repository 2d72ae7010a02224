package pipeline

import (
	"context"

	"kbengine.dev/catalog"
)

// awaitChildrenStage implements the archive parent's wait in spec section
// 4.5: "a parent completes when all children are terminal", with the
// parent's progress tracked as the average of its children's (concrete
// scenario: "Parent task completes only after all three child tasks
// terminal; parent progress = average of child progress"). Each call
// re-reads every child dispatched by renderArchive and either records the
// averaged progress and re-arms the same stage, or advances to
// StageFinalize once none remain in flight.
func (p *Pipeline) awaitChildrenStage(ctx context.Context, task *catalog.Task, version *catalog.DocumentVersion) (Cursor, error) {
	children, err := p.store.ListChildTasks(ctx, task.ID)
	if err != nil {
		return Cursor{}, err
	}
	if len(children) == 0 {
		return Cursor{Stage: StageFinalize}, nil
	}

	allTerminal := true
	var progressSum float64
	for _, child := range children {
		if !child.State.Terminal() {
			allTerminal = false
		}
		childVersion, err := p.store.GetVersion(ctx, child.TargetVersionID)
		if err != nil {
			return Cursor{}, err
		}
		if child.State.Terminal() && child.State != catalog.TaskFailed && child.State != catalog.TaskCancelled {
			progressSum += 100
		} else {
			progressSum += childVersion.ProgressPercent
		}
	}
	avgProgress := progressSum / float64(len(children))

	if err := p.store.UpdateVersionProgress(ctx, version.ID, 0, avgProgress, "awaiting child tasks"); err != nil {
		return Cursor{}, err
	}

	if !allTerminal {
		return Cursor{Stage: StageAwaitChildren}, nil
	}
	return Cursor{Stage: StageFinalize}, nil
}

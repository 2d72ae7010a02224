package pipeline

import (
	"context"

	"kbengine.dev/catalog"
	"kbengine.dev/common"
)

// DetectParentCycle walks a prospective child task's ancestor chain
// through Task.ParentTaskID, comparing each ancestor's target version
// checksum against candidateChecksum, and reports an error if a match is
// found. This guards the archive fan-out in render.go against an
// archive that (directly or through nested archives) contains itself,
// which would otherwise recurse without bound.
//
// Grounded on graph/dag.go's checkCycleManual/checkCycleRecursive, which
// detect a cycle in a general dependency graph with a visited set. A
// task's ancestor chain is already a simple path rather than a general
// graph (each task has at most one parent), so the same visited-set
// idea degenerates to a linear walk up that one path; it is kept as an
// explicit visited set rather than a fixed-depth loop so a corrupted
// store that introduced a parent loop can't spin forever.
func DetectParentCycle(ctx context.Context, store catalog.Store, parentTaskID string, candidateChecksum string) error {
	visited := make(map[string]bool)
	currentID := parentTaskID

	for currentID != "" {
		if visited[currentID] {
			return common.Invariant("parent task chain already visited, corrupt ancestor link", nil)
		}
		visited[currentID] = true

		task, err := store.GetTask(ctx, currentID)
		if err != nil {
			return err
		}
		version, err := store.GetVersion(ctx, task.TargetVersionID)
		if err != nil {
			return err
		}
		if version.Checksum == candidateChecksum {
			return common.PermanentInput("archive contains itself, refusing to recurse", nil)
		}

		if task.ParentTaskID == nil {
			break
		}
		currentID = *task.ParentTaskID
	}
	return nil
}

// Package pipeline implements the Pipeline Stages (C7): the seven-step
// stage DAG (admit, render, per-page OCR, chunk, embed, index, finalize)
// that walks a DocumentVersion from upload to searchable, plus the
// archive fan-out that turns one archive member into a child ingest
// task (spec section 4.7).
//
// The stage-ordering and checkpoint/resume pattern is grounded on
// coordinator/phases.go's Phase/ValidTransitions/PhaseManager: that type
// validates transitions between workflow phases and persists a
// PhaseState a caller can resume from. Pipeline generalizes the same
// idea to a fixed, strictly ordered stage list instead of a general
// transition graph, since spec section 4.7 states stage order is
// strict within one version (no branching, no re-entry), and persists
// its cursor on catalog.Task.StageCursor rather than an in-memory map,
// since a crashed worker must resume from durable state (spec section
// 5).
package pipeline

import (
	"fmt"
	"strconv"
	"strings"
)

// Stage names one of the seven steps in spec section 4.7's stage DAG.
type Stage string

const (
	StageAdmit    Stage = "admit"
	StageRender   Stage = "render"
	StageOCR      Stage = "ocr"
	StageChunk    Stage = "chunk"
	StageEmbed    Stage = "embed"
	StageIndex    Stage = "index"
	StageFinalize Stage = "finalize"
	StageDone     Stage = "done"

	// StageAwaitChildren is an archive task's own stage between fan-out
	// and finalize (spec section 4.5): it re-checks its child tasks'
	// terminal state and progress each time it is stepped, rather than
	// completing as soon as children are dispatched. Not part of order
	// since it only exists on the archive's own task, reached directly
	// from renderArchive rather than through the ordinary 1->7 sequence.
	StageAwaitChildren Stage = "await_children"
)

// order is the strict sequence spec section 4.7 fixes: "stages 1->7 are
// sequential". admit may skip directly to index when it short-circuits
// on a checksum match (see admit.go); every other transition follows
// this list exactly, mirroring Phase.CanTransitionTo's table-driven
// check rather than an open-ended state machine.
var order = []Stage{StageAdmit, StageRender, StageOCR, StageChunk, StageEmbed, StageIndex, StageFinalize}

// next returns the stage that follows s in the fixed order, or
// StageDone after StageFinalize.
func next(s Stage) Stage {
	for i, st := range order {
		if st == s && i+1 < len(order) {
			return order[i+1]
		}
	}
	return StageDone
}

// DecodeStage extracts just the Stage component of a persisted
// StageCursor, for callers outside this package (task.Pool) that need
// to route a claimed task to the right worker pool without depending on
// Cursor's sub-index encoding.
func DecodeStage(raw string) Stage {
	return decodeCursor(raw).Stage
}

// Cursor is a catalog.Task.StageCursor value decoded into a stage and an
// optional sub-index, used by StageOCR to resume mid-page and by
// StageEmbed to skip chunks already embedded (spec
// section 4.7: "every stage is idempotent by (version_id, stage,
// cursor)").  Encoded as "stage" or "stage:subIndex".
type Cursor struct {
	Stage Stage
	Sub   int
}

// decodeCursor parses a persisted StageCursor. An empty string means the
// task has not started any stage yet (resume at StageAdmit).
func decodeCursor(raw string) Cursor {
	if raw == "" {
		return Cursor{Stage: StageAdmit}
	}
	parts := strings.SplitN(raw, ":", 2)
	c := Cursor{Stage: Stage(parts[0])}
	if len(parts) == 2 {
		if n, err := strconv.Atoi(parts[1]); err == nil {
			c.Sub = n
		}
	}
	return c
}

// encodeCursor is decodeCursor's inverse.
func encodeCursor(c Cursor) string {
	if c.Sub == 0 {
		return string(c.Stage)
	}
	return fmt.Sprintf("%s:%d", c.Stage, c.Sub)
}

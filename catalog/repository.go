package catalog

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"kbengine.dev/auth"
	"kbengine.dev/common"
)

// Store is C2's contract: the queries the pipeline, task manager, search
// orchestrator, and permission engine issue against the relational store.
// Grounded on db/repository/postgres.go's context-scoped method set,
// generalized from PostgresMetricsRepository's raw SQL to GORM calls over
// the models in model.go.
type Store interface {
	CreateGroup(ctx context.Context, g *DocumentGroup) error
	GetGroup(ctx context.Context, groupID string) (*DocumentGroup, error)

	CreateVersion(ctx context.Context, v *DocumentVersion) error
	GetVersion(ctx context.Context, id string) (*DocumentVersion, error)
	GetVersionByChecksum(ctx context.Context, checksum, ownerID string) (*DocumentVersion, error)
	ListVersionsByGroup(ctx context.Context, groupID string) ([]*DocumentVersion, error)
	UpdateVersionProgress(ctx context.Context, id string, processedPages int, percent float64, message string) error
	UpdateVersionStatus(ctx context.Context, id string, status VersionStatus, errMsg string) error
	SetTotalPages(ctx context.Context, id string, total int) error
	UpdateVersionVisibility(ctx context.Context, id string, visibility Visibility, sharedUsers, sharedRoles auth.StringSet) error

	SavePage(ctx context.Context, p *Page) error
	GetPage(ctx context.Context, versionID string, pageNumber int) (*Page, error)
	ListPagesForVersion(ctx context.Context, versionID string) ([]*Page, error)

	SaveChunks(ctx context.Context, chunks []*Chunk) error
	ListChunksForVersion(ctx context.Context, versionID string) ([]*Chunk, error)
	DeleteChunksForVersion(ctx context.Context, versionID string) error

	CreateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	FindActiveTaskForVersion(ctx context.Context, versionID string) (*Task, error)
	ClaimNextTask(ctx context.Context, kinds []TaskKind, leaseTTL time.Duration) (*Task, error)
	ExtendLease(ctx context.Context, id string, leaseTTL time.Duration) error
	UpdateTaskState(ctx context.Context, id string, state TaskState, stageCursor string) error
	FailTask(ctx context.Context, id string, attemptCount int, lastErr string, terminal bool) error
	SweepExpiredLeases(ctx context.Context) (int64, error)
	ListTasks(ctx context.Context, filterState TaskState) ([]*Task, error)
	ListChildTasks(ctx context.Context, parentTaskID string) ([]*Task, error)

	FlipLatest(ctx context.Context, groupID, newLatestVersionID string) error
	DeleteVersionRow(ctx context.Context, id string) error
}

// GormStore is the Postgres-backed Store implementation.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

func (s *GormStore) CreateGroup(ctx context.Context, g *DocumentGroup) error {
	return s.db.WithContext(ctx).Create(g).Error
}

func (s *GormStore) GetGroup(ctx context.Context, groupID string) (*DocumentGroup, error) {
	var g DocumentGroup
	if err := s.db.WithContext(ctx).First(&g, "group_id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (s *GormStore) CreateVersion(ctx context.Context, v *DocumentVersion) error {
	return s.db.WithContext(ctx).Create(v).Error
}

func (s *GormStore) GetVersion(ctx context.Context, id string) (*DocumentVersion, error) {
	var v DocumentVersion
	if err := s.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// GetVersionByChecksum supports the Admit stage's dedup short-circuit
// (spec invariant I1): a completed version with identical checksum for the
// same owner is reused rather than reprocessed.
func (s *GormStore) GetVersionByChecksum(ctx context.Context, checksum, ownerID string) (*DocumentVersion, error) {
	var v DocumentVersion
	err := s.db.WithContext(ctx).
		Where("checksum = ? AND uploaded_by = ? AND status = ?", checksum, ownerID, StatusCompleted).
		First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (s *GormStore) ListVersionsByGroup(ctx context.Context, groupID string) ([]*DocumentVersion, error) {
	var versions []*DocumentVersion
	if err := s.db.WithContext(ctx).Where("group_id = ?", groupID).Order("version_number").Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

// UpdateVersionProgress is a single-row update, serialized per version id
// by Postgres's row-level locking on the UPDATE statement itself (spec
// section 4.2's contract). Callers must only ever increase processedPages
// and percent for a given version (spec invariant I3); this method does
// not itself enforce monotonicity, which is the pipeline stage's job.
func (s *GormStore) UpdateVersionProgress(ctx context.Context, id string, processedPages int, percent float64, message string) error {
	return s.db.WithContext(ctx).Model(&DocumentVersion{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processed_pages":  processedPages,
		"progress_percent": percent,
		"progress_message": message,
		"updated_at":       time.Now(),
	}).Error
}

func (s *GormStore) UpdateVersionStatus(ctx context.Context, id string, status VersionStatus, errMsg string) error {
	updates := map[string]interface{}{"status": status, "updated_at": time.Now()}
	if errMsg != "" {
		updates["error_message"] = errMsg
	}
	return s.db.WithContext(ctx).Model(&DocumentVersion{}).Where("id = ?", id).Updates(updates).Error
}

func (s *GormStore) SetTotalPages(ctx context.Context, id string, total int) error {
	return s.db.WithContext(ctx).Model(&DocumentVersion{}).Where("id = ?", id).Update("total_pages", total).Error
}

// UpdateVersionVisibility persists a visibility/share-set change (spec
// section 4.9's "changing visibility updates all chunk records in C3 via a
// selective re-index keyed by version_id" operation begins here; the
// permission package issues the re-index after this call succeeds).
func (s *GormStore) UpdateVersionVisibility(ctx context.Context, id string, visibility Visibility, sharedUsers, sharedRoles auth.StringSet) error {
	return s.db.WithContext(ctx).Model(&DocumentVersion{}).Where("id = ?", id).Updates(map[string]interface{}{
		"visibility":        visibility,
		"shared_user_ids":   sharedUsers,
		"shared_role_codes": sharedRoles,
		"updated_at":        time.Now(),
	}).Error
}

func (s *GormStore) SavePage(ctx context.Context, p *Page) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_version_id"}, {Name: "page_number"}},
		UpdateAll: true,
	}).Create(p).Error
}

func (s *GormStore) GetPage(ctx context.Context, versionID string, pageNumber int) (*Page, error) {
	var p Page
	err := s.db.WithContext(ctx).First(&p, "document_version_id = ? AND page_number = ?", versionID, pageNumber).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *GormStore) ListPagesForVersion(ctx context.Context, versionID string) ([]*Page, error) {
	var pages []*Page
	if err := s.db.WithContext(ctx).Where("document_version_id = ?", versionID).Order("page_number").Find(&pages).Error; err != nil {
		return nil, err
	}
	return pages, nil
}

// SaveChunks upserts chunks by chunk_id, giving the Chunk stage idempotency
// on restart (spec section 4.7: every stage idempotent by cursor).
func (s *GormStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chunk_id"}},
		UpdateAll: true,
	}).CreateInBatches(chunks, 100).Error
}

func (s *GormStore) ListChunksForVersion(ctx context.Context, versionID string) ([]*Chunk, error) {
	var chunks []*Chunk
	if err := s.db.WithContext(ctx).Where("version_id = ?", versionID).Order("page_number, local_index").Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (s *GormStore) DeleteChunksForVersion(ctx context.Context, versionID string) error {
	return s.db.WithContext(ctx).Where("version_id = ?", versionID).Delete(&Chunk{}).Error
}

func (s *GormStore) CreateTask(ctx context.Context, t *Task) error {
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *GormStore) GetTask(ctx context.Context, id string) (*Task, error) {
	var t Task
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *GormStore) FindActiveTaskForVersion(ctx context.Context, versionID string) (*Task, error) {
	var t Task
	err := s.db.WithContext(ctx).
		Where("target_version_id = ? AND state IN ?", versionID, []TaskState{TaskQueued, TaskRunning, TaskPaused}).
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// ClaimNextTask atomically claims the oldest queued task of the given
// kinds, setting state=running and a fresh lease (spec section 4.8). The
// transaction uses SELECT ... FOR UPDATE SKIP LOCKED so concurrent worker
// pools never double-claim a row.
func (s *GormStore) ClaimNextTask(ctx context.Context, kinds []TaskKind, leaseTTL time.Duration) (*Task, error) {
	var claimed *Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t Task
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("state = ? AND kind IN ?", TaskQueued, kinds).
			Order("created_at").
			First(&t).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.ErrNotFound
			}
			return err
		}
		lease := time.Now().Add(leaseTTL)
		t.State = TaskRunning
		t.LeaseExpiresAt = &lease
		t.UpdatedAt = time.Now()
		if err := tx.Save(&t).Error; err != nil {
			return err
		}
		claimed = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *GormStore) ExtendLease(ctx context.Context, id string, leaseTTL time.Duration) error {
	lease := time.Now().Add(leaseTTL)
	return s.db.WithContext(ctx).Model(&Task{}).Where("id = ? AND state = ?", id, TaskRunning).
		Update("lease_expires_at", lease).Error
}

func (s *GormStore) UpdateTaskState(ctx context.Context, id string, state TaskState, stageCursor string) error {
	return s.db.WithContext(ctx).Model(&Task{}).Where("id = ?", id).Updates(map[string]interface{}{
		"state":        state,
		"stage_cursor": stageCursor,
		"updated_at":   time.Now(),
	}).Error
}

func (s *GormStore) FailTask(ctx context.Context, id string, attemptCount int, lastErr string, terminal bool) error {
	state := TaskQueued
	if terminal {
		state = TaskFailed
	}
	return s.db.WithContext(ctx).Model(&Task{}).Where("id = ?", id).Updates(map[string]interface{}{
		"state":         state,
		"attempt_count": attemptCount,
		"last_error":    lastErr,
		"updated_at":    time.Now(),
	}).Error
}

// SweepExpiredLeases returns tasks with an expired lease to queued and
// bumps their attempt count, grounded on spec section 4.8's crash-recovery
// sweeper.
func (s *GormStore) SweepExpiredLeases(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&Task{}).
		Where("state = ? AND lease_expires_at < ?", TaskRunning, time.Now()).
		Updates(map[string]interface{}{
			"state":         TaskQueued,
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"updated_at":    time.Now(),
		})
	return res.RowsAffected, res.Error
}

func (s *GormStore) ListTasks(ctx context.Context, filterState TaskState) ([]*Task, error) {
	var tasks []*Task
	q := s.db.WithContext(ctx)
	if filterState != "" {
		q = q.Where("state = ?", filterState)
	}
	if err := q.Order("created_at").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListChildTasks returns every task dispatched from an archive's fan-out
// (Task.ParentTaskID == parentTaskID), used by the archive parent's
// await-children stage and by Manager.Cancel's cascade.
func (s *GormStore) ListChildTasks(ctx context.Context, parentTaskID string) ([]*Task, error) {
	var tasks []*Task
	if err := s.db.WithContext(ctx).Where("parent_task_id = ?", parentTaskID).Order("created_at").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// FlipLatest sets newLatestVersionID as the sole is_latest=true version
// within groupID, in one transaction (spec section 4.11).
func (s *GormStore) FlipLatest(ctx context.Context, groupID, newLatestVersionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&DocumentVersion{}).Where("group_id = ?", groupID).Update("is_latest", false).Error; err != nil {
			return err
		}
		return tx.Model(&DocumentVersion{}).Where("id = ?", newLatestVersionID).Update("is_latest", true).Error
	})
}

// DeleteVersionRow removes a DocumentVersion's metadata row, used by the
// Version Manager's hard delete after chunks and pages have been purged.
func (s *GormStore) DeleteVersionRow(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&DocumentVersion{}, "id = ?", id).Error
}

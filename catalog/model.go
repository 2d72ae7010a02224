// Package catalog implements the Metadata Store Adapter (C2) and the
// Version Manager (C11): the transactional relational record of
// document groups, versions, pages, chunks, and tasks, backed by
// PostgreSQL through GORM in the style of db/postgres.go's RabbitLog model.
package catalog

import (
	"time"

	"gorm.io/gorm"
	"kbengine.dev/auth"
)

// Visibility is a DocumentVersion's sharing scope (spec section 3).
type Visibility string

const (
	VisibilityPrivate      Visibility = "private"
	VisibilityOrganization Visibility = "organization"
	VisibilityPublic       Visibility = "public"
)

// VersionStatus is a DocumentVersion's lifecycle state.
type VersionStatus string

const (
	StatusQueued     VersionStatus = "queued"
	StatusProcessing VersionStatus = "processing"
	StatusCompleted  VersionStatus = "completed"
	StatusFailed     VersionStatus = "failed"
	StatusCancelled  VersionStatus = "cancelled"
)

// TaskKind names the work a Task performs.
type TaskKind string

const (
	TaskKindIngest  TaskKind = "ingest_document"
	TaskKindReembed TaskKind = "re-embed"
	TaskKindCleanup TaskKind = "cleanup"
)

// TaskState is a Task's lifecycle state.
type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskRunning   TaskState = "running"
	TaskPaused    TaskState = "paused"
	TaskCancelled TaskState = "cancelled"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

// Terminal reports whether a task in this state will never transition
// again on its own (spec section 4.5: an archive's own task waits for
// every child to reach one of these before it finalizes).
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// DocumentGroup is the logical identity of a document across versions.
type DocumentGroup struct {
	GroupID            string `gorm:"type:uuid;primaryKey"`
	CanonicalFilename  string `gorm:"size:512;not null"`
	OwnerID            string `gorm:"type:uuid;index;not null"`
	OrgID              string `gorm:"type:uuid;index;not null"`
	CreatedAt          time.Time
}

// DocumentVersion is one uploaded revision within a group. Exactly one
// version per group has IsLatest = true (spec invariant on section 3).
type DocumentVersion struct {
	ID                string `gorm:"type:uuid;primaryKey"`
	GroupID            string `gorm:"type:uuid;index:idx_group_version,unique;not null"`
	VersionNumber      int    `gorm:"index:idx_group_version,unique;not null"`
	IsLatest           bool   `gorm:"not null;default:false"`
	Checksum           string `gorm:"size:64;index:idx_checksum_owner"`
	FileType           string `gorm:"size:50"`
	FileSize           int64
	StorageKey         string        `gorm:"size:512;not null"`
	Status             VersionStatus `gorm:"size:20;index:idx_status_updated;not null"`
	TotalPages         int
	ProcessedPages     int
	ProgressPercent    float64
	ProgressMessage    string `gorm:"size:255"`
	CreatedAt          time.Time
	UpdatedAt          time.Time `gorm:"index:idx_status_updated"`
	UploadedBy         string    `gorm:"type:uuid;index:idx_checksum_owner;not null"`
	Visibility         Visibility `gorm:"size:20;not null;default:private"`
	SharedUserIDs      auth.StringSet `gorm:"type:text;serializer:json"`
	SharedRoleCodes    auth.StringSet `gorm:"type:text;serializer:json"`
	ErrorMessage       string         `gorm:"type:text"`
	OrgID              string         `gorm:"type:uuid;index;not null"`
}

// OwnerRecord exposes the fields the permission engine's predicate needs,
// independent of which concrete model (DocumentVersion, Chunk projection,
// ...) is being checked.
type OwnerRecord struct {
	OwnerID         string
	OrgID           string
	Visibility      Visibility
	SharedUserIDs   auth.StringSet
	SharedRoleCodes auth.StringSet
}

// AsOwnerRecord adapts a DocumentVersion to the permission engine's record
// shape.
func (v *DocumentVersion) AsOwnerRecord() OwnerRecord {
	return OwnerRecord{
		OwnerID:         v.UploadedBy,
		OrgID:           v.OrgID,
		Visibility:      v.Visibility,
		SharedUserIDs:   v.SharedUserIDs,
		SharedRoleCodes: v.SharedRoleCodes,
	}
}

// Page is one rendered+OCR'd page of a DocumentVersion.
type Page struct {
	DocumentVersionID string `gorm:"type:uuid;primaryKey"`
	PageNumber        int    `gorm:"primaryKey"`
	ImageKey          string `gorm:"size:512"`
	OCRJSONKey        string `gorm:"size:512"`
	Text              string `gorm:"type:text"`
	AvgConfidence     float64
	Bboxes            []BBoxEntry `gorm:"type:text;serializer:json"`
	VLMFailed         bool        `gorm:"not null;default:false"`
}

// BBoxEntry is one OCR-detected text region on a page (spec section 3).
type BBoxEntry struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
}

// Chunk is an immutable unit of embeddable text derived from a Page.
// ChunkID is deterministic: hash(version_id, page, local_index), so
// reprocessing the same page never produces a duplicate row or index
// document (spec section 4.3's bulk-index idempotency).
type Chunk struct {
	ChunkID    string `gorm:"size:64;primaryKey"`
	VersionID  string `gorm:"type:uuid;index;not null"`
	PageNumber int    `gorm:"not null"`
	LocalIndex int    `gorm:"not null"`
	Text       string `gorm:"type:text;not null"`
	Vector     []float32 `gorm:"type:text;serializer:json"`
	Metadata   ChunkMetadata `gorm:"type:text;serializer:json"`
	CreatedAt  time.Time
}

// ChunkMetadata is the denormalized snapshot written alongside each chunk
// so the index store doesn't need a join back to catalog at query time.
type ChunkMetadata struct {
	Filename        string         `json:"filename"`
	Filepath        string         `json:"filepath"`
	DocumentID      string         `json:"document_id"`
	OwnerID         string         `json:"owner_id"`
	OrgID           string         `json:"org_id"`
	Visibility      Visibility     `json:"visibility"`
	SharedUserIDs   auth.StringSet `json:"shared_with_users"`
	SharedRoleCodes auth.StringSet `json:"shared_with_roles"`
	Checksum        string         `json:"checksum"`
	OriginalFileURL string         `json:"original_file_url"`
	PageImageURL    string         `json:"page_image_url"`
}

// Task tracks one unit of pipeline work against a DocumentVersion. Only
// one active task exists per version at a time (spec section 3).
type Task struct {
	ID             string `gorm:"type:uuid;primaryKey"`
	Kind           TaskKind `gorm:"size:30;not null"`
	TargetVersionID string  `gorm:"type:uuid;index;not null"`
	State          TaskState `gorm:"size:20;index;not null"`
	StageCursor    string    `gorm:"size:50"`
	AttemptCount   int       `gorm:"not null;default:0"`
	LastError      string    `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LeaseExpiresAt *time.Time
	ParentTaskID   *string `gorm:"type:uuid;index"`
}

// AutoMigrate runs GORM's schema migration for every model this package
// owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&DocumentGroup{}, &DocumentVersion{}, &Page{}, &Chunk{}, &Task{})
}

package catalog

import (
	"context"
	"strconv"
	"sync"
	"time"

	"kbengine.dev/auth"
	"kbengine.dev/common"
)

// MemStore is an in-memory Store for unit tests, grounded on the same
// map-plus-mutex pattern as auth.MemStore / storage/s3_mock.go.
type MemStore struct {
	mu       sync.Mutex
	groups   map[string]*DocumentGroup
	versions map[string]*DocumentVersion
	pages    map[string]*Page
	chunks   map[string]*Chunk
	tasks    map[string]*Task
}

func NewMemStore() *MemStore {
	return &MemStore{
		groups:   make(map[string]*DocumentGroup),
		versions: make(map[string]*DocumentVersion),
		pages:    make(map[string]*Page),
		chunks:   make(map[string]*Chunk),
		tasks:    make(map[string]*Task),
	}
}

func pageKey(versionID string, pageNumber int) string {
	return versionID + "#" + strconv.Itoa(pageNumber)
}

func (m *MemStore) CreateGroup(_ context.Context, g *DocumentGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.GroupID] = g
	return nil
}

func (m *MemStore) GetGroup(_ context.Context, groupID string) (*DocumentGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return g, nil
}

func (m *MemStore) CreateVersion(_ context.Context, v *DocumentVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[v.ID] = v
	return nil
}

func (m *MemStore) GetVersion(_ context.Context, id string) (*DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return v, nil
}

func (m *MemStore) GetVersionByChecksum(_ context.Context, checksum, ownerID string) (*DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions {
		if v.Checksum == checksum && v.UploadedBy == ownerID && v.Status == StatusCompleted {
			return v, nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *MemStore) ListVersionsByGroup(_ context.Context, groupID string) ([]*DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*DocumentVersion
	for _, v := range m.versions {
		if v.GroupID == groupID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *MemStore) UpdateVersionProgress(_ context.Context, id string, processedPages int, percent float64, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[id]
	if !ok {
		return common.ErrNotFound
	}
	v.ProcessedPages = processedPages
	v.ProgressPercent = percent
	v.ProgressMessage = message
	v.UpdatedAt = time.Now()
	return nil
}

func (m *MemStore) UpdateVersionStatus(_ context.Context, id string, status VersionStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[id]
	if !ok {
		return common.ErrNotFound
	}
	v.Status = status
	if errMsg != "" {
		v.ErrorMessage = errMsg
	}
	v.UpdatedAt = time.Now()
	return nil
}

func (m *MemStore) SetTotalPages(_ context.Context, id string, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[id]
	if !ok {
		return common.ErrNotFound
	}
	v.TotalPages = total
	return nil
}

func (m *MemStore) UpdateVersionVisibility(_ context.Context, id string, visibility Visibility, sharedUsers, sharedRoles auth.StringSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[id]
	if !ok {
		return common.ErrNotFound
	}
	v.Visibility = visibility
	v.SharedUserIDs = sharedUsers
	v.SharedRoleCodes = sharedRoles
	v.UpdatedAt = time.Now()
	return nil
}

func (m *MemStore) SavePage(_ context.Context, p *Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[pageKey(p.DocumentVersionID, p.PageNumber)] = p
	return nil
}

func (m *MemStore) GetPage(_ context.Context, versionID string, pageNumber int) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[pageKey(versionID, pageNumber)]
	if !ok {
		return nil, common.ErrNotFound
	}
	return p, nil
}

func (m *MemStore) ListPagesForVersion(_ context.Context, versionID string) ([]*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Page
	for _, p := range m.pages {
		if p.DocumentVersionID == versionID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemStore) SaveChunks(_ context.Context, chunks []*Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		m.chunks[c.ChunkID] = c
	}
	return nil
}

func (m *MemStore) ListChunksForVersion(_ context.Context, versionID string) ([]*Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Chunk
	for _, c := range m.chunks {
		if c.VersionID == versionID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemStore) DeleteChunksForVersion(_ context.Context, versionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.chunks {
		if c.VersionID == versionID {
			delete(m.chunks, id)
		}
	}
	return nil
}

func (m *MemStore) CreateTask(_ context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return nil
}

func (m *MemStore) GetTask(_ context.Context, id string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return t, nil
}

func (m *MemStore) FindActiveTaskForVersion(_ context.Context, versionID string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.TargetVersionID == versionID && (t.State == TaskQueued || t.State == TaskRunning || t.State == TaskPaused) {
			return t, nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *MemStore) ClaimNextTask(_ context.Context, kinds []TaskKind, leaseTTL time.Duration) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *Task
	for _, t := range m.tasks {
		if t.State != TaskQueued {
			continue
		}
		if !containsKind(kinds, t.Kind) {
			continue
		}
		if oldest == nil || t.CreatedAt.Before(oldest.CreatedAt) {
			oldest = t
		}
	}
	if oldest == nil {
		return nil, common.ErrNotFound
	}
	lease := time.Now().Add(leaseTTL)
	oldest.State = TaskRunning
	oldest.LeaseExpiresAt = &lease
	oldest.UpdatedAt = time.Now()
	return oldest, nil
}

func containsKind(kinds []TaskKind, k TaskKind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

func (m *MemStore) ExtendLease(_ context.Context, id string, leaseTTL time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return common.ErrNotFound
	}
	lease := time.Now().Add(leaseTTL)
	t.LeaseExpiresAt = &lease
	return nil
}

func (m *MemStore) UpdateTaskState(_ context.Context, id string, state TaskState, stageCursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return common.ErrNotFound
	}
	t.State = state
	t.StageCursor = stageCursor
	t.UpdatedAt = time.Now()
	return nil
}

func (m *MemStore) FailTask(_ context.Context, id string, attemptCount int, lastErr string, terminal bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return common.ErrNotFound
	}
	t.AttemptCount = attemptCount
	t.LastError = lastErr
	if terminal {
		t.State = TaskFailed
	} else {
		t.State = TaskQueued
	}
	t.UpdatedAt = time.Now()
	return nil
}

func (m *MemStore) SweepExpiredLeases(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now()
	for _, t := range m.tasks {
		if t.State == TaskRunning && t.LeaseExpiresAt != nil && t.LeaseExpiresAt.Before(now) {
			t.State = TaskQueued
			t.AttemptCount++
			t.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (m *MemStore) ListTasks(_ context.Context, filterState TaskState) ([]*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Task
	for _, t := range m.tasks {
		if filterState == "" || t.State == filterState {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemStore) ListChildTasks(_ context.Context, parentTaskID string) ([]*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Task
	for _, t := range m.tasks {
		if t.ParentTaskID != nil && *t.ParentTaskID == parentTaskID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemStore) FlipLatest(_ context.Context, groupID, newLatestVersionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions {
		if v.GroupID == groupID {
			v.IsLatest = v.ID == newLatestVersionID
		}
	}
	return nil
}

func (m *MemStore) DeleteVersionRow(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.versions, id)
	return nil
}

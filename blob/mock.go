package blob

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kbengine.dev/common"
)

// MemBlob is an in-memory Blob for unit tests, grounded on
// storage/s3_mock.go's MockS3Client (plain maps, tracked call counts).
type MemBlob struct {
	mu      sync.Mutex
	objects map[string][]byte

	PutCalled    int
	GetCalled    int
	DeleteCalled int
}

func NewMemBlob() *MemBlob {
	return &MemBlob{objects: make(map[string][]byte)}
}

func objKey(bucket, key string) string { return bucket + "/" + key }

func (m *MemBlob) Put(_ context.Context, bucket, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalled++
	cp := make([]byte, len(data))
	copy(cp, data)
	m.objects[objKey(bucket, key)] = cp
	return common.Checksum(cp), nil
}

func (m *MemBlob) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalled++
	data, ok := m.objects[objKey(bucket, key)]
	if !ok {
		return nil, common.ErrNotFound
	}
	return data, nil
}

func (m *MemBlob) Delete(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalled++
	delete(m.objects, objKey(bucket, key))
	return nil
}

func (m *MemBlob) Presign(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://mock-blob.local/%s/%s?ttl=%s", bucket, key, ttl), nil
}

package blob

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "docs/abc123/raw", RawDocumentKey("abc123"))
	assert.Equal(t, "pages/v1/3/image.png", PageImageKey("v1", 3))
	assert.Equal(t, "pages/v1/3/ocr.json", PageOCRKey("v1", 3))
}

func TestMemBlobPutGetDelete(t *testing.T) {
	m := NewMemBlob()
	ctx := context.Background()

	etag, err := m.Put(ctx, "kb-bucket", "docs/abc/raw", []byte("hello"), "application/octet-stream")
	require.NoError(t, err)
	assert.NotEmpty(t, etag)
	assert.Equal(t, 1, m.PutCalled)

	data, err := m.Get(ctx, "kb-bucket", "docs/abc/raw")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, m.Delete(ctx, "kb-bucket", "docs/abc/raw"))
	_, err = m.Get(ctx, "kb-bucket", "docs/abc/raw")
	assert.Error(t, err)
}

func TestMemBlobGetMissingKeyReturnsNotFound(t *testing.T) {
	m := NewMemBlob()
	_, err := m.Get(context.Background(), "kb-bucket", "missing")
	assert.Error(t, err)
}

func TestMemBlobPresignReturnsURL(t *testing.T) {
	m := NewMemBlob()
	url, err := m.Presign(context.Background(), "kb-bucket", "docs/abc/raw", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "kb-bucket")
	assert.Contains(t, url, "docs/abc/raw")
}

func TestMemBlobDeleteIsIdempotent(t *testing.T) {
	m := NewMemBlob()
	ctx := context.Background()
	assert.NoError(t, m.Delete(ctx, "kb-bucket", "never-existed"))
	assert.NoError(t, m.Delete(ctx, "kb-bucket", "never-existed"))
}

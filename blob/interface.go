package blob

import (
	"context"
	"time"
)

// Blob is the interface components outside this package depend on, so the
// pipeline/render/catalog packages can be tested against an in-memory fake
// instead of a live S3-compatible endpoint.
type Blob interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
	Presign(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

var _ Blob = (*Store)(nil)

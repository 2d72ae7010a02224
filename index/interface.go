package index

import "context"

// Index is the interface components outside this package depend on, so
// the pipeline and search packages can be tested against an in-memory
// fake instead of a live OpenSearch cluster.
type Index interface {
	BulkIndex(ctx context.Context, docs []Document) error
	DeleteByVersion(ctx context.Context, versionID string) error
	Search(ctx context.Context, req SearchRequest) ([]Hit, error)
	RawQuery(ctx context.Context, method, path string, params map[string]string, body []byte) ([]byte, error)
}

var _ Index = (*Client)(nil)

package index

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
)

// MemIndex is an in-memory Index for unit tests, grounded on storage/
// s3_mock.go's mutex-guarded-map pattern. It implements enough of
// search.go's scoring model (cosine similarity + naive lexical matching)
// to exercise the search package's orchestration logic deterministically;
// it does not interpret the OpenSearch filter DSL structurally, since
// that structure is opaque to the fake — tests that need permission
// filtering exercise the permission package directly and pass the
// already-filtered document set to the fake's Seed method.
type MemIndex struct {
	mu   sync.Mutex
	docs map[string]Document

	BulkIndexCalled int
	DeleteCalled    int
	SearchCalled    int
	RawQueryCalls   []RawQueryCall
}

func NewMemIndex() *MemIndex {
	return &MemIndex{docs: make(map[string]Document)}
}

func (m *MemIndex) BulkIndex(_ context.Context, docs []Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BulkIndexCalled++
	for _, d := range docs {
		m.docs[d.ChunkID] = d
	}
	return nil
}

func (m *MemIndex) DeleteByVersion(_ context.Context, versionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalled++
	for id, d := range m.docs {
		if d.VersionID == versionID {
			delete(m.docs, id)
		}
	}
	return nil
}

func (m *MemIndex) Search(_ context.Context, req SearchRequest) ([]Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SearchCalled++

	vectorWeight := req.VectorWeight
	if vectorWeight == 0 {
		vectorWeight = defaultVectorWeight
	}
	bm25Weight := req.BM25Weight
	if bm25Weight == 0 {
		bm25Weight = defaultBM25Weight
	}

	var hits []Hit
	for id, d := range m.docs {
		var score float64
		var fragments []string
		if req.UseHybrid && req.QueryText != "" {
			if len(req.QueryVector) > 0 && len(d.ContentVector) == len(req.QueryVector) {
				score += vectorWeight * cosineSimilarity(req.QueryVector, d.ContentVector)
			}
			if containsFold(d.Text, req.QueryText) {
				score += bm25Weight
				fragments = append(fragments, highlightFragment(d.Text, req.QueryText))
			}
			if score == 0 {
				continue
			}
		}
		hits = append(hits, Hit{
			ChunkID:    id,
			Score:      score,
			Text:       d.Text,
			Highlight:  fragments,
			PageNumber: d.PageNumber,
			VersionID:  d.VersionID,
			Metadata:   d.Metadata,
			UpdatedAt:  d.UpdatedAt,
		})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if req.MinScore > 0 {
		filtered := hits[:0]
		for _, h := range hits {
			if h.Score >= req.MinScore {
				filtered = append(filtered, h)
			}
		}
		hits = filtered
	}

	if req.K > 0 && len(hits) > req.K {
		hits = hits[:req.K]
	}
	return hits, nil
}

// Seed inserts a document directly, bypassing BulkIndex call counting.
func (m *MemIndex) Seed(d Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[d.ChunkID] = d
}

// RawQuery fakes the escape hatch Client.RawQuery exposes for
// execute_raw_query: it doesn't interpret method/path, it just echoes a
// small JSON envelope back so toolsrv tests can assert the call was
// reached with the right arguments, the same "record the call, don't
// simulate the wire format" approach the rest of this fake uses.
func (m *MemIndex) RawQuery(_ context.Context, method, path string, params map[string]string, body []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RawQueryCalls = append(m.RawQueryCalls, RawQueryCall{Method: method, Path: path, Params: params, Body: body})
	return []byte(`{"acknowledged":true}`), nil
}

// RawQueryCall records one RawQuery invocation for test assertions.
type RawQueryCall struct {
	Method string
	Path   string
	Params map[string]string
	Body   []byte
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func highlightFragment(text, needle string) string {
	idx := strings.Index(strings.ToLower(text), strings.ToLower(needle))
	if idx < 0 {
		return text
	}
	end := idx + len(needle)
	return text[:idx] + "<em>" + text[idx:end] + "</em>" + text[end:]
}

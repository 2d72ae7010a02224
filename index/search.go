package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/opensearch-project/opensearch-go/v3/opensearchapi"
	"kbengine.dev/catalog"
	"kbengine.dev/common"
)

// SearchRequest is the query C10 composes and hands to C3 for execution.
// Filter holds pre-built bool-query filter clauses (the permission
// predicate emitted by C9, plus any caller filters); Index is decoupled
// from how those clauses are constructed.
type SearchRequest struct {
	QueryText    string
	QueryVector  []float32
	K            int
	Filter       []map[string]any
	MinScore     float64
	UseHybrid    bool
	VectorWeight float64
	BM25Weight   float64
}

// Hit is one ranked result, with highlight fragments already resolved.
type Hit struct {
	ChunkID    string
	Score      float64
	Text       string
	Highlight  []string
	PageNumber int
	VersionID  string
	Metadata   catalog.ChunkMetadata
	UpdatedAt  string
}

const (
	defaultVectorWeight = 0.7
	defaultBM25Weight   = 0.3
)

// Search executes req against the index and returns ranked hits, per spec
// section 4.3/4.10: boolean composition of filters, script_score cosine
// similarity on content_vector, multi_match lexical scoring, highlight
// fragments, and a min_score cutoff.
//
// An empty QueryText with UseHybrid degrades to a filter-only listing
// ordered by updated_at desc (spec section 4.10's guarantee).
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]Hit, error) {
	body, err := buildSearchBody(req)
	if err != nil {
		return nil, fmt.Errorf("build search body: %w", err)
	}

	resp, err := c.client.Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{c.indexName},
		Body:    bytes.NewReader(body),
	})
	if err != nil {
		return nil, common.Transient("execute search", err)
	}
	defer resp.Inspect().Response.Body.Close()

	raw, err := io.ReadAll(resp.Inspect().Response.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	return parseHits(raw)
}

func buildSearchBody(req SearchRequest) ([]byte, error) {
	vectorWeight := req.VectorWeight
	if vectorWeight == 0 {
		vectorWeight = defaultVectorWeight
	}
	bm25Weight := req.BM25Weight
	if bm25Weight == 0 {
		bm25Weight = defaultBM25Weight
	}

	filter := req.Filter
	if filter == nil {
		filter = []map[string]any{}
	}

	boolQuery := map[string]any{
		"filter": filter,
	}

	if req.UseHybrid && req.QueryText != "" {
		should := []map[string]any{}
		if len(req.QueryVector) > 0 {
			should = append(should, map[string]any{
				"script_score": map[string]any{
					"query": map[string]any{"match_all": map[string]any{}},
					"script": map[string]any{
						"source": "cosineSimilarity(params.query_vector, 'content_vector') * params.weight + 1.0",
						"params": map[string]any{
							"query_vector": req.QueryVector,
							"weight":       vectorWeight,
						},
					},
				},
			})
		}
		should = append(should, map[string]any{
			"multi_match": map[string]any{
				"query":     req.QueryText,
				"fields":    FieldWeights,
				"operator":  "or",
				"fuzziness": "AUTO",
				"boost":     bm25Weight,
			},
		})
		boolQuery["should"] = should
		boolQuery["minimum_should_match"] = 1
	}

	query := map[string]any{
		"query": map[string]any{"bool": boolQuery},
		"size":  req.K,
	}

	if !req.UseHybrid || req.QueryText == "" {
		query["sort"] = []map[string]any{{"updated_at": map[string]any{"order": "desc"}}}
	}

	if req.MinScore > 0 {
		query["min_score"] = req.MinScore
	}

	hlFields := map[string]any{}
	for _, f := range highlightFields() {
		hlFields[f] = map[string]any{}
	}
	query["highlight"] = map[string]any{"fields": hlFields}

	return json.Marshal(query)
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID        string          `json:"_id"`
			Score     float64         `json:"_score"`
			Source    Document        `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

func parseHits(raw []byte) ([]Hit, error) {
	var sr searchResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, fmt.Errorf("unmarshal search response: %w", err)
	}
	hits := make([]Hit, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		var fragments []string
		for _, frags := range h.Highlight {
			fragments = append(fragments, frags...)
		}
		hits = append(hits, Hit{
			ChunkID:    h.ID,
			Score:      h.Score,
			Text:       h.Source.Text,
			Highlight:  fragments,
			PageNumber: h.Source.PageNumber,
			VersionID:  h.Source.VersionID,
			Metadata:   h.Source.Metadata,
			UpdatedAt:  h.Source.UpdatedAt,
		})
	}
	return hits, nil
}

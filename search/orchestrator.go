// Package search implements the Search Orchestrator (C10): composes
// modelgateway's Embed, permission's Fragment, and index's Search into the
// single hybrid-query operation spec section 4.10 describes, then
// enriches each hit with matching OCR bounding boxes from the hit's page.
//
// Grounded on api/jwt.go's request-struct / service-call / response-struct
// handler shape (TokenRequest -> h.JWT.GenerateToken -> TokenResponse),
// reused here as a plain Go method rather than an echo.HandlerFunc since
// the REST front door is out of this module's scope; cmd/kbd wires this
// package, and toolsrv's hybrid_search handler calls Search.
package search

import (
	"context"
	"sort"
	"strings"

	"kbengine.dev/auth"
	"kbengine.dev/catalog"
	"kbengine.dev/index"
	"kbengine.dev/modelgateway"
	"kbengine.dev/permission"
)

// Request is the input spec section 4.10 names: {query_text, k, filters,
// min_score, use_hybrid, user}.
type Request struct {
	QueryText string
	K         int
	Filters   []map[string]any
	MinScore  float64
	UseHybrid bool
	User      *auth.User
}

// BBoxMatch is one OCR-detected region on the hit's page whose text
// shares at least one token with the query (spec section 4.10 step 6).
type BBoxMatch struct {
	Text       string
	Confidence float64
	BBox       [4]float64
}

// Result is one ranked, permission-admitted, bbox-enriched hit (spec
// section 6's `results[]` element schema).
type Result struct {
	ChunkID       string
	Text          string
	Highlighted   []string
	Score         float64
	MatchedBBoxes []BBoxMatch
	Metadata      catalog.ChunkMetadata
	PageNumber    int
	VersionID     string
	UpdatedAt     string
}

// Orchestrator implements C10 against C2 (page lookups for bbox
// enrichment), C3 (index.Index), and C4 (modelgateway.Gateway).
type Orchestrator struct {
	store   catalog.Store
	index   index.Index
	gateway modelgateway.Gateway
}

func New(store catalog.Store, idx index.Index, gw modelgateway.Gateway) *Orchestrator {
	return &Orchestrator{store: store, index: idx, gateway: gw}
}

// Search runs spec section 4.10's algorithm end to end: embed the query
// text when hybrid search is requested, compose the permission fragment,
// execute against C3, then enrich and tie-break the results.
func (o *Orchestrator) Search(ctx context.Context, req Request) ([]Result, error) {
	var queryVector []float32
	if req.UseHybrid && req.QueryText != "" {
		v, err := o.gateway.Embed(ctx, req.QueryText)
		if err != nil {
			return nil, err
		}
		queryVector = v
	}

	filter := append([]map[string]any{permission.Fragment(req.User)}, req.Filters...)

	hits, err := o.index.Search(ctx, index.SearchRequest{
		QueryText:   req.QueryText,
		QueryVector: queryVector,
		K:           req.K,
		Filter:      filter,
		MinScore:    req.MinScore,
		UseHybrid:   req.UseHybrid,
	})
	if err != nil {
		return nil, err
	}

	// Re-check P(U,R) on every hit so a caller never sees a chunk it may
	// not read, even from an index that did not apply the filter.
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		if !permission.Check(req.User, catalog.OwnerRecord{
			OwnerID:         h.Metadata.OwnerID,
			OrgID:           h.Metadata.OrgID,
			Visibility:      h.Metadata.Visibility,
			SharedUserIDs:   h.Metadata.SharedUserIDs,
			SharedRoleCodes: h.Metadata.SharedRoleCodes,
		}) {
			continue
		}
		results = append(results, Result{
			ChunkID:       h.ChunkID,
			Text:          h.Text,
			Highlighted:   h.Highlight,
			Score:         h.Score,
			MatchedBBoxes: o.matchBBoxes(ctx, h, req.QueryText),
			Metadata:      h.Metadata,
			PageNumber:    h.PageNumber,
			VersionID:     h.VersionID,
			UpdatedAt:     h.UpdatedAt,
		})
	}

	sortResults(results)
	return results, nil
}

// matchBBoxes tokenizes queryText and intersects it against the hit's
// page's OCR bboxes (spec section 4.10 step 6), returning only bboxes
// sharing at least one token, sorted by confidence descending. A lookup
// failure (e.g. the page row was since deleted) degrades to no matches
// rather than failing the whole search.
func (o *Orchestrator) matchBBoxes(ctx context.Context, h index.Hit, queryText string) []BBoxMatch {
	if queryText == "" || h.PageNumber == 0 {
		return nil
	}
	page, err := o.store.GetPage(ctx, h.VersionID, h.PageNumber)
	if err != nil || len(page.Bboxes) == 0 {
		return nil
	}

	queryTokens := tokenize(queryText)
	var matches []BBoxMatch
	for _, b := range page.Bboxes {
		if sharesToken(tokenize(b.Text), queryTokens) {
			matches = append(matches, BBoxMatch{
				Text:       b.Text,
				Confidence: b.Confidence,
				BBox:       [4]float64{b.X1, b.Y1, b.X2, b.Y2},
			})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Confidence > matches[j].Confidence })
	return matches
}

func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(s)) {
		tokens[f] = struct{}{}
	}
	return tokens
}

func sharesToken(a, b map[string]struct{}) bool {
	for t := range a {
		if _, ok := b[t]; ok {
			return true
		}
	}
	return false
}

// sortResults applies spec section 4.10 step 7's tie-break: equal scores
// break by newer updated_at, then smaller page_number. index.Index is
// already expected to return results ordered by score; this only
// resolves ties the index's own sort may leave ambiguous.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].UpdatedAt != results[j].UpdatedAt {
			return results[i].UpdatedAt > results[j].UpdatedAt
		}
		return results[i].PageNumber < results[j].PageNumber
	})
}

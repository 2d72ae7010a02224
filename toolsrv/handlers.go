package toolsrv

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"kbengine.dev/common"
	"kbengine.dev/search"
)

// HybridSearchRequest is the hybrid_search tool's call payload (spec
// section 6: "hybrid_search(query, index?, size?, min_score?)").
type HybridSearchRequest struct {
	Query    string  `json:"query" validate:"required"`
	Index    string  `json:"index,omitempty"`
	Size     int     `json:"size,omitempty"`
	MinScore float64 `json:"min_score,omitempty"`
}

// BBoxResponse is one matched_bboxes[] element (spec section 6 result
// schema).
type BBoxResponse struct {
	Text       string     `json:"text"`
	Confidence float64    `json:"confidence"`
	BBox       [4]float64 `json:"bbox"`
}

// ResultResponse is one results[] element, matching spec section 6's
// schema: {id, text, highlighted?, score, matched_bboxes, metadata}.
type ResultResponse struct {
	ID            string         `json:"id"`
	Text          string         `json:"text"`
	Highlighted   []string       `json:"highlighted,omitempty"`
	Score         float64        `json:"score"`
	MatchedBBoxes []BBoxResponse `json:"matched_bboxes"`
	Metadata      ResultMetadata `json:"metadata"`
}

// ResultMetadata is the metadata object spec section 6 names.
type ResultMetadata struct {
	DocumentID      string `json:"document_id"`
	Filename        string `json:"filename"`
	Filepath        string `json:"filepath"`
	PageNumber      int    `json:"page_number"`
	OriginalFileURL string `json:"original_file_url"`
	PageImageURL    string `json:"page_image_url"`
	Checksum        string `json:"checksum"`
}

// HybridSearchResponse wraps the tool's results list.
type HybridSearchResponse struct {
	Results []ResultResponse `json:"results"`
}

// hybridSearch implements the hybrid_search tool: a thin wrapper over
// search.Orchestrator.Search using the caller's own validated identity as
// the permission context (spec section 9 design note 1: one orchestrator,
// no separate tool-protocol weight table).
func (s *Server) hybridSearch(c echo.Context) error {
	claims, ok := GetUser(c)
	if !ok {
		return writeError(c, common.PermissionErr("missing authenticated user", nil))
	}

	var req HybridSearchRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, common.PermanentInput("invalid request body", err))
	}
	if req.Query == "" {
		return writeError(c, common.PermanentInput("query is required", nil))
	}
	size := req.Size
	if size <= 0 {
		size = 10
	}

	results, err := s.search.Search(c.Request().Context(), search.Request{
		QueryText: req.Query,
		K:         size,
		MinScore:  req.MinScore,
		UseHybrid: true,
		User:      claims.AsUser(),
	})
	if err != nil {
		return writeError(c, err)
	}

	resp := HybridSearchResponse{Results: make([]ResultResponse, len(results))}
	for i, r := range results {
		bboxes := make([]BBoxResponse, len(r.MatchedBBoxes))
		for j, b := range r.MatchedBBoxes {
			bboxes[j] = BBoxResponse{Text: b.Text, Confidence: b.Confidence, BBox: b.BBox}
		}
		resp.Results[i] = ResultResponse{
			ID:            r.ChunkID,
			Text:          r.Text,
			Highlighted:   r.Highlighted,
			Score:         r.Score,
			MatchedBBoxes: bboxes,
			Metadata: ResultMetadata{
				DocumentID:      r.Metadata.DocumentID,
				Filename:        r.Metadata.Filename,
				Filepath:        r.Metadata.Filepath,
				PageNumber:      r.PageNumber,
				OriginalFileURL: r.Metadata.OriginalFileURL,
				PageImageURL:    r.Metadata.PageImageURL,
				Checksum:        r.Metadata.Checksum,
			},
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// ExecuteRawQueryRequest is the execute_raw_query tool's call payload
// (spec section 6: "execute_raw_query(method, path, params?, body?)").
type ExecuteRawQueryRequest struct {
	Method string            `json:"method" validate:"required"`
	Path   string            `json:"path" validate:"required"`
	Params map[string]string `json:"params,omitempty"`
	Body   json.RawMessage   `json:"body,omitempty"`
}

// ExecuteRawQueryResponse wraps the raw C3 response body.
type ExecuteRawQueryResponse struct {
	Result json.RawMessage `json:"result"`
}

// executeRawQuery implements the execute_raw_query tool: a thin
// authenticated passthrough to C3 gated by the caller being a superuser
// (spec section 6). Every other caller gets a permission error, never a
// partial or sandboxed execution.
func (s *Server) executeRawQuery(c echo.Context) error {
	claims, ok := GetUser(c)
	if !ok {
		return writeError(c, common.PermissionErr("missing authenticated user", nil))
	}
	if !claims.IsSuperuser {
		return writeError(c, common.PermissionErr("execute_raw_query requires superuser", nil))
	}

	var req ExecuteRawQueryRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, common.PermanentInput("invalid request body", err))
	}
	if req.Method == "" || req.Path == "" {
		return writeError(c, common.PermanentInput("method and path are required", nil))
	}

	raw, err := s.index.RawQuery(c.Request().Context(), req.Method, req.Path, req.Params, req.Body)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ExecuteRawQueryResponse{Result: raw})
}

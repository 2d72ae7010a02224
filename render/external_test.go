package render

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"kbengine.dev/catalog"
)

func TestHTTPConverterConvertToPagesReturnsRasterizedPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req convertRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "pdf", req.SourceFormat)
		json.NewEncoder(w).Encode(convertResponse{Pages: [][]byte{[]byte("page-1"), []byte("page-2")}})
	}))
	defer server.Close()

	c := &HTTPConverter{Endpoint: server.URL}
	pages, err := c.ConvertToPages(context.Background(), []byte("doc-bytes"), "pdf")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "page-1", string(pages[0]))
}

func TestHTTPConverterReturnsErrorOnNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := &HTTPConverter{Endpoint: server.URL}
	_, err := c.ConvertToPages(context.Background(), []byte("doc-bytes"), "pdf")
	assert.Error(t, err)
}

func TestHTTPOCREngineRecognizeReturnsBBoxRegions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req recognizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []byte("image-bytes"), req.Image)
		json.NewEncoder(w).Encode(recognizeResponse{Regions: []catalog.BBoxEntry{
			{Text: "hello", Confidence: 0.95, X1: 0, Y1: 0, X2: 50, Y2: 10},
		}})
	}))
	defer server.Close()

	o := &HTTPOCREngine{Endpoint: server.URL}
	regions, err := o.Recognize(context.Background(), []byte("image-bytes"))
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, "hello", regions[0].Text)
}

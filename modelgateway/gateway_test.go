package modelgateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testClient(url string) *Client {
	cfg := DefaultConfig()
	cfg.EmbedURL = url
	cfg.VLMURL = url
	cfg.CallTimeout = 2 * time.Second
	cfg.InitialBackoff = time.Millisecond
	return New(cfg, logrus.NewEntry(logrus.New()))
}

func TestEmbedBatchReturnsVectors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0.1, 0.2}, {0.3, 0.4}}})
	}))
	defer server.Close()

	c := testClient(server.URL)
	vectors, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if vectors[0][0] != 0.1 {
		t.Errorf("expected first vector[0]=0.1, got %v", vectors[0][0])
	}
}

func TestEmbedRetriesOn500ThenSucceeds(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1}}})
	}))
	defer server.Close()

	c := testClient(server.URL)
	v, err := c.Embed(context.Background(), "x")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
	if len(v) != 1 || v[0] != 1 {
		t.Errorf("unexpected vector: %v", v)
	}
}

func TestEmbedDoesNotRetryOn400(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := testClient(server.URL)
	_, err := c.Embed(context.Background(), "x")
	if err == nil {
		t.Fatal("expected an error for a 400 response")
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt for a permanent 4xx error, got %d", attempts)
	}
	me, ok := err.(*ModelError)
	if !ok {
		t.Fatalf("expected *ModelError, got %T", err)
	}
	if me.Kind != KindBadResponse {
		t.Errorf("expected KindBadResponse, got %s", me.Kind)
	}
}

func TestEmbedClassifiesRateLimitResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.EmbedURL = server.URL
	cfg.MaxAttempts = 1
	cfg.InitialBackoff = time.Millisecond
	c := New(cfg, logrus.NewEntry(logrus.New()))

	_, err := c.Embed(context.Background(), "x")
	if err == nil {
		t.Fatal("expected an error")
	}
	me, ok := err.(*ModelError)
	if !ok {
		t.Fatalf("expected *ModelError, got %T", err)
	}
	if me.Kind != KindRateLimited {
		t.Errorf("expected KindRateLimited, got %s", me.Kind)
	}
}

func TestVLMCorrectReturnsCorrectedText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req vlmRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(vlmResponse{CorrectedText: "corrected: " + req.OCRText})
	}))
	defer server.Close()

	c := testClient(server.URL)
	out, err := c.VLMCorrect(context.Background(), []byte("fake-image"), "raw ocr")
	if err != nil {
		t.Fatalf("VLMCorrect failed: %v", err)
	}
	if out != "corrected: raw ocr" {
		t.Errorf("unexpected corrected text: %s", out)
	}
}

func TestMemGatewayDefaultsToZeroVectorAndEcho(t *testing.T) {
	m := NewMemGateway(4)
	v, err := m.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(v) != 4 {
		t.Fatalf("expected dim 4, got %d", len(v))
	}

	text, err := m.VLMCorrect(context.Background(), nil, "raw")
	if err != nil {
		t.Fatalf("VLMCorrect failed: %v", err)
	}
	if text != "raw" {
		t.Errorf("expected echo, got %s", text)
	}
	if m.EmbedCalls != 1 || m.VLMCalls != 1 {
		t.Errorf("expected call counters to increment, got embed=%d vlm=%d", m.EmbedCalls, m.VLMCalls)
	}
}

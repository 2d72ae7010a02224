package modelgateway

import (
	"context"
	"sync"
)

// MemGateway is an in-memory Gateway for unit tests, grounded on the same
// mutex-guarded-fake pattern as blob.MemBlob/index.MemIndex. EmbedFunc/
// VLMFunc let a test inject a deterministic or failing model response;
// when nil, Embed returns a fixed-dimension zero vector and VLMCorrect
// echoes the OCR text unchanged.
type MemGateway struct {
	mu sync.Mutex

	Dim      int
	EmbedFunc func(text string) ([]float32, error)
	VLMFunc   func(imageBytes []byte, ocrText string) (string, error)

	EmbedCalls int
	VLMCalls   int
}

func NewMemGateway(dim int) *MemGateway {
	return &MemGateway{Dim: dim}
}

func (m *MemGateway) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.EmbedCalls++
	m.mu.Unlock()
	if m.EmbedFunc != nil {
		return m.EmbedFunc(text)
	}
	return make([]float32, m.Dim), nil
}

func (m *MemGateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (m *MemGateway) VLMCorrect(_ context.Context, imageBytes []byte, ocrText string) (string, error) {
	m.mu.Lock()
	m.VLMCalls++
	m.mu.Unlock()
	if m.VLMFunc != nil {
		return m.VLMFunc(imageBytes, ocrText)
	}
	return ocrText, nil
}

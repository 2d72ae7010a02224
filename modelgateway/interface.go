package modelgateway

import "context"

// Gateway is the interface the pipeline's Embed/OCR stages depend on, so
// they can be tested against an in-memory fake instead of live model
// endpoints.
type Gateway interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	VLMCorrect(ctx context.Context, imageBytes []byte, ocrText string) (string, error)
}

var _ Gateway = (*Client)(nil)

// Package modelgateway implements the Model Gateway (C4): typed calls to
// the embedding and vision-language model endpoints with per-call
// deadlines and bounded retry, grounded on the teacher's http/client.go
// retry loop and transport/http.go pooled-client wrapper, generalized
// from eve's generic HTTP-operation runner into three typed model calls.
package modelgateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

// Kind classifies a model-call failure so the pipeline's attempt/retry
// policy (spec section 7) can decide without string matching.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindTransport   Kind = "transport"
	KindBadResponse Kind = "bad_response"
	KindRateLimited Kind = "rate_limited"
)

// ModelError wraps a model-call failure with its Kind.
type ModelError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ModelError) Unwrap() error { return e.Err }

func newModelErr(kind Kind, msg string, err error) *ModelError {
	return &ModelError{Kind: kind, Message: msg, Err: err}
}

// Config configures a Client.
type Config struct {
	EmbedURL       string
	VLMURL         string
	CallTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

// DefaultConfig mirrors the http.Request defaults the teacher's HTTP
// helper applies (30s timeout, exponential backoff), scaled to the
// per-call deadlines spec section 4.12/7 names.
func DefaultConfig() Config {
	return Config{
		CallTimeout:    30 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
	}
}

// sharedHTTPClient pools connections, grounded on transport/http.go's
// HTTPTransport wrapping a single *http.Transport with tuned idle-conn
// limits.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	},
}

// Client calls the embed and VLM endpoints.
type Client struct {
	cfg  Config
	http *http.Client
	log  *logrus.Entry
}

func New(cfg Config, log *logrus.Entry) *Client {
	return &Client{cfg: cfg, http: sharedHTTPClient, log: log}
}

type embedRequest struct {
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed requests a single embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, newModelErr(KindBadResponse, "embed returned no vectors", nil)
	}
	return out[0], nil
}

// EmbedBatch requests embedding vectors for a batch of texts in one call,
// as the Embed stage does per spec section 4.7 step 5 (batched embed
// calls, one suspension checkpoint after each batch).
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	result, err := backoff.Retry(ctx, func() (embedResponse, error) {
		return postJSON(ctx, c, c.cfg.EmbedURL, body, func(respBody []byte) (embedResponse, error) {
			var out embedResponse
			if err := json.Unmarshal(respBody, &out); err != nil {
				return embedResponse{}, backoff.Permanent(newModelErr(KindBadResponse, "decode embed response", err))
			}
			return out, nil
		})
	}, backoff.WithMaxTries(uint(c.cfg.MaxAttempts)), backoff.WithBackOff(c.backoffPolicy()))
	if err != nil {
		return nil, classifyRetryErr(err)
	}
	return result.Embeddings, nil
}

type vlmRequest struct {
	ImageBase64 string `json:"image_base64"`
	OCRText     string `json:"ocr_text"`
}

type vlmResponse struct {
	CorrectedText string `json:"corrected_text"`
}

// VLMCorrect requests a VLM-assisted correction of OCR output for one
// page image, per spec section 4.5/4.7's fast/deep OCR modes.
func (c *Client) VLMCorrect(ctx context.Context, imageBytes []byte, ocrText string) (string, error) {
	body, err := json.Marshal(vlmRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(imageBytes),
		OCRText:     ocrText,
	})
	if err != nil {
		return "", fmt.Errorf("marshal vlm request: %w", err)
	}

	result, err := backoff.Retry(ctx, func() (vlmResponse, error) {
		return postJSON(ctx, c, c.cfg.VLMURL, body, func(respBody []byte) (vlmResponse, error) {
			var out vlmResponse
			if err := json.Unmarshal(respBody, &out); err != nil {
				return vlmResponse{}, backoff.Permanent(newModelErr(KindBadResponse, "decode vlm response", err))
			}
			return out, nil
		})
	}, backoff.WithMaxTries(uint(c.cfg.MaxAttempts)), backoff.WithBackOff(c.backoffPolicy()))
	if err != nil {
		return "", classifyRetryErr(err)
	}
	return result.CorrectedText, nil
}

func (c *Client) backoffPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	return b
}

// postJSON performs one request attempt with the configured per-call
// deadline, grounded on http/client.go's executeOnce: 4xx responses are
// not retried (wrapped in backoff.Permanent), 5xx/timeouts/network errors
// are retried. A free function, not a method, since Go methods cannot
// carry their own type parameters.
func postJSON[T any](ctx context.Context, c *Client, url string, body []byte, decode func([]byte) (T, error)) (T, error) {
	var zero T
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return zero, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if callCtx.Err() != nil {
			return zero, newModelErr(KindTimeout, "model call deadline exceeded", err)
		}
		return zero, newModelErr(KindTransport, "model call transport error", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, newModelErr(KindTransport, "read model response body", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return zero, newModelErr(KindRateLimited, "model endpoint rate limited the call", nil)
	case resp.StatusCode >= 500:
		return zero, newModelErr(KindTransport, fmt.Sprintf("model endpoint returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		return zero, backoff.Permanent(newModelErr(KindBadResponse, fmt.Sprintf("model endpoint returned %d", resp.StatusCode), nil))
	}

	return decode(respBody)
}

// classifyRetryErr unwraps backoff's permanent-error marker so callers see
// the original *ModelError.
func classifyRetryErr(err error) error {
	var perr *backoff.PermanentError
	if errors.As(err, &perr) {
		return perr.Err
	}
	return err
}

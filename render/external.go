package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"kbengine.dev/catalog"
)

// HTTPConverter and HTTPOCREngine are the real-world Converter/OCREngine
// implementations cmd/kbd wires: thin HTTP clients against whatever
// headless-conversion and OCR services an operator points them at (a
// LibreOffice/unoconv conversion service, a Tesseract/PaddleOCR
// recognition service). Grounded on modelgateway/gateway.go's
// Client — a single pooled *http.Client posting bytes and decoding a
// JSON response — but deliberately without modelgateway's typed
// Kind/ModelError taxonomy and bounded-retry policy, since that policy
// is spec section 7's attempt/retry design for *model* calls
// specifically; render's external calls are a single best-effort
// request per page, retried at the task-attempt level like every other
// pipeline stage (spec section 4.7).
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	},
}

// HTTPConverter implements Converter against a configured endpoint that
// accepts {data, source_format} and returns {pages: [][]byte}, each page
// a base64 string as encoding/json encodes []byte.
type HTTPConverter struct {
	Endpoint string
	Timeout  time.Duration
}

type convertRequest struct {
	Data         []byte `json:"data"`
	SourceFormat string `json:"source_format"`
}

type convertResponse struct {
	Pages [][]byte `json:"pages"`
}

func (c *HTTPConverter) ConvertToPages(ctx context.Context, data []byte, sourceFormat string) ([][]byte, error) {
	body, err := json.Marshal(convertRequest{Data: data, SourceFormat: sourceFormat})
	if err != nil {
		return nil, fmt.Errorf("render: marshal convert request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("render: build convert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render: convert request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("render: convert service returned status %d", resp.StatusCode)
	}

	var out convertResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("render: decode convert response: %w", err)
	}
	return out.Pages, nil
}

func (c *HTTPConverter) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 60 * time.Second
}

// HTTPOCREngine implements OCREngine against a configured endpoint that
// accepts {image} and returns {regions: [...]} shaped like
// catalog.BBoxEntry.
type HTTPOCREngine struct {
	Endpoint string
	Timeout  time.Duration
}

type recognizeRequest struct {
	Image []byte `json:"image"`
}

type recognizeResponse struct {
	Regions []catalog.BBoxEntry `json:"regions"`
}

func (o *HTTPOCREngine) Recognize(ctx context.Context, imageBytes []byte) ([]catalog.BBoxEntry, error) {
	body, err := json.Marshal(recognizeRequest{Image: imageBytes})
	if err != nil {
		return nil, fmt.Errorf("render: marshal recognize request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("render: build recognize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render: recognize request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("render: ocr service returned status %d", resp.StatusCode)
	}

	var out recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("render: decode recognize response: %w", err)
	}
	return out.Regions, nil
}

func (o *HTTPOCREngine) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return 60 * time.Second
}

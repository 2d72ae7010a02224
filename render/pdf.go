package render

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// pdfRenderer implements the pdf variant: per-page images come from the
// Converter capability (rasterization), per-page native text comes
// directly from the PDF's own text layer via ledongthuc/pdf, preferred
// over OCR text per spec section 4.5 when present. OCR still runs
// downstream to obtain bboxes for highlighting.
type pdfRenderer struct {
	converter Converter
}

func (r *pdfRenderer) RenderPages(ctx context.Context, data []byte) (<-chan PageResult, error) {
	if r.converter == nil {
		return nil, fmt.Errorf("render: pdf variant requires a Converter for page rasterization")
	}

	images, err := r.converter.ConvertToPages(ctx, data, "pdf")
	if err != nil {
		return nil, fmt.Errorf("rasterize pdf pages: %w", err)
	}

	nativeText, err := extractNativeText(data, len(images))
	if err != nil {
		nativeText = make([]string, len(images))
	}

	out := make(chan PageResult, len(images))
	go func() {
		defer close(out)
		for i, img := range images {
			page := Page{PageNumber: i + 1, ImageBytes: img}
			if i < len(nativeText) {
				page.NativeText = nativeText[i]
			}
			select {
			case out <- PageResult{Page: page}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// extractNativeText reads the PDF's own text layer, one string per page,
// using ledongthuc/pdf. expectedPages bounds the result so a text-layer
// page count mismatch with the rasterized image count doesn't panic the
// caller; extra rasterized pages simply get an empty native text string
// and fall back to OCR for that page.
func extractNativeText(data []byte, expectedPages int) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf for text extraction: %w", err)
	}

	numPages := reader.NumPage()
	out := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			out = append(out, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			out = append(out, "")
			continue
		}
		out = append(out, text)
	}

	if expectedPages > 0 && len(out) > expectedPages {
		out = out[:expectedPages]
	}
	return out, nil
}

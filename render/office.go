package render

import (
	"context"
	"fmt"
)

// officeRenderer implements the word/presentation/spreadsheet variants:
// spec section 4.5 routes these "through a headless converter to a
// paginated intermediate, then use the pdf path." Here that means asking
// Converter to rasterize pages directly; native text is left empty for
// these formats (office documents are always OCR'd for both text and
// bboxes in this implementation, keeping the variant's contract simple).
type officeRenderer struct {
	converter Converter
}

func (r *officeRenderer) RenderPages(ctx context.Context, data []byte) (<-chan PageResult, error) {
	if r.converter == nil {
		return nil, fmt.Errorf("render: office variants require a Converter")
	}

	images, err := r.converter.ConvertToPages(ctx, data, "office")
	if err != nil {
		return nil, fmt.Errorf("convert office document to pages: %w", err)
	}

	out := make(chan PageResult, len(images))
	go func() {
		defer close(out)
		for i, img := range images {
			select {
			case out <- PageResult{Page: Page{PageNumber: i + 1, ImageBytes: img}}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

package render

import "context"

// textRenderer implements the plain-text/markdown variant: a single page
// carrying the raw content as native text. No image exists, so OCR is
// never invoked for this variant (the Per-Page OCR stage skips a page
// with no image_key, per spec section 4.7's empty-page edge case).
type textRenderer struct{}

func (r *textRenderer) RenderPages(ctx context.Context, data []byte) (<-chan PageResult, error) {
	out := make(chan PageResult, 1)
	go func() {
		defer close(out)
		select {
		case out <- PageResult{Page: Page{PageNumber: 1, NativeText: string(data)}}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

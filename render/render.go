// Package render implements the Render/OCR Capabilities (C5): per-format
// page rendering plus the two external capabilities (headless conversion,
// OCR) the pipeline's Render and Per-Page OCR stages drive (spec section
// 4.5). File-type variants are grounded on the teacher's own narrow media
// helpers (media/images.go for the image variant, archive/unzip.go for
// the archive variant); there is no teacher or pack grounding for PDF/
// office rasterization itself since that requires an external rendering
// engine, so the Converter and OCREngine capabilities are declared as
// narrow interfaces only, matching spec section 4.5's own framing of OCR
// as "external capability".
package render

import (
	"context"
	"fmt"

	"kbengine.dev/catalog"
)

// Page is one rendered page: an image plus whatever native text/bboxes
// the source format already carried (spec section 4.5).
type Page struct {
	PageNumber   int
	ImageBytes   []byte
	NativeText   string
	NativeBBoxes []catalog.BBoxEntry
}

// PageResult is one element of the lazy page sequence RenderPages
// produces; Err is set and the sequence ends if rendering fails partway.
type PageResult struct {
	Page Page
	Err  error
}

// PageRenderer renders a document's bytes into an ordered, finite,
// not-restartable sequence of pages (spec section 4.5's render_pages
// contract). Each call returns a fresh channel; the caller ranges over it
// until it closes.
type PageRenderer interface {
	RenderPages(ctx context.Context, data []byte) (<-chan PageResult, error)
}

// OCREngine is the external OCR capability: given a page image, return
// per-region text, bounding box, and confidence (spec section 4.5).
// A Pipeline is wired with a single OCREngine, used for every upload;
// there is no per-upload choice of engine.
type OCREngine interface {
	Recognize(ctx context.Context, imageBytes []byte) ([]catalog.BBoxEntry, error)
}

// Converter is the external headless-conversion capability word/
// presentation/spreadsheet variants route through to reach a paginated
// intermediate (spec section 4.5), and that the pdf variant also uses to
// rasterize each page to an image. sourceFormat is "pdf" for the pdf
// variant and "office" for every word/presentation/spreadsheet variant.
type Converter interface {
	ConvertToPages(ctx context.Context, data []byte, sourceFormat string) ([][]byte, error)
}

// Registry resolves a normalized file-type key to the PageRenderer that
// handles it.
type Registry struct {
	renderers map[string]PageRenderer
}

// NewRegistry wires every format variant spec section 4.5 names, except
// archives, which are expanded separately via ExpandArchive (they are
// not a page sequence — they fan out into child ingest tasks).
func NewRegistry(converter Converter, ocr OCREngine) *Registry {
	r := &Registry{renderers: make(map[string]PageRenderer)}

	pdf := &pdfRenderer{converter: converter}
	r.renderers["pdf"] = pdf

	office := &officeRenderer{converter: converter}
	r.renderers["docx"] = office
	r.renderers["doc"] = office
	r.renderers["pptx"] = office
	r.renderers["ppt"] = office
	r.renderers["xlsx"] = office
	r.renderers["xls"] = office

	text := &textRenderer{}
	r.renderers["txt"] = text
	r.renderers["md"] = text

	img := &imageRenderer{}
	r.renderers["png"] = img
	r.renderers["jpg"] = img
	r.renderers["jpeg"] = img

	return r
}

// Get returns the PageRenderer registered for fileType, or an error if
// the format is unsupported (spec section 4.5's per-format capability
// table; archives are handled separately, see IsArchive).
func (r *Registry) Get(fileType string) (PageRenderer, error) {
	renderer, ok := r.renderers[fileType]
	if !ok {
		return nil, fmt.Errorf("render: unsupported file type %q", fileType)
	}
	return renderer, nil
}

// IsArchive reports whether fileType should be routed to ExpandArchive
// instead of a PageRenderer.
func IsArchive(fileType string) bool {
	switch fileType {
	case "zip":
		return true
	default:
		return false
	}
}

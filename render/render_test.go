package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainPages(t *testing.T, ch <-chan PageResult) []Page {
	t.Helper()
	var pages []Page
	for r := range ch {
		require.NoError(t, r.Err)
		pages = append(pages, r.Page)
	}
	return pages
}

func TestRegistryGetUnsupportedFormat(t *testing.T) {
	reg := NewRegistry(&MemConverter{}, &MemOCR{})
	_, err := reg.Get("exe")
	assert.Error(t, err)
}

func TestIsArchive(t *testing.T) {
	assert.True(t, IsArchive("zip"))
	assert.False(t, IsArchive("pdf"))
}

func TestTextRendererSinglePageNativeText(t *testing.T) {
	reg := NewRegistry(&MemConverter{}, &MemOCR{})
	renderer, err := reg.Get("txt")
	require.NoError(t, err)

	ch, err := renderer.RenderPages(context.Background(), []byte("hello world"))
	require.NoError(t, err)

	pages := drainPages(t, ch)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].PageNumber)
	assert.Equal(t, "hello world", pages[0].NativeText)
	assert.Nil(t, pages[0].ImageBytes)
}

func TestOfficeRendererRequiresConverter(t *testing.T) {
	r := &officeRenderer{}
	_, err := r.RenderPages(context.Background(), []byte("doc"))
	assert.Error(t, err)
}

func TestOfficeRendererProducesOnePagePerConvertedImage(t *testing.T) {
	conv := &MemConverter{PagesPerDoc: 3}
	r := &officeRenderer{converter: conv}

	ch, err := r.RenderPages(context.Background(), []byte("doc-bytes"))
	require.NoError(t, err)

	pages := drainPages(t, ch)
	require.Len(t, pages, 3)
	assert.Equal(t, 1, conv.CallCount)
	for i, p := range pages {
		assert.Equal(t, i+1, p.PageNumber)
		assert.NotEmpty(t, p.ImageBytes)
	}
}

func TestPdfRendererRequiresConverter(t *testing.T) {
	r := &pdfRenderer{}
	_, err := r.RenderPages(context.Background(), []byte("pdf"))
	assert.Error(t, err)
}

func TestExpandArchiveExtractsRegularFilesOnly(t *testing.T) {
	var buf bytes.Buffer
	zw := newTestZip(t, &buf, map[string]string{
		"a.txt":        "file a",
		"sub/b.txt":    "file b",
	})
	_ = zw

	members, err := ExpandArchive(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, members, 2)

	names := map[string]string{}
	for _, m := range members {
		names[m.Name] = string(m.Data)
	}
	assert.Equal(t, "file a", names["a.txt"])
	assert.Equal(t, "file b", names["sub/b.txt"])
}

func TestExpandArchiveRejectsZipSlip(t *testing.T) {
	var buf bytes.Buffer
	newTestZip(t, &buf, map[string]string{
		"../../etc/passwd": "pwned",
	})

	_, err := ExpandArchive(buf.Bytes())
	assert.Error(t, err)
}

func TestImageRendererNormalizesAndEmitsSinglePage(t *testing.T) {
	data := pngFixture(t, 4, 4)
	r := &imageRenderer{}

	ch, err := r.RenderPages(context.Background(), data)
	require.NoError(t, err)

	pages := drainPages(t, ch)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].PageNumber)
	assert.NotEmpty(t, pages[0].ImageBytes)
}

func pngFixture(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/nfnt/resize"
	"github.com/rwcarlsen/goexif/exif"
)

// imageRenderer implements the image variant: a single-page document
// whose page image is the (EXIF-orientation-normalized) source image
// itself. Grounded on media/images.go's decode/EXIF/resize pipeline,
// narrowed from that package's file-path-based rescale helpers to an
// in-memory bytes-in/bytes-out single page emitter.
type imageRenderer struct{}

func (r *imageRenderer) RenderPages(ctx context.Context, data []byte) (<-chan PageResult, error) {
	out := make(chan PageResult, 1)
	go func() {
		defer close(out)

		normalized, err := normalizeOrientation(data)
		if err != nil {
			select {
			case out <- PageResult{Err: fmt.Errorf("normalize image orientation: %w", err)}:
			case <-ctx.Done():
			}
			return
		}

		select {
		case out <- PageResult{Page: Page{PageNumber: 1, ImageBytes: normalized}}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// normalizeOrientation decodes an image, rotates it per its EXIF
// orientation tag if one is present, and re-encodes it in its original
// format. Images without EXIF data (PNG, or JPEG shot without camera
// metadata) pass through unrotated, grounded on media/images.go's
// fallback-to-dimensions-only behavior when EXIF decoding fails.
func normalizeOrientation(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	orientation := 1
	if x, err := exif.Decode(bytes.NewReader(data)); err == nil {
		if tag, err := x.Get(exif.Orientation); err == nil {
			if v, err := tag.Int(0); err == nil {
				orientation = v
			}
		}
	}

	rotated := rotateForOrientation(img, orientation)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, rotated, &jpeg.Options{Quality: 90})
	case "png":
		err = png.Encode(&buf, rotated)
	default:
		err = png.Encode(&buf, rotated)
	}
	if err != nil {
		return nil, fmt.Errorf("encode normalized image: %w", err)
	}
	return buf.Bytes(), nil
}

// rotateForOrientation applies the rotation implied by an EXIF
// orientation tag (values 1-8; see media/images.go's documented table).
// Only the pure-rotation cases are handled; mirrored orientations (2, 4,
// 5, 7) are left unrotated since they require a flip this pipeline has no
// downstream use for (OCR bboxes are computed against whatever frame the
// image is already in).
func rotateForOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 3:
		return resize.Resize(uint(img.Bounds().Dx()), uint(img.Bounds().Dy()), rotate180(img), resize.Lanczos3)
	case 6:
		return rotate90CW(img)
	case 8:
		return rotate90CCW(img)
	default:
		return img
	}
}

func rotate180(img image.Image) image.Image {
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(b.Max.X-1-x+b.Min.X, b.Max.Y-1-y+b.Min.Y, img.At(x, y))
		}
	}
	return out
}

func rotate90CW(img image.Image) image.Image {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(b.Max.Y-1-y+b.Min.Y, x-b.Min.X, img.At(x, y))
		}
	}
	return out
}

func rotate90CCW(img image.Image) image.Image {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(y-b.Min.Y, b.Max.X-1-x+b.Min.X, img.At(x, y))
		}
	}
	return out
}

package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/timmy/vismatch/internal/domain"
)

// Extractor turns image bytes into a fixed-length embedding.
// One strategy is configured per deployment and every vector it
// returns has Dimensions() elements.
type Extractor interface {
	// Name returns the strategy name, used in cache keys and metrics.
	Name() string
	Dimensions() int
	// Extract fails with domain.ErrImageDecode when data is not a raster image.
	Extract(ctx context.Context, data []byte) ([]float32, error)
	// ExtractFromURL fetches an http(s) image and extracts it.
	ExtractFromURL(ctx context.Context, rawURL string) ([]float32, error)
}

// decodeImage sniffs the format from magic bytes. Declared content types are ignored.
func decodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", domain.ErrImageDecode)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrImageDecode, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty image bounds", domain.ErrImageDecode)
	}
	return img, nil
}

// imageMediaType names data's format as "image/<format>" using the registered
// decoders, so every decodable upload gets a data URL that reads back.
// Undecodable data falls back to content sniffing.
func imageMediaType(data []byte) string {
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return "image/" + format
	}
	return http.DetectContentType(data)
}

// fitSquare centre-crops img to a square and resamples it to side×side.
// The result is always an opaque RGB canvas, whatever the source color model.
func fitSquare(img image.Image, side int) *image.NRGBA {
	b := img.Bounds()
	crop := b
	if w, h := b.Dx(), b.Dy(); w > h {
		off := (w - h) / 2
		crop = image.Rect(b.Min.X+off, b.Min.Y, b.Min.X+off+h, b.Max.Y)
	} else if h > w {
		off := (h - w) / 2
		crop = image.Rect(b.Min.X, b.Min.Y+off, b.Max.X, b.Min.Y+off+w)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, side, side))
	// Transparent pixels are flattened onto white.
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, crop, xdraw.Over, nil)
	return dst
}

// fetchAndExtract is the shared ExtractFromURL body.
func fetchAndExtract(ctx context.Context, fetcher *ImageFetcher, ex Extractor, rawURL string) ([]float32, error) {
	if err := ValidateRemoteURL(rawURL); err != nil {
		return nil, err
	}
	if fetcher == nil {
		return nil, &domain.FetchError{URL: rawURL, Err: fmt.Errorf("no fetcher configured")}
	}
	data, err := fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return ex.Extract(ctx, data)
}

package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/timmy/vismatch/internal/domain"
)

// solidPNG encodes a w×h image filled with c.
func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

// stripedPNG encodes an image with vertical stripes of a and b.
func stripedPNG(t *testing.T, w, h int, a, b color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/4)%2 == 0 {
				img.Set(x, y, a)
			} else {
				img.Set(x, y, b)
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func pngDataURL(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

// fakeExtractor maps image bytes to vectors through fn and counts calls.
type fakeExtractor struct {
	dims  int
	fn    func(ctx context.Context, data []byte) ([]float32, error)
	calls atomic.Int32
}

func (f *fakeExtractor) Name() string    { return "fake" }
func (f *fakeExtractor) Dimensions() int { return f.dims }

func (f *fakeExtractor) Extract(ctx context.Context, data []byte) ([]float32, error) {
	f.calls.Add(1)
	return f.fn(ctx, data)
}

func (f *fakeExtractor) ExtractFromURL(ctx context.Context, rawURL string) ([]float32, error) {
	return f.Extract(ctx, []byte(rawURL))
}

// memoryHistory is an in-memory HistoryStore.
type memoryHistory struct {
	mu      sync.Mutex
	records []domain.SearchHistory
	err     error
}

func (m *memoryHistory) Create(ctx context.Context, h *domain.SearchHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, *h)
	return nil
}

func (m *memoryHistory) ListByUser(ctx context.Context, userID string, limit int) ([]domain.SearchHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SearchHistory
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		if m.records[i].UserID == userID {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

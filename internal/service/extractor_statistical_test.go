package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"testing"

	"github.com/timmy/vismatch/internal/domain"
)

func TestStatisticalExtractor_Dimensions(t *testing.T) {
	e := NewStatisticalExtractor(nil, nil)
	if got := e.Dimensions(); got != 128 {
		t.Fatalf("Dimensions() = %d, want 128", got)
	}

	inputs := map[string][]byte{
		"wide png":  solidPNG(t, 120, 40, color.NRGBA{R: 200, G: 10, B: 10, A: 255}),
		"tall png":  stripedPNG(t, 9, 70, color.White, color.Black),
		"tiny png":  solidPNG(t, 1, 1, color.NRGBA{B: 255, A: 255}),
		"grey jpeg": greyJPEG(t, 50, 50),
		"alpha png": solidPNG(t, 16, 16, color.NRGBA{R: 255, A: 0}),
	}
	for name, data := range inputs {
		vec, err := e.Extract(context.Background(), data)
		if err != nil {
			t.Errorf("%s: Extract() error = %v", name, err)
			continue
		}
		if len(vec) != 128 {
			t.Errorf("%s: len(vec) = %d, want 128", name, len(vec))
		}
	}
}

func greyJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i % 256)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestStatisticalExtractor_Deterministic(t *testing.T) {
	e := NewStatisticalExtractor(nil, nil)
	data := stripedPNG(t, 80, 60, color.NRGBA{R: 30, G: 120, B: 200, A: 255}, color.NRGBA{R: 250, G: 240, B: 10, A: 255})

	first, err := e.Extract(context.Background(), data)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	second, err := e.Extract(context.Background(), data)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("vec[%d] differs: %v != %v", i, first[i], second[i])
		}
	}
}

func TestStatisticalExtractor_HistogramIsNormalized(t *testing.T) {
	e := NewStatisticalExtractor(nil, nil)
	vec, err := e.Extract(context.Background(), stripedPNG(t, 64, 64, color.White, color.NRGBA{R: 10, G: 80, B: 160, A: 255}))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	for c := 0; c < 3; c++ {
		sum := 0.0
		for _, v := range vec[c*32 : (c+1)*32] {
			sum += float64(v)
		}
		if math.Abs(sum-1) > 1e-4 {
			t.Errorf("channel %d histogram sums to %v, want 1", c, sum)
		}
	}
}

func TestStatisticalExtractor_AuxFeatures(t *testing.T) {
	e := NewStatisticalExtractor(nil, nil)
	vec, err := e.Extract(context.Background(), solidPNG(t, 32, 32, color.NRGBA{R: 255, A: 255}))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	aux := vec[96:]

	approx := func(name string, got float32, want float64) {
		if math.Abs(float64(got)-want) > 0.02 {
			t.Errorf("%s = %v, want ~%v", name, got, want)
		}
	}
	approx("mean R", aux[0], 1)
	approx("mean G", aux[1], 0)
	approx("mean B", aux[2], 0)
	approx("std R", aux[3], 0)
	approx("edge density", aux[9], 0)
	approx("color range", aux[10], 1)
	approx("saturation", aux[11], 1)
	for i := 12; i < len(aux); i++ {
		if aux[i] != 0 {
			t.Errorf("aux[%d] = %v, want zero padding", i, aux[i])
		}
	}
}

func TestStatisticalExtractor_EdgesRaiseDensity(t *testing.T) {
	e := NewStatisticalExtractor(nil, nil)
	flat, err := e.Extract(context.Background(), solidPNG(t, 64, 64, color.Gray{Y: 128}))
	if err != nil {
		t.Fatalf("Extract(flat) error = %v", err)
	}
	striped, err := e.Extract(context.Background(), stripedPNG(t, 64, 64, color.White, color.Black))
	if err != nil {
		t.Fatalf("Extract(striped) error = %v", err)
	}
	if striped[96+9] <= flat[96+9] {
		t.Errorf("edge density striped = %v, flat = %v; want striped higher", striped[96+9], flat[96+9])
	}
}

func TestStatisticalExtractor_DecodeError(t *testing.T) {
	e := NewStatisticalExtractor(nil, nil)
	for _, data := range [][]byte{nil, []byte("definitely not an image"), {0x89, 'P', 'N', 'G'}} {
		if _, err := e.Extract(context.Background(), data); !errors.Is(err, domain.ErrImageDecode) {
			t.Errorf("Extract(%q) error = %v, want ErrImageDecode", data, err)
		}
	}
}

func TestStatisticalExtractor_CustomConfig(t *testing.T) {
	e := NewStatisticalExtractor(&StatisticalConfig{Size: 16, Bins: 8, AuxLength: 16}, nil)
	vec, err := e.Extract(context.Background(), solidPNG(t, 20, 20, color.White))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(vec) != 8*3+16 || e.Dimensions() != len(vec) {
		t.Errorf("len(vec) = %d, Dimensions() = %d, want 40", len(vec), e.Dimensions())
	}
}

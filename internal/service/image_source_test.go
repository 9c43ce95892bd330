package service

import (
	"context"
	"errors"
	"image/color"
	"strings"
	"testing"

	"github.com/timmy/vismatch/internal/domain"
)

func TestParseDataURL(t *testing.T) {
	img := solidPNG(t, 2, 2, color.White)

	data, mediaType, err := ParseDataURL(pngDataURL(img))
	if err != nil {
		t.Fatalf("ParseDataURL() error = %v", err)
	}
	if mediaType != "image/png" || string(data) != string(img) {
		t.Errorf("ParseDataURL() = %d bytes, %q", len(data), mediaType)
	}

	invalid := []string{
		"data:image/png;base64,",
		"data:image/png,rawdata",
		"data:text/plain;base64,aGVsbG8=",
		"data:image/png;base64,!!!not-base64!!!",
		"data:image/png;base64",
		"http://example.com/a.png",
	}
	for _, ref := range invalid {
		if _, _, err := ParseDataURL(ref); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("ParseDataURL(%q) error = %v, want ErrInvalidInput", ref, err)
		}
	}
}

func TestValidateRemoteURL(t *testing.T) {
	valid := []string{"http://example.com/a.png", "https://cdn.example.com/x?y=1"}
	for _, ref := range valid {
		if err := ValidateRemoteURL(ref); err != nil {
			t.Errorf("ValidateRemoteURL(%q) error = %v", ref, err)
		}
	}
	invalid := []string{"ftp://example.com/a.png", "file:///etc/passwd", "example.com/a.png", "https://", "javascript:alert(1)"}
	for _, ref := range invalid {
		if err := ValidateRemoteURL(ref); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("ValidateRemoteURL(%q) error = %v, want ErrInvalidInput", ref, err)
		}
	}
}

func TestImageResolver_Resolve(t *testing.T) {
	r := NewImageResolver(nil)
	img := solidPNG(t, 3, 3, color.Black)

	up, err := r.Resolve(context.Background(), ImageInput{Data: img, URL: "ignored"})
	if err != nil {
		t.Fatalf("Resolve(upload) error = %v", err)
	}
	if up.Remote || !strings.HasPrefix(up.Ref, "data:image/png;base64,") {
		t.Errorf("Resolve(upload) ref = %.40q, remote = %v", up.Ref, up.Remote)
	}
	if !strings.HasPrefix(up.Digest(), "sha256:") || len(up.Digest()) != len("sha256:")+64 {
		t.Errorf("Digest() = %q", up.Digest())
	}

	inline, err := r.Resolve(context.Background(), ImageInput{URL: pngDataURL(img)})
	if err != nil {
		t.Fatalf("Resolve(data URL) error = %v", err)
	}
	if string(inline.Data) != string(img) {
		t.Error("Resolve(data URL) returned different bytes")
	}

	for _, in := range []ImageInput{{}, {URL: "   "}, {URL: "ftp://x/y.png"}} {
		if _, err := r.Resolve(context.Background(), in); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("Resolve(%+v) error = %v, want ErrInvalidInput", in, err)
		}
	}
}

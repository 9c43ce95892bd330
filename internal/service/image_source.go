package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/timmy/vismatch/internal/domain"
)

// ImageInput is one of the three forms a caller may send an image in.
// Data takes precedence over URL.
type ImageInput struct {
	Data []byte // uploaded file bytes
	URL  string // http(s) URL or data:image URL
}

// ResolvedImage is an image input normalized to bytes.
type ResolvedImage struct {
	Data []byte
	// Ref identifies the image: the http(s) URL, or a data URL for uploads and inline images.
	Ref string
	// Remote is true when Ref is an http(s) URL.
	Remote bool
}

// Digest returns "sha256:<hex>" of the image bytes.
func (r *ResolvedImage) Digest() string {
	sum := sha256.Sum256(r.Data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// ImageResolver normalizes image inputs to bytes.
type ImageResolver struct {
	fetcher *ImageFetcher
}

// NewImageResolver creates a resolver that fetches remote URLs with fetcher.
func NewImageResolver(fetcher *ImageFetcher) *ImageResolver {
	return &ImageResolver{fetcher: fetcher}
}

// Resolve turns an upload, data URL or http(s) URL into image bytes.
// Parameters:
//   - ctx: request context, bounds the remote fetch.
//   - in: image input.
// Returns:
//   - *ResolvedImage: bytes and reference of the image.
//   - error: domain.ErrInvalidInput for empty or malformed input, *domain.FetchError for fetch failures.
func (r *ImageResolver) Resolve(ctx context.Context, in ImageInput) (*ResolvedImage, error) {
	if len(in.Data) > 0 {
		return &ResolvedImage{
			Data: in.Data,
			Ref:  "data:" + imageMediaType(in.Data) + ";base64," + base64.StdEncoding.EncodeToString(in.Data),
		}, nil
	}

	ref := strings.TrimSpace(in.URL)
	if ref == "" {
		return nil, fmt.Errorf("%w: no image provided", domain.ErrInvalidInput)
	}
	if IsDataURL(ref) {
		data, _, err := ParseDataURL(ref)
		if err != nil {
			return nil, err
		}
		return &ResolvedImage{Data: data, Ref: ref}, nil
	}
	if err := ValidateRemoteURL(ref); err != nil {
		return nil, err
	}
	data, err := r.fetcher.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &ResolvedImage{Data: data, Ref: ref, Remote: true}, nil
}

// IsDataURL reports whether ref is an inline data:image URL.
func IsDataURL(ref string) bool {
	return strings.HasPrefix(ref, "data:image")
}

// ParseDataURL decodes a data:image/<type>;base64,<payload> URL.
// Returns:
//   - []byte: decoded payload.
//   - string: declared media type, informational only.
//   - error: domain.ErrInvalidInput when the URL is malformed.
func ParseDataURL(ref string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(ref, "data:")
	if !ok {
		return nil, "", fmt.Errorf("%w: not a data URL", domain.ErrInvalidInput)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: data URL has no payload", domain.ErrInvalidInput)
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", fmt.Errorf("%w: data URL must be base64 encoded", domain.ErrInvalidInput)
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, "", fmt.Errorf("%w: data URL media type %q is not an image", domain.ErrInvalidInput, mediaType)
	}

	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: invalid base64 payload", domain.ErrInvalidInput)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty data URL payload", domain.ErrInvalidInput)
	}
	return data, mediaType, nil
}

// ValidateRemoteURL accepts absolute http and https URLs with a host.
func ValidateRemoteURL(ref string) error {
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: image URL must start with http:// or https://", domain.ErrInvalidInput)
	}
	return nil
}

// extractRef computes the embedding of a stored image reference.
func extractRef(ctx context.Context, ex Extractor, ref string) ([]float32, error) {
	switch {
	case ref == "":
		return nil, fmt.Errorf("%w: item has no image", domain.ErrInvalidInput)
	case IsDataURL(ref):
		data, _, err := ParseDataURL(ref)
		if err != nil {
			return nil, err
		}
		return ex.Extract(ctx, data)
	default:
		if err := ValidateRemoteURL(ref); err != nil {
			return nil, err
		}
		return ex.ExtractFromURL(ctx, ref)
	}
}

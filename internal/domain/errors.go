package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrImageDecode means the bytes are not a decodable raster image.
	ErrImageDecode = errors.New("image decode failed")
	// ErrFetch means an image URL could not be fetched.
	ErrFetch = errors.New("image fetch failed")
	// ErrDimensionMismatch means two embeddings of different lengths were compared.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrCatalogLoad means the catalog item list could not be read.
	ErrCatalogLoad = errors.New("catalog load failed")
	// ErrCatalogInconsistent means the item list was written but the embedding side-store was not.
	ErrCatalogInconsistent = errors.New("catalog left inconsistent")
	// ErrTimeout means the extract-then-rank pipeline exceeded its bound. Retryable.
	ErrTimeout = errors.New("match pipeline timed out")
	// ErrInvalidInput means the request did not carry a usable image or item field.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized means a required caller identity was missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")
)

// FetchError describes a failed image fetch.
type FetchError struct {
	URL        string
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrFetch) hold for every FetchError.
func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// DimensionMismatchError reports the two lengths that were compared.
type DimensionMismatchError struct {
	Left  int
	Right int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: %d != %d", e.Left, e.Right)
}

func (e *DimensionMismatchError) Is(target error) bool { return target == ErrDimensionMismatch }

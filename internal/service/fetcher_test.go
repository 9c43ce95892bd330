package service

import (
	"context"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/timmy/vismatch/internal/domain"
)

func TestImageFetcher_Fetch(t *testing.T) {
	img := solidPNG(t, 8, 8, color.White)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "text/plain") // content type is ignored
			_, _ = w.Write(img)
		case "/big":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		case "/broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewImageFetcher(&FetcherConfig{Timeout: 5 * time.Second, MaxBytes: 32 << 10})

	data, err := f.Fetch(context.Background(), srv.URL+"/ok.png")
	if err != nil {
		t.Fatalf("Fetch(ok) error = %v", err)
	}
	if len(data) != len(img) {
		t.Errorf("Fetch(ok) returned %d bytes, want %d", len(data), len(img))
	}

	tests := []struct {
		path       string
		maxBytes   int64
		wantStatus int
	}{
		{"/missing", 0, http.StatusNotFound},
		{"/broken", 0, http.StatusBadGateway},
		{"/big", 16, 0},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			f := NewImageFetcher(&FetcherConfig{Timeout: 5 * time.Second, MaxBytes: tt.maxBytes})
			_, err := f.Fetch(context.Background(), srv.URL+tt.path)
			if !errors.Is(err, domain.ErrFetch) {
				t.Fatalf("Fetch() error = %v, want ErrFetch", err)
			}
			var fetchErr *domain.FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("Fetch() error type = %T, want *domain.FetchError", err)
			}
			if fetchErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", fetchErr.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestImageFetcher_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := NewImageFetcher(&FetcherConfig{Timeout: time.Second})
	if _, err := f.Fetch(context.Background(), url+"/x.png"); !errors.Is(err, domain.ErrFetch) {
		t.Errorf("Fetch() error = %v, want ErrFetch", err)
	}
}

func TestStatisticalExtractor_ExtractFromURL(t *testing.T) {
	img := solidPNG(t, 8, 8, color.NRGBA{G: 255, A: 255})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(img)
	}))
	defer srv.Close()

	e := NewStatisticalExtractor(nil, NewImageFetcher(&FetcherConfig{Timeout: 5 * time.Second}))
	fromURL, err := e.ExtractFromURL(context.Background(), srv.URL+"/green.png")
	if err != nil {
		t.Fatalf("ExtractFromURL() error = %v", err)
	}
	direct, _ := e.Extract(context.Background(), img)
	for i := range direct {
		if direct[i] != fromURL[i] {
			t.Fatalf("vec[%d]: url %v != bytes %v", i, fromURL[i], direct[i])
		}
	}

	if _, err := e.ExtractFromURL(context.Background(), "ftp://example.com/a.png"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("ExtractFromURL(ftp) error = %v, want ErrInvalidInput", err)
	}
}

func TestImageFetcher_CallerCancelDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := NewImageFetcher(&FetcherConfig{Timeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 12; i++ {
		if _, err := f.Fetch(ctx, srv.URL+"/x.png"); !errors.Is(err, context.Canceled) {
			t.Fatalf("Fetch(cancelled) error = %v, want context.Canceled", err)
		}
	}
	if state := f.breaker.State(); state != gobreaker.StateClosed {
		t.Errorf("breaker state = %s, want closed", state)
	}
}

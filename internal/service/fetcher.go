package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/timmy/vismatch/internal/domain"
	"github.com/timmy/vismatch/internal/logger"
)

// FetcherConfig holds configuration for remote image fetches.
type FetcherConfig struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
}

// ImageFetcher downloads remote images through a circuit breaker.
// Network errors and 5xx responses count as breaker failures; 4xx do not.
type ImageFetcher struct {
	client   *resty.Client
	breaker  *gobreaker.CircuitBreaker
	maxBytes int64
}

type fetchResult struct {
	status int
	body   []byte
}

// callerAbort marks a fetch stopped by the caller's context. It does not
// count against the breaker.
type callerAbort struct {
	err error
}

func (e *callerAbort) Error() string { return e.err.Error() }

func (e *callerAbort) Unwrap() error { return e.err }

// NewImageFetcher creates a new image fetcher.
func NewImageFetcher(cfg *FetcherConfig) *ImageFetcher {
	client := resty.New()
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	client.SetHeader("Accept", "image/*")

	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "image-fetch",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.7
		},
		IsSuccessful: func(err error) bool {
			var abort *callerAbort
			return err == nil || errors.As(err, &abort)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker %s changed state: %s -> %s", name, from.String(), to.String())
		},
	})

	return &ImageFetcher{
		client:   client,
		breaker:  breaker,
		maxBytes: maxBytes,
	}
}

// Fetch downloads the body of rawURL.
// Parameters:
//   - ctx: request context.
//   - rawURL: http(s) URL, the caller validates the scheme.
// Returns:
//   - []byte: response body, at most MaxBytes long.
//   - error: *domain.FetchError on network failure, non-2xx status or oversized body.
func (f *ImageFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	out, err := f.breaker.Execute(func() (interface{}, error) {
		resp, err := f.client.R().
			SetContext(ctx).
			SetDoNotParseResponse(true).
			Get(rawURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &callerAbort{err: ctx.Err()}
			}
			return nil, err
		}
		body := resp.RawBody()
		defer body.Close()

		status := resp.StatusCode()
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
			if status >= http.StatusInternalServerError {
				return nil, &domain.FetchError{URL: rawURL, StatusCode: status}
			}
			return &fetchResult{status: status}, nil
		}

		data, err := io.ReadAll(io.LimitReader(body, f.maxBytes+1))
		if err != nil {
			return nil, err
		}
		if int64(len(data)) > f.maxBytes {
			return &fetchResult{status: status}, fmt.Errorf("response exceeds %d bytes", f.maxBytes)
		}
		return &fetchResult{status: status, body: data}, nil
	})
	if err != nil {
		var fetchErr *domain.FetchError
		if errors.As(err, &fetchErr) {
			return nil, fetchErr
		}
		var abort *callerAbort
		if errors.As(err, &abort) {
			err = abort.err
		}
		return nil, &domain.FetchError{URL: rawURL, Err: err}
	}

	res := out.(*fetchResult)
	if res.body == nil {
		return nil, &domain.FetchError{URL: rawURL, StatusCode: res.status}
	}
	return res.body, nil
}

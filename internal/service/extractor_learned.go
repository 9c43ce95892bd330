package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/timmy/vismatch/internal/domain"
	"github.com/timmy/vismatch/internal/logger"
)

// StrategyLearned is the name of the pretrained encoder strategy.
const StrategyLearned = "learned"

// LearnedConfig holds configuration for the hosted image encoder.
type LearnedConfig struct {
	Provider   string // "jina" or "openai-compatible"
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	InputSize  int
	Timeout    time.Duration
	Warmup     bool
}

// LearnedExtractor embeds images with the image branch of a CLIP-family encoder
// served over HTTP. The encoder handle is created on first use.
type LearnedExtractor struct {
	cfg     LearnedConfig
	fetcher *ImageFetcher

	mu     sync.Mutex
	handle *encoderHandle

	buffers sync.Pool
}

// encoderHandle is the loaded encoder.
type encoderHandle struct {
	client   *resty.Client
	endpoint string
}

type imageEmbeddingRequest struct {
	Model      string        `json:"model"`
	Dimensions int           `json:"dimensions,omitempty"`
	Normalized bool          `json:"normalized,omitempty"`
	Input      []interface{} `json:"input"`
}

type imageInput struct {
	Image string `json:"image"`
}

type imageEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Detail string `json:"detail,omitempty"`
}

// NewLearnedExtractor creates a learned extractor. No network call is made here.
func NewLearnedExtractor(cfg *LearnedConfig, fetcher *ImageFetcher) *LearnedExtractor {
	c := *cfg
	if c.Provider == "" {
		c.Provider = "jina"
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.jina.ai/v1"
	}
	if c.Dimensions <= 0 {
		c.Dimensions = 512
	}
	if c.InputSize <= 0 {
		c.InputSize = 224
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return &LearnedExtractor{
		cfg:     c,
		fetcher: fetcher,
		buffers: sync.Pool{New: func() interface{} { return new(bytes.Buffer) }},
	}
}

func (e *LearnedExtractor) Name() string { return StrategyLearned }

func (e *LearnedExtractor) Dimensions() int { return e.cfg.Dimensions }

// Extract preprocesses the image and asks the encoder for its embedding.
// Returns:
//   - []float32: unit-length vector of Dimensions() elements.
//   - error: domain.ErrImageDecode for undecodable input, a load or encoder error otherwise.
func (e *LearnedExtractor) Extract(ctx context.Context, data []byte) ([]float32, error) {
	vec, err := e.extract(ctx, data)
	embeddingExtractTotal.WithLabelValues(StrategyLearned, outcome(err)).Inc()
	return vec, err
}

func (e *LearnedExtractor) extract(ctx context.Context, data []byte) ([]float32, error) {
	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	h, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	return e.embed(ctx, h, img)
}

// ExtractFromURL fetches rawURL and extracts it.
func (e *LearnedExtractor) ExtractFromURL(ctx context.Context, rawURL string) ([]float32, error) {
	return fetchAndExtract(ctx, e.fetcher, e, rawURL)
}

// load returns the encoder handle, creating it at most once.
// Concurrent callers wait for the same load. A failed load is not kept,
// so the next call tries again.
func (e *LearnedExtractor) load(ctx context.Context) (*encoderHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle != nil {
		return e.handle, nil
	}

	start := time.Now()
	client := resty.New().
		SetTimeout(e.cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+e.cfg.APIKey)
	}
	h := &encoderHandle{
		client:   client,
		endpoint: strings.TrimRight(e.cfg.BaseURL, "/") + "/embeddings",
	}

	if e.cfg.Warmup {
		probe := image.NewNRGBA(image.Rect(0, 0, e.cfg.InputSize, e.cfg.InputSize))
		if _, err := e.embed(ctx, h, probe); err != nil {
			return nil, fmt.Errorf("failed to load image encoder %s: %w", e.cfg.Model, err)
		}
	}

	e.handle = h
	logger.With(logger.Fields{
		logger.FieldStrategy:   StrategyLearned,
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info(ctx, "Image encoder loaded: model=%s, dimensions=%d", e.cfg.Model, e.cfg.Dimensions)
	return h, nil
}

// embed resizes img to the encoder input size and calls the encoder.
func (e *LearnedExtractor) embed(ctx context.Context, h *encoderHandle, img image.Image) ([]float32, error) {
	buf := e.buffers.Get().(*bytes.Buffer)
	buf.Reset()
	defer e.buffers.Put(buf)

	if err := png.Encode(buf, fitSquare(img, e.cfg.InputSize)); err != nil {
		return nil, fmt.Errorf("failed to encode encoder input: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())

	req := imageEmbeddingRequest{
		Model:      e.cfg.Model,
		Dimensions: e.cfg.Dimensions,
	}
	if e.cfg.Provider == "jina" {
		req.Normalized = true
		req.Input = []interface{}{imageInput{Image: encoded}}
	} else {
		req.Input = []interface{}{"data:image/png;base64," + encoded}
	}

	var resp imageEmbeddingResponse
	httpResp, err := h.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(h.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call image encoder: %w", err)
	}
	if httpResp.StatusCode() != 200 {
		if resp.Detail != "" {
			return nil, fmt.Errorf("image encoder error: %s", resp.Detail)
		}
		return nil, fmt.Errorf("image encoder error: status %d", httpResp.StatusCode())
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("image encoder returned no embedding")
	}

	vec := resp.Data[0].Embedding
	if len(vec) != e.cfg.Dimensions {
		return nil, fmt.Errorf("image encoder %s: %w", e.cfg.Model,
			&domain.DimensionMismatchError{Left: e.cfg.Dimensions, Right: len(vec)})
	}
	return NormalizeVector(vec), nil
}

var _ Extractor = (*LearnedExtractor)(nil)

package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/timmy/vismatch/internal/logger"
)

// EmbeddingCache stores vectors by key. Implementations may expire entries.
type EmbeddingCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

// CachedExtractor memoizes an Extractor by image content hash.
// Cache failures are logged and never fail an extraction.
type CachedExtractor struct {
	inner  Extractor
	cache  EmbeddingCache
	prefix string
}

// NewCachedExtractor wraps inner with cache. Keys are "<prefix>:<strategy>:<dim>:<sha256>".
func NewCachedExtractor(inner Extractor, cache EmbeddingCache, prefix string) *CachedExtractor {
	if prefix == "" {
		prefix = "vismatch:emb"
	}
	return &CachedExtractor{inner: inner, cache: cache, prefix: prefix}
}

func (c *CachedExtractor) Name() string { return c.inner.Name() }

func (c *CachedExtractor) Dimensions() int { return c.inner.Dimensions() }

// Extract returns the cached vector for data, computing and storing it on a miss.
func (c *CachedExtractor) Extract(ctx context.Context, data []byte) ([]float32, error) {
	key := c.key(data)

	vec, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		logger.CtxWarn(ctx, "Embedding cache read failed: %v", err)
	} else if ok && len(vec) == c.inner.Dimensions() {
		return vec, nil
	}

	vec, err = c.inner.Extract(ctx, data)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, vec); err != nil {
		logger.CtxWarn(ctx, "Embedding cache write failed: %v", err)
	}
	return vec, nil
}

// ExtractFromURL fetches through the inner extractor's fetcher, then uses the cache.
func (c *CachedExtractor) ExtractFromURL(ctx context.Context, rawURL string) ([]float32, error) {
	var fetcher *ImageFetcher
	switch ex := c.inner.(type) {
	case *StatisticalExtractor:
		fetcher = ex.fetcher
	case *LearnedExtractor:
		fetcher = ex.fetcher
	default:
		return c.inner.ExtractFromURL(ctx, rawURL)
	}
	return fetchAndExtract(ctx, fetcher, c, rawURL)
}

func (c *CachedExtractor) key(data []byte) string {
	sum := sha256.Sum256(data)
	return c.prefix + ":" + c.inner.Name() + ":" + strconv.Itoa(c.inner.Dimensions()) + ":" + hex.EncodeToString(sum[:])
}

var _ Extractor = (*CachedExtractor)(nil)

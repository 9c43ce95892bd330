package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/timmy/vismatch/internal/domain"
	"github.com/timmy/vismatch/internal/logger"
)

// CatalogStore reads and writes the catalog item file and its embedding side-store.
type CatalogStore struct {
	productsPath string
	embeddings   EmbeddingStore
}

// NewCatalogStore creates a new CatalogStore.
func NewCatalogStore(productsPath string, embeddings EmbeddingStore) *CatalogStore {
	return &CatalogStore{
		productsPath: productsPath,
		embeddings:   embeddings,
	}
}

// Load reads the catalog items and the embedding index.
// An unreadable side-store is logged and replaced by an empty index, so every
// embedding is then computed on demand.
// Returns:
//   - *domain.CatalogSnapshot: items and embeddings as of this call.
//   - error: wraps domain.ErrCatalogLoad when the items cannot be read.
func (s *CatalogStore) Load(ctx context.Context) (*domain.CatalogSnapshot, error) {
	items, err := s.LoadItems(ctx)
	if err != nil {
		return nil, err
	}

	idx, err := s.embeddings.Load(ctx)
	if err != nil {
		logger.CtxWarn(ctx, "Embedding side-store unavailable, continuing without precomputed embeddings: %v", err)
		idx = domain.EmbeddingIndex{}
	}

	logger.With(logger.Fields{
		logger.FieldCount: len(items),
		"embeddings":      idx.Present(),
	}).Debug(ctx, "Catalog loaded")

	return &domain.CatalogSnapshot{Items: items, Embeddings: idx}, nil
}

// LoadItems reads the catalog item file.
// Returns an error wrapping both domain.ErrCatalogLoad and the underlying cause,
// so callers can test for fs.ErrNotExist.
func (s *CatalogStore) LoadItems(ctx context.Context) ([]domain.CatalogItem, error) {
	data, err := os.ReadFile(s.productsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCatalogLoad, err)
	}
	var items []domain.CatalogItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", domain.ErrCatalogLoad, s.productsPath, err)
	}
	if items == nil {
		items = []domain.CatalogItem{}
	}
	return items, nil
}

// SaveItems atomically replaces the catalog item file.
func (s *CatalogStore) SaveItems(ctx context.Context, items []domain.CatalogItem) error {
	if items == nil {
		items = []domain.CatalogItem{}
	}
	return writeJSONAtomic(s.productsPath, items)
}

// PutEmbedding stores one item's embedding, nil records the absent marker.
func (s *CatalogStore) PutEmbedding(ctx context.Context, id int64, vec []float32) error {
	return s.embeddings.Put(ctx, id, vec)
}

// SaveEmbeddings replaces the embedding side-store.
func (s *CatalogStore) SaveEmbeddings(ctx context.Context, idx domain.EmbeddingIndex) error {
	return s.embeddings.Save(ctx, idx)
}

// lockRetry is how often a blocked Lock retries the file lock.
const lockRetry = 10 * time.Millisecond

// Lock takes an exclusive advisory lock on "<products_path>.lock" and blocks
// until it is held or ctx is done. Every writer of the catalog, in this
// process or another, serializes on it.
// Returns:
//   - func(): releases the lock, safe to call once.
//   - error: ctx.Err() when cancelled while waiting, or a file error.
func (s *CatalogStore) Lock(ctx context.Context) (func(), error) {
	path := s.productsPath + ".lock"
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	// a fresh handle per call, flock(2) then excludes goroutines of this process too
	fl := flock.New(path)
	locked, err := fl.TryLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("failed to lock catalog: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock catalog: %s is held", path)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			logger.CtxWarn(ctx, "Failed to release catalog lock %s: %v", path, err)
		}
	}, nil
}

// Close releases the side-store.
func (s *CatalogStore) Close() error {
	return s.embeddings.Close()
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/timmy/vismatch/internal/domain"
)

// EmbeddingStore persists the catalog embedding index.
// A nil vector is the absent marker for an item whose computation failed.
type EmbeddingStore interface {
	// Load returns the whole index.
	Load(ctx context.Context) (domain.EmbeddingIndex, error)
	// Put stores one entry, nil vec records the absent marker.
	Put(ctx context.Context, id int64, vec []float32) error
	// Save replaces the stored entries with idx.
	Save(ctx context.Context, idx domain.EmbeddingIndex) error
	Close() error
}

// FileEmbeddingStore keeps the index as a flat JSON document {"<id>": [..] | null}.
// Writers must be serialized by the caller.
type FileEmbeddingStore struct {
	path string
}

// NewFileEmbeddingStore creates a store backed by the JSON file at path.
func NewFileEmbeddingStore(path string) *FileEmbeddingStore {
	return &FileEmbeddingStore{path: path}
}

// Load reads the index file.
// Returns:
//   - domain.EmbeddingIndex: entries keyed by item id, null entries kept as nil vectors.
//   - error: non-nil when the file is missing or cannot be parsed.
func (s *FileEmbeddingStore) Load(ctx context.Context) (domain.EmbeddingIndex, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read embeddings file: %w", err)
	}
	idx := domain.EmbeddingIndex{}
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse embeddings file %s: %w", s.path, err)
	}
	return idx, nil
}

// Put rewrites the file with one entry added or replaced. A missing file starts empty.
func (s *FileEmbeddingStore) Put(ctx context.Context, id int64, vec []float32) error {
	idx, err := s.Load(ctx)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		idx = domain.EmbeddingIndex{}
	}
	idx[id] = vec
	return s.Save(ctx, idx)
}

// Save atomically replaces the file with idx.
func (s *FileEmbeddingStore) Save(ctx context.Context, idx domain.EmbeddingIndex) error {
	if idx == nil {
		idx = domain.EmbeddingIndex{}
	}
	return writeJSONAtomic(s.path, idx)
}

func (s *FileEmbeddingStore) Close() error { return nil }

var _ EmbeddingStore = (*FileEmbeddingStore)(nil)

package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/timmy/vismatch/internal/domain"
	"github.com/timmy/vismatch/internal/logger"
	"github.com/timmy/vismatch/internal/storage"
)

// CatalogRepository is the persistence the catalog service writes through.
type CatalogRepository interface {
	Load(ctx context.Context) (*domain.CatalogSnapshot, error)
	LoadItems(ctx context.Context) ([]domain.CatalogItem, error)
	SaveItems(ctx context.Context, items []domain.CatalogItem) error
	PutEmbedding(ctx context.Context, id int64, vec []float32) error
	SaveEmbeddings(ctx context.Context, idx domain.EmbeddingIndex) error
	// Lock excludes every other writer of the same catalog, across processes.
	Lock(ctx context.Context) (unlock func(), err error)
}

// CatalogConfig holds configuration for catalog mutation.
type CatalogConfig struct {
	StoragePrefix     string // object key prefix for uploaded product images
	PrecomputeWorkers int
}

// CatalogService appends items to the catalog and maintains its embeddings.
// Writes hold the repository lock, so ids stay unique when the API server and
// the catalog CLI mutate the same files.
type CatalogService struct {
	repo      CatalogRepository
	extractor Extractor
	resolver  *ImageResolver
	storage   storage.ObjectStorage // optional
	cfg       CatalogConfig

	mu  sync.Mutex
	now func() time.Time
}

// NewCatalogService creates a new catalog service. objectStorage may be nil,
// in which case uploaded images are kept inline as data URLs.
func NewCatalogService(
	repo CatalogRepository,
	extractor Extractor,
	resolver *ImageResolver,
	objectStorage storage.ObjectStorage,
	cfg *CatalogConfig,
) *CatalogService {
	c := CatalogConfig{PrecomputeWorkers: 4}
	if cfg != nil {
		c = *cfg
		if c.PrecomputeWorkers <= 0 {
			c.PrecomputeWorkers = 4
		}
	}
	return &CatalogService{
		repo:      repo,
		extractor: extractor,
		resolver:  resolver,
		storage:   objectStorage,
		cfg:       c,
		now:       time.Now,
	}
}

// Append adds an item with the next free id and stores its embedding.
// Parameters:
//   - ctx: context for cancellation and logging.
//   - draft: caller-supplied fields, blank name and category get defaults.
//   - embedding: the item's vector; nil leaves it to be computed on demand.
// Returns:
//   - *domain.CatalogItem: the stored item.
//   - error: domain.ErrInvalidInput for a bad draft, a write error when nothing changed,
//     or domain.ErrCatalogInconsistent when the item was written but its embedding was not.
func (s *CatalogService) Append(ctx context.Context, draft domain.ItemDraft, embedding []float32) (*domain.CatalogItem, error) {
	draft.Normalize()
	if draft.Price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", domain.ErrInvalidInput)
	}
	if len(embedding) > 0 && s.extractor != nil && len(embedding) != s.extractor.Dimensions() {
		return nil, &domain.DimensionMismatchError{Left: s.extractor.Dimensions(), Right: len(embedding)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.repo.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	items, err := s.repo.LoadItems(ctx)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		items = []domain.CatalogItem{}
	}

	snap := domain.CatalogSnapshot{Items: items}
	addedAt := s.now().UTC().Truncate(time.Second)
	item := domain.CatalogItem{
		ID:       snap.MaxID() + 1,
		Name:     draft.Name,
		Category: draft.Category,
		Price:    draft.Price,
		Image:    draft.Image,
		AddedAt:  &addedAt,
	}
	if item.Name == "" {
		item.Name = "Product " + strconv.FormatInt(item.ID, 10)
	}
	if item.Category == "" {
		item.Category = domain.DefaultCategory
	}

	if err := s.repo.SaveItems(ctx, append(items, item)); err != nil {
		return nil, fmt.Errorf("failed to save catalog items: %w", err)
	}

	ctx = logger.WithFields(ctx, logger.Fields{logger.FieldItemID: item.ID})
	if len(embedding) > 0 {
		if err := s.repo.PutEmbedding(ctx, item.ID, embedding); err != nil {
			logger.CtxError(ctx, "Item saved but its embedding was not, catalog needs repair: %v", err)
			return &item, fmt.Errorf("%w: item %d: %w", domain.ErrCatalogInconsistent, item.ID, err)
		}
	}

	logger.CtxInfo(ctx, "Catalog item added: name=%s, category=%s", item.Name, item.Category)
	return &item, nil
}

// AddProductRequest is a new product with its image in any accepted form.
type AddProductRequest struct {
	Name     string
	Category string
	Price    float64
	Image    ImageInput
}

// AddProduct resolves and embeds the image, optionally uploads it to object
// storage, and appends the product. An upload made by this call is removed
// again when the append fails before the item is written.
func (s *CatalogService) AddProduct(ctx context.Context, req *AddProductRequest) (*domain.CatalogItem, error) {
	img, err := s.resolver.Resolve(ctx, req.Image)
	if err != nil {
		return nil, err
	}
	vec, err := s.extractor.Extract(ctx, img.Data)
	if err != nil {
		return nil, err
	}

	ref := img.Ref
	uploadedKey := ""
	if s.storage != nil && !img.Remote {
		key, created, err := s.upload(ctx, img.Data)
		if err != nil {
			return nil, err
		}
		if created {
			uploadedKey = key
		}
		ref = s.storage.GetURL(key)
	}

	item, err := s.Append(ctx, domain.ItemDraft{
		Name:     req.Name,
		Category: req.Category,
		Price:    req.Price,
		Image:    ref,
	}, vec)
	if err != nil {
		if uploadedKey != "" && !errors.Is(err, domain.ErrCatalogInconsistent) {
			if delErr := s.storage.Delete(ctx, uploadedKey); delErr != nil {
				logger.CtxWarn(ctx, "Failed to remove uploaded image %s: %v", uploadedKey, delErr)
			}
		}
		return item, err
	}
	return item, nil
}

// upload stores data under its content key. created is false when the object already existed.
func (s *CatalogService) upload(ctx context.Context, data []byte) (key string, created bool, err error) {
	contentType := imageMediaType(data)
	key = storage.ObjectKey(s.cfg.StoragePrefix, data, contentType)

	exists, err := s.storage.Exists(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("failed to check product image: %w", err)
	}
	if exists {
		return key, false, nil
	}
	if err := s.storage.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", false, fmt.Errorf("failed to upload product image: %w", err)
	}
	return key, true, nil
}

// List returns the catalog items. Embeddings are never included.
func (s *CatalogService) List(ctx context.Context) ([]domain.CatalogItem, error) {
	return s.repo.LoadItems(ctx)
}

// PrecomputeOptions controls a precompute run.
type PrecomputeOptions struct {
	// MissingOnly skips items that already have a vector. Absent markers are retried.
	MissingOnly bool
	Workers     int
}

// PrecomputeResult counts the outcome of a precompute run.
type PrecomputeResult struct {
	Total    int `json:"total"`
	Computed int `json:"computed"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// Precompute computes item embeddings and rewrites the side-store.
// Failed items get the absent marker so matching does not retry them.
// Parameters:
//   - ctx: cancelling it aborts the run before anything is written.
//   - opts: selection and parallelism.
// Returns:
//   - *PrecomputeResult: per-outcome counts.
//   - error: non-nil if the catalog cannot be loaded or the side-store cannot be written.
func (s *CatalogService) Precompute(ctx context.Context, opts PrecomputeOptions) (*PrecomputeResult, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = s.cfg.PrecomputeWorkers
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.repo.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	start := time.Now()
	snap, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}

	idx := make(domain.EmbeddingIndex, len(snap.Items))
	for id, vec := range snap.Embeddings {
		idx[id] = vec
	}

	result := &PrecomputeResult{Total: len(snap.Items)}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(workers)

	for i := range snap.Items {
		item := &snap.Items[i]
		if vec, _ := idx.Lookup(item.ID); opts.MissingOnly && vec != nil {
			result.Skipped++
			continue
		}
		g.Go(func() error {
			vec, err := extractRef(ctx, s.extractor, item.ImageRef())

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.With(logger.Fields{logger.FieldItemID: item.ID}).
					Warn(ctx, "Failed to compute embedding: %v", err)
				idx[item.ID] = nil
				result.Failed++
				return nil
			}
			idx[item.ID] = vec
			result.Computed++
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("precompute aborted: %w", err)
	}
	if err := s.repo.SaveEmbeddings(ctx, idx); err != nil {
		return nil, fmt.Errorf("failed to save embeddings: %w", err)
	}

	logger.With(logger.Fields{
		logger.FieldCount:      result.Computed,
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		logger.FieldStrategy:   s.extractor.Name(),
	}).Info(ctx, "Precompute finished: total=%d, failed=%d, skipped=%d", result.Total, result.Failed, result.Skipped)
	return result, nil
}

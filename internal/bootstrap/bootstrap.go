// Package bootstrap wires configuration into the catalog and match services.
// Both the API server and the catalog CLI start from here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/vismatch/internal/config"
	"github.com/timmy/vismatch/internal/logger"
	"github.com/timmy/vismatch/internal/repository"
	"github.com/timmy/vismatch/internal/service"
	"github.com/timmy/vismatch/internal/storage"
)

// App holds the wired services and the resources to release on shutdown.
type App struct {
	Catalog   *service.CatalogService
	Match     *service.MatchService
	History   *service.HistoryService // nil when the database is disabled
	Extractor service.Extractor

	closers []func() error
}

// Build creates every service described by cfg.
// Optional backends (Redis cache) degrade to a warning when unreachable;
// required ones (the selected embedding store, object storage, database) fail the build.
// Parameters:
//   - ctx: bounds the connection checks.
//   - cfg: loaded configuration.
// Returns:
//   - *App: wired services, Close must be called.
//   - error: non-nil if a required backend cannot be initialized.
func Build(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	app := &App{}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	fetcher := service.NewImageFetcher(&service.FetcherConfig{
		Timeout:   cfg.Fetch.Timeout,
		MaxBytes:  cfg.Fetch.MaxBytes,
		UserAgent: cfg.Fetch.UserAgent,
	})
	resolver := service.NewImageResolver(fetcher)

	extractor, err := app.buildExtractor(ctx, cfg, fetcher)
	if err != nil {
		return nil, err
	}
	app.Extractor = extractor

	embeddings, err := app.buildEmbeddingStore(ctx, cfg, extractor.Dimensions())
	if err != nil {
		return nil, err
	}
	catalog := repository.NewCatalogStore(cfg.Catalog.ProductsPath, embeddings)
	app.closers = append(app.closers, catalog.Close)

	var objectStorage storage.ObjectStorage
	if cfg.Storage.Enabled {
		objectStorage, err = storage.NewStorage(&storage.Config{
			Type:      storage.StorageType(cfg.Storage.Type),
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			PublicURL: cfg.Storage.PublicURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		if err := objectStorage.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure storage bucket: %w", err)
		}
	}

	if cfg.Database.Enabled {
		db, err := repository.InitDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			app.closers = append(app.closers, sqlDB.Close)
		}
		app.History = service.NewHistoryService(repository.NewHistoryRepository(db))
	}

	app.Catalog = service.NewCatalogService(catalog, extractor, resolver, objectStorage, &service.CatalogConfig{
		StoragePrefix:     cfg.Storage.Prefix,
		PrecomputeWorkers: cfg.Match.FallbackWorkers,
	})
	app.Match = service.NewMatchService(catalog, extractor, resolver, app.History, &service.MatchConfig{
		DefaultTopN:     cfg.Match.DefaultTopN,
		DefaultMinScore: cfg.Match.DefaultMinScore,
		Timeout:         cfg.Match.Timeout,
		FallbackWorkers: cfg.Match.FallbackWorkers,
	})

	logger.With(logger.Fields{
		logger.FieldStrategy: extractor.Name(),
		"dimensions":         extractor.Dimensions(),
		"embedding_store":    cfg.Catalog.EmbeddingStore,
		"storage":            cfg.Storage.Enabled,
		"history":            app.History != nil,
	}).Info(ctx, "Services initialized")
	return app, nil
}

func (a *App) buildExtractor(ctx context.Context, cfg *config.Config, fetcher *service.ImageFetcher) (service.Extractor, error) {
	var extractor service.Extractor
	switch cfg.Embedding.Strategy {
	case config.StrategyLearned:
		l := cfg.Embedding.Learned
		extractor = service.NewLearnedExtractor(&service.LearnedConfig{
			Provider:   l.Provider,
			Model:      l.Model,
			APIKey:     l.APIKey,
			BaseURL:    l.BaseURL,
			Dimensions: l.Dimensions,
			InputSize:  l.InputSize,
			Timeout:    l.Timeout,
			Warmup:     l.Warmup,
		}, fetcher)
	case config.StrategyStatistical:
		s := cfg.Embedding.Statistical
		extractor = service.NewStatisticalExtractor(&service.StatisticalConfig{
			Size:      s.Size,
			Bins:      s.Bins,
			AuxLength: s.AuxLength,
		}, fetcher)
	default:
		return nil, fmt.Errorf("unknown embedding strategy %q", cfg.Embedding.Strategy)
	}

	if !cfg.Cache.Redis.Enabled() {
		return extractor, nil
	}
	cache, err := repository.NewRedisEmbeddingCache(ctx, &repository.RedisCacheConfig{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		TTL:      cfg.Cache.Redis.TTL,
	})
	if err != nil {
		logger.CtxWarn(ctx, "Embedding cache disabled: %v", err)
		return extractor, nil
	}
	a.closers = append(a.closers, cache.Close)
	return service.NewCachedExtractor(extractor, cache, cfg.Cache.Redis.Prefix), nil
}

func (a *App) buildEmbeddingStore(ctx context.Context, cfg *config.Config, dims int) (repository.EmbeddingStore, error) {
	switch cfg.Catalog.EmbeddingStore {
	case "", "file":
		return repository.NewFileEmbeddingStore(cfg.Catalog.EmbeddingsPath), nil
	case "qdrant":
		store, err := repository.NewQdrantEmbeddingStore(&repository.QdrantConnectionConfig{
			Host:            cfg.Qdrant.Host,
			Port:            cfg.Qdrant.Port,
			Collection:      cfg.Qdrant.Collection,
			APIKey:          cfg.Qdrant.APIKey,
			UseTLS:          cfg.Qdrant.UseTLS,
			VectorDimension: dims,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Qdrant embedding store: %w", err)
		}
		if err := store.EnsureCollection(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to ensure Qdrant collection: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown embedding store %q", cfg.Catalog.EmbeddingStore)
	}
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

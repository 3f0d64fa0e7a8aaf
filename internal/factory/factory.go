package factory

import (
	"context"
	"fmt"

	"github.com/anime-shed/meter-reader-go/internal/config"
	"github.com/anime-shed/meter-reader-go/internal/repository"
	"github.com/anime-shed/meter-reader-go/internal/repository/postgres"
	"github.com/anime-shed/meter-reader-go/internal/repository/redis"
	"github.com/anime-shed/meter-reader-go/internal/repository/sqlite"
	"github.com/anime-shed/meter-reader-go/internal/storage"
	"github.com/anime-shed/meter-reader-go/pkg/validation"
)

// StoreFactory creates ScanRecord stores
type StoreFactory interface {
	CreateStore(ctx context.Context, backend string) (repository.ScanRepository, error)
}

// FrameSourceFactory creates the remote frame sources
type FrameSourceFactory interface {
	CreateFetcher() storage.FrameFetcher
	// CreateBlobSource returns nil when Azure is not configured.
	CreateBlobSource() (storage.BlobSource, error)
}

// storeFactory implements StoreFactory
type storeFactory struct {
	cfg *config.Config
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config) StoreFactory {
	return &storeFactory{cfg: cfg}
}

// CreateStore opens the store for the given STORE_BACKEND value
func (f *storeFactory) CreateStore(ctx context.Context, backend string) (repository.ScanRepository, error) {
	switch backend {
	case config.StoreMemory:
		return repository.NewMemoryRepository(f.cfg.MaxScans), nil
	case config.StoreSQLite:
		return sqlite.New(f.cfg.SQLitePath, f.cfg.MaxScans)
	case config.StoreRedis:
		return redis.New(ctx, redis.Options{
			Addr:     f.cfg.RedisAddr,
			Password: f.cfg.RedisPassword,
			DB:       f.cfg.RedisDB,
			Key:      f.cfg.RedisKey,
			MaxScans: f.cfg.MaxScans,
		})
	case config.StorePostgres:
		return postgres.New(ctx, f.cfg.PostgresDSN, postgres.DefaultTable, f.cfg.MaxScans)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", backend)
	}
}

// frameSourceFactory implements FrameSourceFactory
type frameSourceFactory struct {
	cfg       *config.Config
	validator *validation.URLValidator
}

// NewFrameSourceFactory creates a new frame source factory
func NewFrameSourceFactory(cfg *config.Config, validator *validation.URLValidator) FrameSourceFactory {
	return &frameSourceFactory{cfg: cfg, validator: validator}
}

func (f *frameSourceFactory) CreateFetcher() storage.FrameFetcher {
	opts := storage.DefaultHTTPFetcherOptions()
	opts.Timeout = f.cfg.ImageFetchTimeout
	opts.MaxBytes = f.cfg.MaxRequestBodySize
	return storage.NewHTTPFrameFetcher(opts, f.validator)
}

func (f *frameSourceFactory) CreateBlobSource() (storage.BlobSource, error) {
	if !f.cfg.AzureEnabled() {
		return nil, nil
	}
	return storage.NewAzureStorage(f.cfg.AzureAccountName, f.cfg.AzureAccountKey, f.validator)
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	StoreFactory       StoreFactory
	FrameSourceFactory FrameSourceFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config) *ComponentFactory {
	return &ComponentFactory{
		StoreFactory:       NewStoreFactory(cfg),
		FrameSourceFactory: NewFrameSourceFactory(cfg, validation.NewURLValidator()),
	}
}

// Package bootstrap builds the static image pipeline from configuration for
// the api and regen binaries.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"monteur/internal/infra"
	"monteur/internal/infra/credentials"
	"monteur/internal/staticimage"
	"monteur/internal/storage"
)

// Pipeline is the wired generator plus the pieces callers report on.
type Pipeline struct {
	Generator *staticimage.Generator
	Scratch   *storage.FileStore
	Publisher staticimage.Publisher
}

// NewPublisher returns the object store selected by cfg.StorageDriver. sql may
// be nil; it is only used to look up a stored service key.
func NewPublisher(ctx context.Context, cfg *infra.Config, sql infra.SQLExecutor, logger zerolog.Logger) (staticimage.Publisher, error) {
	switch cfg.StorageDriver {
	case infra.StorageDriverS3:
		opts := storage.S3Options{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Bucket:          cfg.StorageBucket,
			PublicBaseURL:   cfg.StorageBaseURL,
			Timeout:         cfg.StorageTimeout,
			Logger:          logger,
		}
		client, err := storage.NewS3Client(ctx, opts)
		if err != nil {
			return nil, err
		}
		store, err := storage.NewS3Store(client, opts)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		var creds *credentials.Store
		if sql != nil {
			creds = credentials.NewStore(sql)
		}
		key, err := creds.ResolveStorageServiceKey(ctx, cfg.StorageServiceKey)
		if err != nil {
			return nil, fmt.Errorf("resolve storage key: %w", err)
		}
		store, err := storage.NewSupabaseStore(storage.SupabaseOptions{
			BaseURL:    cfg.StorageBaseURL,
			Bucket:     cfg.StorageBucket,
			Token:      key,
			HTTPClient: &http.Client{},
			Timeout:    cfg.StorageTimeout,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// NewPipeline wires fetcher, scratch store, publisher and generator.
func NewPipeline(ctx context.Context, cfg *infra.Config, sql infra.SQLExecutor, logger zerolog.Logger) (*Pipeline, error) {
	publisher, err := NewPublisher(ctx, cfg, sql, logger)
	if err != nil {
		return nil, err
	}
	scratch, err := storage.NewFileStore(cfg.ScratchDir)
	if err != nil {
		return nil, err
	}
	fetcher := staticimage.NewFetcher(staticimage.FetcherOptions{
		HTTPClient:   &http.Client{},
		Timeout:      cfg.FetchTimeout,
		MaxBytes:     cfg.MaxSourceBytes,
		AllowedHosts: cfg.ImageSourceAllowlist,
		CacheTTL:     cfg.SourceCacheTTL,
	})
	gen, err := staticimage.NewGenerator(staticimage.Options{
		Fetcher:              fetcher,
		Scratch:              scratch,
		Publisher:            publisher,
		Logger:               logger,
		MaxSourcePixels:      cfg.MaxSourcePixels,
		TransformConcurrency: int64(cfg.TransformConcurrency),
	})
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str("driver", cfg.StorageDriver).
		Str("bucket", cfg.StorageBucket).
		Str("scratch_dir", scratch.BasePath()).
		Strs("source_hosts", cfg.ImageSourceAllowlist).
		Msg("static image pipeline ready")
	return &Pipeline{Generator: gen, Scratch: scratch, Publisher: publisher}, nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/data-douser/swamp-go/internal/config"
	"github.com/data-douser/swamp-go/internal/storage"
	"github.com/data-douser/swamp-go/internal/storage/gcs"
	"github.com/data-douser/swamp-go/internal/storage/local"
	"github.com/data-douser/swamp-go/internal/storage/s3"
)

// initStorage creates and initializes the configured storage backend.
func initStorage(ctx context.Context, cfg config.Storage, logger *slog.Logger) (storage.Backend, error) {
	switch cfg.Type {
	case "local":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("dir is required for local storage")
		}
		store, err := local.New(local.Config{BasePath: cfg.Dir, Create: true})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local storage: %w", err)
		}
		logger.Debug("initialized local storage", "path", cfg.Dir)
		return store, nil

	case "gcs":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("bucket is required for gcs storage")
		}
		store, err := gcs.New(ctx, gcs.Config{
			Bucket:          cfg.Bucket,
			Prefix:          cfg.Prefix,
			CredentialsFile: cfg.CredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize GCS storage: %w", err)
		}
		logger.Debug("initialized GCS storage", "bucket", cfg.Bucket, "prefix", cfg.Prefix)
		return store, nil

	case "s3":
		store, err := s3.New(s3.Config{
			Endpoint:  cfg.Endpoint,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
			UseSSL:    cfg.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
		logger.Debug("initialized S3 storage", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s (supported: local, gcs, s3)", cfg.Type)
	}
}

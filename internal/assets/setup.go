package assets

import (
	"context"
	"fmt"

	"rentacar/internal/config"
	"rentacar/internal/models"

	"github.com/rs/zerolog"
)

// FromConfig registers the local, s3 and url backends that the configuration enables.
// Inspection uploads go to s3 when a bucket is configured, local disk otherwise.
func FromConfig(ctx context.Context, storage config.StorageConfig, logo config.LogoConfig, logger *zerolog.Logger) (*Resolver, error) {
	r := NewResolver(LogoOptions{MaxDimension: logo.MaxDimension, JPEGQuality: logo.JPEGQuality})

	r.Register(models.AssetBackendURL, NewURLBackend(nil), false)

	if storage.Local.Root != "" {
		r.Register(models.AssetBackendLocal, &LocalBackend{Root: storage.Local.Root, PublicBaseURL: storage.Local.PublicBaseURL}, false)
		r.SetUploadBackend(models.AssetBackendLocal)
	}

	if storage.S3.Bucket != "" {
		s3Backend, err := NewS3Backend(ctx, storage.S3)
		if err != nil {
			return nil, fmt.Errorf("init s3 backend: %w", err)
		}
		r.Register(models.AssetBackendS3, s3Backend, true)
		r.SetUploadBackend(models.AssetBackendS3)
	}

	if logger != nil {
		logger.Info().Str("uploads", r.UploadBackend()).Msg("asset resolver configured")
	}
	return r, nil
}

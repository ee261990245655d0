// Package artifacts mints presigned upload and download credentials against the
// result bucket. S3 and S3-compatible MinIO deployments are supported.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/molcalc/chemjobs/internal/core"
)

// Backend names an object-store implementation.
type Backend string

const (
	BackendS3    Backend = "s3"
	BackendMinIO Backend = "minio"
)

// Config configures the artifact store.
type Config struct {
	Backend         Backend
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	ForcePathStyle  bool
}

// Validate checks required fields for the configured backend.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("artifacts: bucket is required")
	}
	switch c.Backend {
	case BackendS3, "":
		return nil
	case BackendMinIO:
		if strings.TrimSpace(c.Endpoint) == "" {
			return errors.New("artifacts: endpoint is required for minio")
		}
		if c.AccessKeyID == "" || c.SecretAccessKey == "" {
			return errors.New("artifacts: access key and secret are required for minio")
		}
		return nil
	default:
		return fmt.Errorf("artifacts: unknown backend %q", c.Backend)
	}
}

// New builds the store selected by cfg.Backend.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (core.ArtifactStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "artifact_store", "backend", cfg.Backend, "bucket", cfg.Bucket)

	if cfg.Backend == BackendMinIO {
		return NewMinIOStore(cfg, logger)
	}
	return NewS3Store(ctx, cfg, logger)
}

func objectKey(path string) string {
	return strings.TrimPrefix(strings.TrimSpace(path), "/")
}

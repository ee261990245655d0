package config

import (
	"strings"
	"time"
)

// ArtifactsConfig configures the result bucket and credential lifetimes.
type ArtifactsConfig struct {
	Backend         string `env:"ARTIFACTS_BACKEND"           envDefault:"s3"`
	Bucket          string `env:"S3_BUCKET"`
	Region          string `env:"AWS_REGION_NAME"`
	Endpoint        string `env:"ARTIFACTS_ENDPOINT"`
	AccessKeyID     string `env:"ARTIFACTS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"ARTIFACTS_SECRET_ACCESS_KEY"`
	UseSSL          bool   `env:"ARTIFACTS_USE_SSL"           envDefault:"true"`
	ForcePathStyle  bool   `env:"ARTIFACTS_FORCE_PATH_STYLE"  envDefault:"false"`

	// UploadTTL is the lifetime of presigned upload credentials handed to the cluster.
	UploadTTL time.Duration `env:"ARTIFACTS_UPLOAD_TTL" envDefault:"3600s"`
	// DownloadTTL is the lifetime of presigned download URLs handed to users.
	DownloadTTL time.Duration `env:"ARTIFACTS_DOWNLOAD_TTL" envDefault:"60s"`
	// MaxUploadBytes caps a single artifact. Zero means no content-length condition.
	MaxUploadBytes int64 `env:"ARTIFACTS_MAX_UPLOAD_BYTES" envDefault:"0"`
}

// Sanitize applies guardrails to artifact configuration values.
func (a *ArtifactsConfig) Sanitize() {
	a.Backend = strings.ToLower(strings.TrimSpace(a.Backend))
	if a.Backend == "" {
		a.Backend = "s3"
	}
	a.Bucket = strings.TrimSpace(a.Bucket)
	a.Endpoint = strings.TrimSpace(a.Endpoint)
	if a.UploadTTL <= 0 {
		a.UploadTTL = time.Hour
	}
	if a.DownloadTTL <= 0 {
		a.DownloadTTL = time.Minute
	}
	if a.MaxUploadBytes < 0 {
		a.MaxUploadBytes = 0
	}
}

package artifacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/molcalc/chemjobs/internal/core"
	"github.com/molcalc/chemjobs/internal/domain/model"
)

// minioPresigner is the subset of *minio.Client the store needs.
type minioPresigner interface {
	PresignedPostPolicy(ctx context.Context, policy *minio.PostPolicy) (*url.URL, map[string]string, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expires time.Duration, params url.Values) (*url.URL, error)
}

// MinIOStore mints presigned POST policies and GET URLs against a MinIO deployment.
type MinIOStore struct {
	client minioPresigner
	bucket string
	logger *slog.Logger
	now    func() time.Time
}

var _ core.ArtifactStore = (*MinIOStore)(nil)

// NewMinIOStore builds a client for cfg.Endpoint. Presigning is local; no request is made here.
func NewMinIOStore(cfg Config, logger *slog.Logger) (*MinIOStore, error) {
	endpoint := cfg.Endpoint
	secure := cfg.UseSSL
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		secure = u.Scheme == "https"
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:    secure,
		Region:    region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("artifacts: minio client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MinIOStore{client: client, bucket: cfg.Bucket, logger: logger, now: time.Now}, nil
}

// MintUploadCredential returns a presigned POST policy the cluster can submit as multipart form data.
func (s *MinIOStore) MintUploadCredential(ctx context.Context, req model.UploadCredentialRequest) (*model.UploadCredential, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	key := objectKey(req.Path)

	policy := minio.NewPostPolicy()
	if err := policy.SetBucket(s.bucket); err != nil {
		return nil, err
	}
	if err := policy.SetKey(key); err != nil {
		return nil, err
	}
	if err := policy.SetExpires(s.now().UTC().Add(req.TTL)); err != nil {
		return nil, err
	}
	if ct := req.Constraints.ContentType; ct != "" {
		if err := policy.SetContentType(ct); err != nil {
			return nil, err
		}
	}
	if req.Constraints.MaxBytes > 0 {
		if err := policy.SetContentLengthRange(0, req.Constraints.MaxBytes); err != nil {
			return nil, err
		}
	}
	for k, v := range req.Fields {
		if strings.HasPrefix(strings.ToLower(k), "x-amz-meta-") {
			if err := policy.SetUserMetadata(k[len("x-amz-meta-"):], v); err != nil {
				return nil, err
			}
		}
	}

	u, formData, err := s.client.PresignedPostPolicy(ctx, policy)
	if err != nil {
		s.logger.ErrorContext(ctx, "presign post policy failed", "key", key, "error", err)
		return nil, wrapError("PresignedPostPolicy", s.bucket, key, err)
	}
	if u == nil {
		return nil, wrapError("PresignedPostPolicy", s.bucket, key, errors.New("empty presigned post"))
	}

	fields := make(map[string]string, len(formData)+len(req.Fields))
	maps.Copy(fields, req.Fields)
	maps.Copy(fields, formData)
	return &model.UploadCredential{URL: u.String(), Fields: fields}, nil
}

// MintDownloadURL returns a presigned GET URL for path valid for ttl.
func (s *MinIOStore) MintDownloadURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	key := objectKey(path)
	if key == "" {
		return "", errors.New("object path is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "presign get failed", "key", key, "error", err)
		return "", wrapError("PresignedGetObject", s.bucket, key, err)
	}
	return u.String(), nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

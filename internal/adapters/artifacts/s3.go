package artifacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/molcalc/chemjobs/internal/core"
	"github.com/molcalc/chemjobs/internal/domain/model"
)

// s3Presigner is the subset of *s3.PresignClient the store needs.
type s3Presigner interface {
	PresignPostObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignPostOptions)) (*s3.PresignedPostRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store mints presigned POST policies and GET URLs with the AWS SDK.
type S3Store struct {
	presigner s3Presigner
	bucket    string
	logger    *slog.Logger
}

var _ core.ArtifactStore = (*S3Store)(nil)

// NewS3Store loads AWS configuration (default chain unless static keys are set) and
// returns a store for cfg.Bucket.
func NewS3Store(ctx context.Context, cfg Config, logger *slog.Logger) (*S3Store, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("artifacts: load aws config: %w", err)
	}
	return newS3StoreFromConfig(awsCfg, cfg, logger), nil
}

func newS3StoreFromConfig(awsCfg aws.Config, cfg Config, logger *slog.Logger) *S3Store {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Store{presigner: s3.NewPresignClient(client), bucket: cfg.Bucket, logger: logger}
}

func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}
	return awsCfg, nil
}

// MintUploadCredential returns a presigned POST the cluster can submit as multipart form data.
func (s *S3Store) MintUploadCredential(ctx context.Context, req model.UploadCredentialRequest) (*model.UploadCredential, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	key := objectKey(req.Path)

	input := &s3.PutObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}

	// Every extra form field must be matched by a policy condition.
	var conditions []any
	for k, v := range req.Fields {
		conditions = append(conditions, map[string]string{k: v})
	}
	if req.Constraints.ContentType != "" {
		conditions = append(conditions, map[string]string{"Content-Type": req.Constraints.ContentType})
	}
	if req.Constraints.MaxBytes > 0 {
		conditions = append(conditions, []any{"content-length-range", 0, req.Constraints.MaxBytes})
	}

	out, err := s.presigner.PresignPostObject(ctx, input, func(o *s3.PresignPostOptions) {
		o.Expires = req.TTL
		o.Conditions = conditions
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "presign post failed", "key", key, "error", err)
		return nil, wrapError("PresignPostObject", s.bucket, key, err)
	}
	if out == nil || out.URL == "" {
		return nil, wrapError("PresignPostObject", s.bucket, key, errors.New("empty presigned post"))
	}

	fields := make(map[string]string, len(out.Values)+len(req.Fields))
	maps.Copy(fields, req.Fields)
	maps.Copy(fields, out.Values)
	if req.Constraints.ContentType != "" {
		fields["Content-Type"] = req.Constraints.ContentType
	}
	return &model.UploadCredential{URL: out.URL, Fields: fields}, nil
}

// MintDownloadURL returns a presigned GET URL for path valid for ttl.
func (s *S3Store) MintDownloadURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	key := objectKey(path)
	if key == "" {
		return "", errors.New("object path is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	out, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		s.logger.ErrorContext(ctx, "presign get failed", "key", key, "error", err)
		return "", wrapError("PresignGetObject", s.bucket, key, err)
	}
	return out.URL, nil
}

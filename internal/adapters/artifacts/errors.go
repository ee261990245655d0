package artifacts

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
	"github.com/minio/minio-go/v7"

	apperrors "github.com/molcalc/chemjobs/internal/errors"
)

var (
	// ErrStore is the fallback for provider failures with no finer class.
	ErrStore = apperrors.NewSentinel("artifact_store", "artifact store failure")
	// ErrAccessDenied is returned when the configured identity may not sign for the bucket.
	ErrAccessDenied = apperrors.NewSentinel("artifact_access_denied", "artifact store access denied")
	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = apperrors.NewSentinel("artifact_bucket_not_found", "artifact bucket not found")
	// ErrInvalidCredentials is returned when the signing credentials are rejected.
	ErrInvalidCredentials = apperrors.NewSentinel("artifact_invalid_credentials", "artifact store credentials invalid")
	// ErrThrottled is returned when the provider asks us to slow down.
	ErrThrottled = apperrors.NewSentinel("artifact_throttled", "artifact store throttled")
	// ErrUnavailable is returned when the provider reports an internal or availability error.
	ErrUnavailable = apperrors.NewSentinel("artifact_unavailable", "artifact store unavailable")
)

// StoreError records which operation failed against which key.
type StoreError struct {
	Op     string
	Bucket string
	Key    string
	Kind   error
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("artifacts %s s3://%s/%s: %v: %v", e.Op, e.Bucket, e.Key, e.Kind, e.Err)
}

// Unwrap exposes both the classifying sentinel and the provider error.
func (e *StoreError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func wrapError(op, bucket, key string, err error) error {
	return &StoreError{Op: op, Bucket: bucket, Key: key, Kind: classifyCode(errorCode(err)), Err: err}
}

func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	var minioErr minio.ErrorResponse
	if errors.As(err, &minioErr) {
		return minioErr.Code
	}
	return ""
}

func classifyCode(code string) error {
	switch code {
	case "AccessDenied", "Forbidden":
		return ErrAccessDenied
	case "NoSuchBucket":
		return ErrBucketNotFound
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
		return ErrInvalidCredentials
	case "SlowDown", "Throttling", "RequestLimitExceeded":
		return ErrThrottled
	case "ServiceUnavailable", "InternalError":
		return ErrUnavailable
	default:
		return ErrStore
	}
}

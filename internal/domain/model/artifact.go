package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ArtifactKind names one of the output collections produced by a completed job.
type ArtifactKind string

const (
	// ArtifactArchive is the full result archive.
	ArtifactArchive ArtifactKind = "archive"
	// ArtifactJobs is the structured result summary.
	ArtifactJobs ArtifactKind = "jobs"
)

// ArtifactKinds returns every artifact a job must deliver before it is COMPLETED.
func ArtifactKinds() []ArtifactKind {
	return []ArtifactKind{ArtifactArchive, ArtifactJobs}
}

// FileType returns the type tag the cluster expects in an upload instruction.
func (k ArtifactKind) FileType() string {
	switch k {
	case ArtifactArchive:
		return "zip"
	case ArtifactJobs:
		return "json"
	default:
		return ""
	}
}

// Valid reports whether k is a known artifact kind.
func (k ArtifactKind) Valid() bool {
	return k.FileType() != ""
}

// ObjectKey returns the bucket key the artifact is stored under. Upload
// credentials are scoped to it and download URLs are signed for it.
func (k ArtifactKind) ObjectKey(jobID string) string {
	switch k {
	case ArtifactArchive:
		return fmt.Sprintf("%s/%s.zip", jobID, jobID)
	case ArtifactJobs:
		return fmt.Sprintf("%s/result.json", jobID)
	default:
		return ""
	}
}

// UploadPath returns the object path an upload credential is scoped to.
func (k ArtifactKind) UploadPath(jobID string) string {
	return k.ObjectKey(jobID)
}

// DownloadPath returns the object key a download URL is signed for.
func (k ArtifactKind) DownloadPath(jobID string) string {
	return k.ObjectKey(jobID)
}

// UploadConstraints restrict what a presigned upload may carry.
type UploadConstraints struct {
	ContentType string
	MaxBytes    int64
}

// UploadCredentialRequest asks the artifact store for a presigned POST.
type UploadCredentialRequest struct {
	Path        string
	Fields      map[string]string
	Constraints UploadConstraints
	TTL         time.Duration
}

// Validate validates the UploadCredentialRequest fields.
func (r UploadCredentialRequest) Validate() error {
	if strings.TrimSpace(strings.TrimPrefix(r.Path, "/")) == "" {
		return errors.New("object path is required")
	}
	if r.TTL <= 0 {
		return errors.New("ttl must be positive")
	}
	if r.Constraints.MaxBytes < 0 {
		return errors.New("max bytes must not be negative")
	}
	return nil
}

// UploadCredential is a capability the cluster uses to push one blob.
type UploadCredential struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}

// Valid reports whether the credential carries a usable URL.
func (c *UploadCredential) Valid() bool {
	return c != nil && strings.TrimSpace(c.URL) != ""
}

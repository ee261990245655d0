package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/molcalc/chemjobs/internal/core"
	"github.com/molcalc/chemjobs/internal/domain/model"
	apperrors "github.com/molcalc/chemjobs/internal/errors"
)

// ErrResultsNotReady is returned when download links are requested for a job that is not COMPLETED.
var ErrResultsNotReady = apperrors.NewSentinel("results_not_ready", "job results are not available")

// DefaultDownloadTTL is the lifetime of presigned download URLs.
const DefaultDownloadTTL = time.Minute

// DownloadServiceOptions groups dependencies for DownloadService.
type DownloadServiceOptions struct {
	Repo      core.JobRepository // Required
	Artifacts core.ArtifactStore // Required
	TTL       time.Duration
}

// DownloadService mints short-lived links to a completed job's artifacts.
type DownloadService struct {
	repo      core.JobRepository
	artifacts core.ArtifactStore
	ttl       time.Duration
}

// NewDownloadService constructs a DownloadService.
func NewDownloadService(opts DownloadServiceOptions) (*DownloadService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Artifacts == nil {
		return nil, errors.New("ArtifactStore is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultDownloadTTL
	}
	return &DownloadService{repo: opts.Repo, artifacts: opts.Artifacts, ttl: ttl}, nil
}

// ArchiveURL returns a presigned GET for the job's full result archive.
func (s *DownloadService) ArchiveURL(ctx context.Context, jobID string) (string, error) {
	return s.url(ctx, jobID, model.ArtifactArchive)
}

// ResultURL returns a presigned GET for the job's structured result summary.
func (s *DownloadService) ResultURL(ctx context.Context, jobID string) (string, error) {
	return s.url(ctx, jobID, model.ArtifactJobs)
}

func (s *DownloadService) url(ctx context.Context, jobID string, kind model.ArtifactKind) (string, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Status != model.JobStatusCompleted {
		return "", fmt.Errorf("%w: job %s is %s", ErrResultsNotReady, jobID, job.Status)
	}
	u, err := s.artifacts.MintDownloadURL(ctx, kind.DownloadPath(job.ID), s.ttl)
	if err != nil {
		return "", fmt.Errorf("mint %s download url: %w", kind, err)
	}
	return u, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/molcalc/chemjobs/internal/core"
	"github.com/molcalc/chemjobs/internal/domain/cluster"
	"github.com/molcalc/chemjobs/internal/domain/model"
	apperrors "github.com/molcalc/chemjobs/internal/errors"
)

// SubmissionServiceOptions groups dependencies for SubmissionService.
type SubmissionServiceOptions struct {
	Repo    core.JobRepository  // Required
	Gateway core.ClusterGateway // Required
	Logger  *slog.Logger
}

// SubmissionService hands new jobs to the cluster and records the accepted ones.
type SubmissionService struct {
	repo    core.JobRepository
	gateway core.ClusterGateway
	logger  *slog.Logger
}

// NewSubmissionService constructs a SubmissionService.
func NewSubmissionService(opts SubmissionServiceOptions) (*SubmissionService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("ClusterGateway is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionService{
		repo:    opts.Repo,
		gateway: opts.Gateway,
		logger:  logger.With("component", "submission_service"),
	}, nil
}

// Submit sends the job to the cluster with its id injected into the parameters and
// inserts the SUBMITTED row only once the cluster acknowledged it.
func (s *SubmissionService) Submit(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	in := *req
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if err := in.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job")
	}

	ack, err := s.gateway.Submit(ctx, cluster.SubmitRequest{JobID: in.ID, Parameters: in.Parameters})
	if err != nil {
		return nil, fmt.Errorf("remote submit: %w", err)
	}
	if err := ack.Err(cluster.ActionSubmit); err != nil {
		return nil, err
	}

	job, err := s.repo.Create(ctx, &in)
	if err != nil {
		// The cluster already runs the job; an operator has to reconcile the orphan by id.
		s.logger.ErrorContext(ctx, "cluster accepted job but recording it failed",
			"job_id", in.ID, "userid", in.UserID, "error", err)
		return nil, fmt.Errorf("record submitted job %s: %w", in.ID, err)
	}
	s.logger.InfoContext(ctx, "job submitted", "job_id", job.ID, "userid", job.UserID)
	return job, nil
}

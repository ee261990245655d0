package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/molcalc/chemjobs/internal/core"
	"github.com/molcalc/chemjobs/internal/domain/cluster"
	"github.com/molcalc/chemjobs/internal/domain/model"
)

// CancelServiceOptions groups dependencies for CancelService.
type CancelServiceOptions struct {
	Repo    core.JobRepository  // Required
	Gateway core.ClusterGateway // Required
	Locker  *JobLocker          // Optional: shared with the reconciler
	Clock   func() time.Time
	Logger  *slog.Logger
}

// CancelService stops a job on the cluster and records it as CANCELLED.
type CancelService struct {
	repo    core.JobRepository
	gateway core.ClusterGateway
	locker  *JobLocker
	now     func() time.Time
	logger  *slog.Logger
}

// NewCancelService constructs a CancelService.
func NewCancelService(opts CancelServiceOptions) (*CancelService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("ClusterGateway is required")
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CancelService{
		repo:    opts.Repo,
		gateway: opts.Gateway,
		locker:  opts.Locker,
		now:     now,
		logger:  logger.With("component", "cancel_service"),
	}, nil
}

// Cancel cancels jobID. A job that is already terminal yields model.ErrJobTerminal
// without contacting the cluster; a reconcile write that lands first wins the same way.
func (s *CancelService) Cancel(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return nil, fmt.Errorf("cancel job %s (%s): %w", jobID, job.Status, model.ErrJobTerminal)
	}

	var cancelled *model.Job
	err = s.locker.WithJobLock(ctx, jobID, func(ctx context.Context) error {
		ack, err := s.gateway.Cancel(ctx, cluster.CancelRequest{JobID: jobID})
		if err != nil {
			return fmt.Errorf("remote cancel: %w", err)
		}
		if err := ack.Err(cluster.ActionCancel); err != nil {
			return err
		}

		upd := model.JobUpdate{Status: model.StatusPtr(model.JobStatusCancelled)}
		if job.Finished == nil {
			now := s.now().UTC()
			upd.Finished = &now
		}
		cancelled, err = s.repo.Update(ctx, jobID, upd)
		if err != nil {
			return fmt.Errorf("cancel job %s: %w", jobID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "job cancelled", "job_id", jobID)
	return cancelled, nil
}

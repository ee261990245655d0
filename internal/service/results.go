package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/molcalc/chemjobs/internal/core"
	"github.com/molcalc/chemjobs/internal/domain/cluster"
	"github.com/molcalc/chemjobs/internal/domain/model"
	apperrors "github.com/molcalc/chemjobs/internal/errors"
	"github.com/molcalc/chemjobs/internal/observability/metrics"
	"github.com/molcalc/chemjobs/internal/observability/statsd"
)

// ErrPartialCollection is returned when at least one artifact was not confirmed.
// The job stays non-terminal and the next tick retries collection.
var ErrPartialCollection = apperrors.NewSentinel("partial_collection", "result collection incomplete")

// DefaultUploadTTL is the lifetime of the upload credentials handed to the cluster.
const DefaultUploadTTL = time.Hour

// ResultPipelineOptions groups dependencies for ResultPipeline.
type ResultPipelineOptions struct {
	Repo      core.JobRepository  // Required
	Gateway   core.ClusterGateway // Required
	Artifacts core.ArtifactStore  // Required

	UploadTTL      time.Duration
	MaxUploadBytes int64

	Logger  *slog.Logger
	Metrics statsd.Sink
}

// ResultPipeline collects a completed job's artifacts and finalises its status.
type ResultPipeline struct {
	repo      core.JobRepository
	gateway   core.ClusterGateway
	artifacts core.ArtifactStore
	uploadTTL time.Duration
	maxBytes  int64
	logger    *slog.Logger
	metrics   statsd.Sink
}

// NewResultPipeline constructs a ResultPipeline.
func NewResultPipeline(opts ResultPipelineOptions) (*ResultPipeline, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("ClusterGateway is required")
	}
	if opts.Artifacts == nil {
		return nil, errors.New("ArtifactStore is required")
	}
	ttl := opts.UploadTTL
	if ttl <= 0 {
		ttl = DefaultUploadTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultPipeline{
		repo:      opts.Repo,
		gateway:   opts.Gateway,
		artifacts: opts.Artifacts,
		uploadTTL: ttl,
		maxBytes:  opts.MaxUploadBytes,
		logger:    logger.With("component", "result_pipeline"),
		metrics:   opts.Metrics,
	}, nil
}

type artifactOutcome struct {
	kind model.ArtifactKind
	err  error
}

// Collect uploads every artifact of job, marks the job COMPLETED and then cleans
// the remote scratch space. Running it again for a job that is already COMPLETED
// re-issues the uploads and leaves the row untouched. A job that became CANCELLED
// or FAILED meanwhile yields model.ErrJobTerminal and its scratch space is kept.
func (p *ResultPipeline) Collect(ctx context.Context, job *model.Job) error {
	if job == nil || job.ID == "" {
		return errors.New("job is required")
	}
	start := time.Now()
	err := p.collect(ctx, job)

	result := metrics.ResultFor(err)
	if errors.Is(err, ErrPartialCollection) {
		result = metrics.ResultPartial
	}
	metrics.Emit(p.metrics, metrics.Observation{
		Name:     metrics.CollectCount,
		Timer:    metrics.CollectDuration,
		Result:   result,
		Duration: time.Since(start),
		Err:      err,
	})
	return err
}

func (p *ResultPipeline) collect(ctx context.Context, job *model.Job) error {
	if err := p.uploadAll(ctx, job.ID); err != nil {
		return err
	}

	// Scratch space is only released once the row says COMPLETED; a job left
	// RUNNING must keep its outputs for the next tick.
	_, err := p.repo.Update(ctx, job.ID, model.JobUpdate{Status: model.StatusPtr(model.JobStatusCompleted)})
	switch {
	case err == nil:
		p.clean(ctx, job.ID)
		p.logger.InfoContext(ctx, "job results collected", "job_id", job.ID)
		return nil
	case errors.Is(err, model.ErrJobTerminal):
		return p.settleTerminal(ctx, job.ID, err)
	default:
		return fmt.Errorf("mark job completed: %w", err)
	}
}

// settleTerminal decides a completion write refused because the row is
// terminal. An already COMPLETED row is a rerun; any other terminal status
// means the job was cancelled or failed underneath us.
func (p *ResultPipeline) settleTerminal(ctx context.Context, jobID string, writeErr error) error {
	current, err := p.repo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("reload job after completion conflict: %w", errors.Join(writeErr, err))
	}
	if current.Status != model.JobStatusCompleted {
		p.logger.InfoContext(ctx, "job reached another terminal status during collection",
			"job_id", jobID, "status", current.Status)
		return fmt.Errorf("mark job completed: %w", writeErr)
	}
	p.clean(ctx, jobID)
	p.logger.DebugContext(ctx, "job already completed; completion not rewritten", "job_id", jobID)
	return nil
}

// uploadAll runs one upload per artifact kind and waits for all of them.
// A failed upload does not cancel its sibling; cancelling ctx cancels both.
func (p *ResultPipeline) uploadAll(ctx context.Context, jobID string) error {
	kinds := model.ArtifactKinds()

	var (
		g        errgroup.Group
		mu       sync.Mutex
		outcomes = make([]artifactOutcome, 0, len(kinds))
	)
	g.SetLimit(len(kinds))
	for _, kind := range kinds {
		g.Go(func() error {
			err := p.uploadOne(ctx, jobID, kind)
			mu.Lock()
			outcomes = append(outcomes, artifactOutcome{kind: kind, err: err})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, o := range outcomes {
		if o.err != nil {
			p.logger.WarnContext(ctx, "artifact upload failed",
				"job_id", jobID, "artifact", o.kind, "error", o.err)
			errs = append(errs, fmt.Errorf("%s: %w", o.kind, o.err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: job %s: %w", ErrPartialCollection, jobID, errors.Join(errs...))
	}
	return nil
}

func (p *ResultPipeline) uploadOne(ctx context.Context, jobID string, kind model.ArtifactKind) error {
	cred, err := p.artifacts.MintUploadCredential(ctx, model.UploadCredentialRequest{
		Path:        kind.UploadPath(jobID),
		Constraints: model.UploadConstraints{MaxBytes: p.maxBytes},
		TTL:         p.uploadTTL,
	})
	if err != nil {
		return fmt.Errorf("mint upload credential: %w", err)
	}
	if !cred.Valid() {
		return errors.New("mint upload credential: empty credential")
	}

	res, err := p.gateway.Upload(ctx, cluster.UploadRequest{
		JobID:      jobID,
		FileType:   kind.FileType(),
		Credential: cred,
	})
	if err != nil {
		return err
	}
	if !res.OK() {
		if res.Message != "" {
			return fmt.Errorf("upload returned status %d: %s", res.StatusCode, res.Message)
		}
		return fmt.Errorf("upload returned status %d", res.StatusCode)
	}
	return nil
}

// clean releases remote scratch space. Failures are logged and never block completion.
func (p *ResultPipeline) clean(ctx context.Context, jobID string) {
	ack, err := p.gateway.Clean(ctx, cluster.CleanRequest{JobID: jobID})
	if err == nil {
		err = ack.Err(cluster.ActionClean)
	}
	if err != nil {
		p.logger.WarnContext(ctx, "remote cleanup failed; scratch space may leak",
			"job_id", jobID, "error", err)
	}
}

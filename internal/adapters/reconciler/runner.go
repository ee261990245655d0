// Package reconciler provides the adapter that wires and runs the reconciliation loop.
package reconciler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/molcalc/chemjobs/config"
	"github.com/molcalc/chemjobs/internal/core"
	"github.com/molcalc/chemjobs/internal/data"
	"github.com/molcalc/chemjobs/internal/observability/statsd"
	"github.com/molcalc/chemjobs/internal/service"
)

// Runner owns the reconciler service and the scheduler that fires it.
type Runner struct {
	reconciler *service.ReconcilerService
	scheduler  *service.Scheduler
	logger     *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB        *sql.DB               // Required unless Repo is set
	Redis     redis.UniversalClient // Optional: enables the per-job lock
	Gateway   core.ClusterGateway   // Required
	Artifacts core.ArtifactStore    // Required
	Config    config.ReconcilerConfig
	Notifier  core.FailureNotifier
	Logger    *slog.Logger
	Metrics   statsd.Sink

	UploadTTL      time.Duration
	MaxUploadBytes int64

	// Optional dependency injection for testing/decoupling
	Repo     core.JobRepository
	TickLock core.TickLocker
	Locks    core.LockRepository
	Clock    func() time.Time
}

// NewRunner creates a new reconciler runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	rec, err := wireReconcilerService(opts)
	if err != nil {
		return nil, fmt.Errorf("wire reconciler service: %w", err)
	}

	sched, err := service.NewScheduler(service.SchedulerOptions{
		Runner:     rec,
		Interval:   opts.Config.Interval,
		RunOnStart: opts.Config.RunOnStart,
		Jitter:     true,
		Logger:     opts.Logger,
		Metrics:    opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire scheduler: %w", err)
	}

	return &Runner{reconciler: rec, scheduler: sched, logger: opts.Logger}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && opts.Repo == nil {
		return errors.New("database connection is required")
	}
	if opts.Gateway == nil {
		return errors.New("cluster gateway is required")
	}
	if opts.Artifacts == nil {
		return errors.New("artifact store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = statsd.Nop{}
	}
	opts.Config.Sanitize()
	return nil
}

// wireReconcilerService wires up all dependencies for the reconciler service.
func wireReconcilerService(opts RunnerOptions) (*service.ReconcilerService, error) {
	repo := opts.Repo
	tickLock := opts.TickLock
	if repo == nil {
		jobRepo := data.NewJobRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
		repo = jobRepo
		if tickLock == nil {
			tickLock = data.NewTickLock(jobRepo)
		}
	}

	locks := opts.Locks
	if locks == nil && opts.Redis != nil {
		locks = data.NewRedisLockRepo(opts.Redis)
	}
	var locker *service.JobLocker
	if locks != nil {
		locker = service.NewJobLocker(locks, opts.Config.JobLockTTL, opts.Logger)
	} else {
		opts.Logger.Warn("redis unavailable; per-job lock disabled, relying on conditional updates")
	}

	pipeline, err := service.NewResultPipeline(service.ResultPipelineOptions{
		Repo:           repo,
		Gateway:        opts.Gateway,
		Artifacts:      opts.Artifacts,
		UploadTTL:      opts.UploadTTL,
		MaxUploadBytes: opts.MaxUploadBytes,
		Logger:         opts.Logger,
		Metrics:        opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("result pipeline: %w", err)
	}

	return service.NewReconcilerService(service.ReconcilerServiceOptions{
		Repo:     repo,
		Gateway:  opts.Gateway,
		Results:  pipeline,
		TickLock: tickLock,
		Locker:   locker,
		Notifier: opts.Notifier,
		Config:   opts.Config,
		Clock:    opts.Clock,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
	})
}

// Run starts the reconciliation loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reconciler runner")
	return r.scheduler.Run(ctx)
}

// RunOnce runs a single tick, refusing to overlap one already in flight.
func (r *Runner) RunOnce(ctx context.Context) (service.TickSummary, error) {
	return r.scheduler.RunOnce(ctx)
}

// Dropped reports timer fires skipped because a tick was still running.
func (r *Runner) Dropped() int64 {
	return r.scheduler.Dropped()
}

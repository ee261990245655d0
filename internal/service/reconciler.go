package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/molcalc/chemjobs/config"
	"github.com/molcalc/chemjobs/internal/core"
	"github.com/molcalc/chemjobs/internal/domain/cluster"
	"github.com/molcalc/chemjobs/internal/domain/model"
	apperrors "github.com/molcalc/chemjobs/internal/errors"
	obserrors "github.com/molcalc/chemjobs/internal/observability/errors"
	"github.com/molcalc/chemjobs/internal/observability/metrics"
	"github.com/molcalc/chemjobs/internal/observability/notify"
	"github.com/molcalc/chemjobs/internal/observability/statsd"
)

// ErrReconcileJobs wraps the per-job failures of a tick that otherwise ran to completion.
var ErrReconcileJobs = apperrors.NewSentinel("reconcile_jobs", "one or more jobs failed to reconcile")

// ResultCollector finalises a job the cluster reported as completed.
type ResultCollector interface {
	Collect(ctx context.Context, job *model.Job) error
}

// ReconcilerServiceOptions groups dependencies for ReconcilerService.
type ReconcilerServiceOptions struct {
	Repo    core.JobRepository  // Required: job repository
	Gateway core.ClusterGateway // Required: remote executor gateway
	Results ResultCollector     // Required: result collection pipeline

	TickLock core.TickLocker      // Optional: cross-replica tick lock
	Locker   *JobLocker           // Optional: per-job lock shared with cancellation
	Notifier core.FailureNotifier // Optional: operator alerts

	Config  config.ReconcilerConfig
	Clock   func() time.Time
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// ReconcilerService pulls remote job state into the job repository.
type ReconcilerService struct {
	repo     core.JobRepository
	gateway  core.ClusterGateway
	results  ResultCollector
	tickLock core.TickLocker
	locker   *JobLocker
	notifier core.FailureNotifier
	config   config.ReconcilerConfig
	now      func() time.Time
	logger   *slog.Logger
	metrics  statsd.Sink
}

// Per-job outcomes recorded in TickSummary and the job_outcome metric.
const (
	OutcomeUnchanged = "unchanged"
	OutcomePending   = "pending"
	OutcomeRunning   = "running"
	OutcomeCompleted = "completed"
	OutcomePartial   = "partial"
	OutcomeFailed    = "failed"
	OutcomeTerminal  = "terminal"
	OutcomeBusy      = "busy"
	OutcomeUnknown   = "unknown"
	OutcomeError     = "error"
)

// TickSummary reports what one tick did.
type TickSummary struct {
	// Skipped is true when another replica held the tick lock.
	Skipped  bool
	Batch    int
	Outcomes map[string]int
	Duration time.Duration
}

// Count returns the number of jobs that ended the tick with outcome.
func (s TickSummary) Count(outcome string) int {
	return s.Outcomes[outcome]
}

// NewReconcilerService constructs a new ReconcilerService.
func NewReconcilerService(opts ReconcilerServiceOptions) (*ReconcilerService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("ClusterGateway is required")
	}
	if opts.Results == nil {
		return nil, errors.New("ResultCollector is required")
	}

	cfg := opts.Config
	cfg.Sanitize()

	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reconciler")
	logger.Debug("ReconcilerService initialized",
		"interval", cfg.Interval,
		"tick_timeout", cfg.TickTimeout,
		"collect_concurrency", cfg.CollectConcurrency,
	)

	return &ReconcilerService{
		repo:     opts.Repo,
		gateway:  opts.Gateway,
		results:  opts.Results,
		tickLock: opts.TickLock,
		locker:   opts.Locker,
		notifier: opts.Notifier,
		config:   cfg,
		now:      now,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

// Tick runs one reconciliation pass. A failed check call aborts the tick before any
// job is written. Per-job failures are joined into the returned error after every
// entry was processed.
func (s *ReconcilerService) Tick(ctx context.Context) (TickSummary, error) {
	start := time.Now()
	summary := TickSummary{Outcomes: map[string]int{}}

	ctx, cancel := context.WithTimeout(ctx, s.config.TickTimeout)
	defer cancel()

	var err error
	if s.tickLock == nil {
		err = s.tick(ctx, &summary)
	} else {
		var ran bool
		ran, err = s.tickLock.WithTickLock(ctx, func(ctx context.Context) error {
			return s.tick(ctx, &summary)
		})
		summary.Skipped = !ran && err == nil
	}
	summary.Duration = time.Since(start)

	s.emitTickMetrics(summary, err)
	if err != nil && !isContextCancellation(err) {
		severity := notify.SeverityCritical
		if errors.Is(err, ErrReconcileJobs) {
			severity = notify.SeverityWarning
		}
		s.notify(ctx, notify.JobFailurePayload{
			Scope:    notify.ScopeTick,
			Error:    err.Error(),
			Severity: severity,
			Metadata: map[string]string{"batch_size": fmt.Sprint(summary.Batch)},
		}, err)
	}
	if summary.Skipped {
		s.logger.InfoContext(ctx, "tick skipped; another replica holds the tick lock")
	}
	return summary, err
}

func (s *ReconcilerService) tick(ctx context.Context, summary *TickSummary) error {
	jobs, err := s.repo.ListByStatus(ctx, model.NonTerminalStatuses())
	if err != nil {
		return fmt.Errorf("snapshot non-terminal jobs: %w", err)
	}
	summary.Batch = len(jobs)
	if len(jobs) == 0 {
		s.logger.DebugContext(ctx, "no non-terminal jobs; skipping check")
		return nil
	}

	report, err := s.gateway.Check(ctx, cluster.NewCheckRequest(jobs))
	if err != nil {
		return fmt.Errorf("check %d jobs: %w", len(jobs), err)
	}

	byID := make(map[string]*model.Job, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(s.config.CollectConcurrency)
	record := func(outcome string, err error) {
		mu.Lock()
		defer mu.Unlock()
		summary.Outcomes[outcome]++
		if err != nil {
			errs = append(errs, err)
		}
	}

	for id, entry := range report {
		job, ok := byID[id]
		if !ok {
			s.logger.WarnContext(ctx, "check returned a job outside the batch", "job_id", id)
			record(OutcomeUnknown, nil)
			continue
		}
		g.Go(func() error {
			outcome, err := s.reconcileJob(ctx, job, entry)
			s.emitJobOutcome(outcome, err)
			if err != nil {
				err = fmt.Errorf("job %s: %w", job.ID, err)
			}
			record(outcome, err)
			return nil
		})
	}
	_ = g.Wait()

	for _, j := range jobs {
		if _, ok := report[j.ID]; !ok {
			summary.Outcomes[OutcomeUnchanged]++
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %d of %d: %w", ErrReconcileJobs, len(errs), len(jobs), errors.Join(errs...))
	}
	s.logger.InfoContext(ctx, "tick complete", "batch_size", len(jobs), "outcomes", summary.Outcomes)
	return nil
}

// reconcileJob applies one report entry under the per-job lock.
func (s *ReconcilerService) reconcileJob(ctx context.Context, job *model.Job, entry cluster.StatusReport) (string, error) {
	if entry.IsUnchanged() {
		return OutcomeUnchanged, nil
	}
	if entry.IsPending() {
		return OutcomePending, nil
	}

	var outcome string
	err := s.locker.WithJobLock(ctx, job.ID, func(ctx context.Context) error {
		// The snapshot predates the lock; a cancel may have landed since.
		current, err := s.repo.GetByID(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("reload job: %w", err)
		}
		if current.IsTerminal() {
			s.logger.DebugContext(ctx, "job turned terminal after the snapshot",
				"job_id", job.ID, "status", current.Status)
			return model.ErrJobTerminal
		}
		switch {
		case entry.IsCompleted():
			outcome, err = s.applyCompleted(ctx, current, entry)
		case entry.IsRunning():
			outcome, err = s.applyRunning(ctx, current, entry)
		default:
			outcome, err = s.applyFailed(ctx, current, entry)
		}
		return err
	})
	switch {
	case IsJobBusy(err):
		s.logger.InfoContext(ctx, "job locked by another operation; retrying next tick", "job_id", job.ID)
		return OutcomeBusy, nil
	case errors.Is(err, model.ErrJobTerminal):
		return OutcomeTerminal, nil
	case errors.Is(err, ErrPartialCollection):
		return OutcomePartial, err
	case err != nil:
		return OutcomeError, err
	}
	return outcome, nil
}

// applyCompleted records the remote timestamps and hands off to result collection.
// The status itself only becomes COMPLETED once every artifact is confirmed.
func (s *ReconcilerService) applyCompleted(ctx context.Context, job *model.Job, entry cluster.StatusReport) (string, error) {
	upd := s.timestampUpdate(job, entry, entry.Kind == cluster.ReportLegacyCompleted)
	current := job
	if !upd.IsEmpty() {
		updated, err := s.repo.Update(ctx, job.ID, upd)
		if err != nil {
			return OutcomeError, fmt.Errorf("record completion times: %w", err)
		}
		current = updated
	}

	if err := s.results.Collect(ctx, current); err != nil {
		if errors.Is(err, ErrPartialCollection) {
			s.notify(ctx, jobPayload(current, notify.ScopeCollection, notify.SeverityWarning, err), err)
		}
		return OutcomeError, err
	}
	return OutcomeCompleted, nil
}

func (s *ReconcilerService) applyRunning(ctx context.Context, job *model.Job, entry cluster.StatusReport) (string, error) {
	upd := s.timestampUpdate(job, entry, false)
	upd.Finished = nil
	if job.Status == model.JobStatusSubmitted {
		upd.Status = model.StatusPtr(model.JobStatusRunning)
	}
	if upd.IsEmpty() {
		return OutcomeRunning, nil
	}
	if _, err := s.repo.Update(ctx, job.ID, upd); err != nil {
		return OutcomeError, fmt.Errorf("mark running: %w", err)
	}
	return OutcomeRunning, nil
}

// applyFailed writes FAILED, the remote timestamps and the diagnostic in one update.
func (s *ReconcilerService) applyFailed(ctx context.Context, job *model.Job, entry cluster.StatusReport) (string, error) {
	msg := entry.FailureMessage()
	upd := s.timestampUpdate(job, entry, true)
	s.dropSkewedFinish(ctx, job, &upd)
	upd.Status = model.StatusPtr(model.JobStatusFailed)
	upd.ErrorMessage = &msg

	updated, err := s.repo.Update(ctx, job.ID, upd)
	if err != nil {
		return OutcomeError, fmt.Errorf("mark failed: %w", err)
	}
	s.logger.InfoContext(ctx, "remote job failed", "job_id", job.ID, "error_message", msg)
	s.notify(ctx, notify.JobFailurePayload{
		JobID:    updated.ID,
		UserID:   updated.UserID,
		JobName:  updated.Name,
		Scope:    notify.ScopeJob,
		Error:    msg,
		Severity: notify.SeverityWarning,
		Metadata: map[string]string{"state": entry.State, "exitcode": entry.ExitCode, "reason": entry.Reason},
	}, nil)
	return OutcomeFailed, nil
}

// timestampUpdate carries only the timestamps the row does not have yet, so a
// repeated report never trips the write-once guard. When defaultFinished is set and
// neither the row nor the report has a finish time, the current time is used.
func (s *ReconcilerService) timestampUpdate(job *model.Job, entry cluster.StatusReport, defaultFinished bool) model.JobUpdate {
	var upd model.JobUpdate
	if job.Started == nil && entry.Started != nil {
		upd.Started = entry.Started
	}
	if job.Finished == nil {
		switch {
		case entry.Finished != nil:
			upd.Finished = entry.Finished
		case defaultFinished:
			now := s.now().UTC()
			upd.Finished = &now
		}
	}
	return upd
}

// dropSkewedFinish clears a finish time that precedes the start time. The
// remote clock is not ours to fix; the status and diagnostic still land.
func (s *ReconcilerService) dropSkewedFinish(ctx context.Context, job *model.Job, upd *model.JobUpdate) {
	if upd.Finished == nil {
		return
	}
	started := upd.Started
	if started == nil {
		started = job.Started
	}
	if started == nil || !upd.Finished.Before(*started) {
		return
	}
	s.logger.WarnContext(ctx, "remote finish time precedes start time; dropping it",
		"job_id", job.ID, "started", started.UTC(), "finished", upd.Finished.UTC())
	upd.Finished = nil
}

func jobPayload(job *model.Job, scope, severity string, err error) notify.JobFailurePayload {
	return notify.JobFailurePayload{
		JobID:    job.ID,
		UserID:   job.UserID,
		JobName:  job.Name,
		Scope:    scope,
		Error:    err.Error(),
		Severity: severity,
	}
}

func (s *ReconcilerService) notify(ctx context.Context, payload notify.JobFailurePayload, err error) {
	if s.notifier == nil {
		return
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = s.now().UTC()
	}
	if err != nil && payload.ErrorClass == "" {
		payload.ErrorClass = obserrors.Classify(err)
	}
	s.notifier.NotifyJobFailure(ctx, payload)
}

func (s *ReconcilerService) emitTickMetrics(summary TickSummary, err error) {
	if s.metrics == nil {
		return
	}
	result := metrics.ResultFor(err)
	switch {
	case err != nil:
	case summary.Skipped:
		result = metrics.ResultSkipped
	case summary.Batch == 0:
		result = metrics.ResultNoop
	}
	metrics.Emit(s.metrics, metrics.Observation{
		Name:     metrics.TickCount,
		Timer:    metrics.TickDuration,
		Result:   result,
		Duration: summary.Duration,
		Err:      err,
	})
	if summary.Skipped {
		return
	}
	s.metrics.Gauge(metrics.TickBatchSize, float64(summary.Batch), nil)
	if err == nil {
		s.metrics.Gauge(metrics.TickLastSuccess, float64(s.now().Unix()), nil)
	}
}

func (s *ReconcilerService) emitJobOutcome(outcome string, err error) {
	if outcome == OutcomeUnchanged {
		return
	}
	result := metrics.ResultFor(err)
	if outcome == OutcomePartial {
		result = metrics.ResultPartial
	}
	metrics.Emit(s.metrics, metrics.Observation{
		Name:   metrics.JobOutcome,
		Result: result,
		Err:    err,
		Tags:   map[string]string{"outcome": outcome},
	})
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

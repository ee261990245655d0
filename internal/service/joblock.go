package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/molcalc/chemjobs/internal/core"
	apperrors "github.com/molcalc/chemjobs/internal/errors"
)

// ErrJobBusy is returned when another operation holds the per-job lock.
var ErrJobBusy = apperrors.NewSentinel("job_busy", "job is locked by another operation")

const (
	jobLockPrefix     = "chemjobs:joblock:"
	defaultJobLockTTL = 10 * time.Minute
	releaseTimeout    = 5 * time.Second
)

// JobLocker serialises cancel and reconcile on a single job id.
// A nil *JobLocker, or one without a repository, runs fn unguarded and leaves
// the conditional repository update as the only guard.
type JobLocker struct {
	repo   core.LockRepository
	ttl    time.Duration
	logger *slog.Logger
}

// NewJobLocker returns a JobLocker over repo. A non-positive ttl uses the default.
func NewJobLocker(repo core.LockRepository, ttl time.Duration, logger *slog.Logger) *JobLocker {
	if ttl <= 0 {
		ttl = defaultJobLockTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobLocker{repo: repo, ttl: ttl, logger: logger.With("component", "job_locker")}
}

// JobLockKey returns the lock key for jobID.
func JobLockKey(jobID string) string {
	return jobLockPrefix + jobID
}

// WithJobLock runs fn while holding the lock for jobID.
// It returns ErrJobBusy without calling fn when the lock is held elsewhere.
// When the lock backend itself fails, fn still runs.
func (l *JobLocker) WithJobLock(ctx context.Context, jobID string, fn func(ctx context.Context) error) error {
	if l == nil || l.repo == nil {
		return fn(ctx)
	}

	key := JobLockKey(jobID)
	token := []byte(uuid.NewString())

	acquired, err := l.repo.SetIfNotExists(ctx, key, token, l.ttl)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		l.logger.WarnContext(ctx, "job lock unavailable; relying on conditional update",
			"job_id", jobID, "error", err)
		return fn(ctx)
	}
	if !acquired {
		return fmt.Errorf("%w: %s", ErrJobBusy, jobID)
	}

	defer l.release(ctx, jobID, key, token)
	return fn(ctx)
}

func (l *JobLocker) release(ctx context.Context, jobID, key string, token []byte) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	released, err := l.repo.DeleteIfEquals(releaseCtx, key, token)
	switch {
	case err != nil:
		l.logger.WarnContext(ctx, "release job lock failed", "job_id", jobID, "error", err)
	case !released:
		// TTL expired mid-operation and someone else may now hold it.
		l.logger.WarnContext(ctx, "job lock expired before release", "job_id", jobID, "ttl", l.ttl)
	}
}

// IsJobBusy reports whether err came from a held per-job lock.
func IsJobBusy(err error) bool {
	return errors.Is(err, ErrJobBusy)
}

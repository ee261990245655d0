package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/molcalc/chemjobs/internal/errors"
	"github.com/molcalc/chemjobs/internal/observability/statsd"
)

// ErrTickInProgress is returned by RunOnce when a tick is already executing.
var ErrTickInProgress = apperrors.NewSentinel("tick_in_progress", "reconciliation tick already in progress")

// TickRunner executes one reconciliation tick.
type TickRunner interface {
	Tick(ctx context.Context) (TickSummary, error)
}

// SchedulerOptions groups dependencies for Scheduler.
type SchedulerOptions struct {
	Runner     TickRunner    // Required
	Interval   time.Duration // Required: wall-clock period between fires
	RunOnStart bool
	// Jitter enables a random startup delay of up to 10% of Interval.
	Jitter  bool
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// Scheduler fires reconciliation ticks on a fixed interval and never lets two
// ticks overlap within the process. A fire that lands while a tick is still
// running is dropped and counted.
type Scheduler struct {
	runner     TickRunner
	interval   time.Duration
	runOnStart bool
	jitter     bool
	logger     *slog.Logger
	metrics    statsd.Sink

	running  atomic.Bool
	dropped  atomic.Int64
	inFlight sync.WaitGroup

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler constructs a Scheduler.
func NewScheduler(opts SchedulerOptions) (*Scheduler, error) {
	if opts.Runner == nil {
		return nil, errors.New("TickRunner is required")
	}
	if opts.Interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner:     opts.Runner,
		interval:   opts.Interval,
		runOnStart: opts.RunOnStart,
		jitter:     opts.Jitter,
		logger:     logger.With("component", "reconcile_scheduler"),
		metrics:    opts.Metrics,
	}, nil
}

// RunOnce runs a single tick immediately unless one is already executing.
func (s *Scheduler) RunOnce(ctx context.Context) (TickSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return TickSummary{}, ErrTickInProgress
	}
	defer s.running.Store(false)
	return s.runner.Tick(ctx)
}

// Dropped returns how many timer fires were dropped because a tick was still running.
func (s *Scheduler) Dropped() int64 {
	return s.dropped.Load()
}

// Start launches the timer loop in the background. It fails if the loop is already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return errors.New("scheduler already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		_ = s.Run(loopCtx)
	}(s.done)
	return nil
}

// Stop cancels the loop and waits for it and any in-flight tick to return, or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the loop until ctx is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reconcile scheduler", "interval", s.interval)
	defer s.inFlight.Wait()

	if s.jitter {
		s.waitWithJitter(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if s.runOnStart && ctx.Err() == nil {
		s.fire(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reconcile scheduler stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

// fire starts a tick in the background, or drops the fire when one is running.
func (s *Scheduler) fire(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		n := s.dropped.Add(1)
		s.logger.WarnContext(ctx, "tick still running; dropping timer fire", "dropped_total", n)
		if s.metrics != nil {
			s.metrics.Count("reconciler.fire_dropped", 1, nil)
		}
		return
	}

	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		defer s.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				s.logger.ErrorContext(ctx, "reconcile tick panicked", "panic", r)
			}
		}()

		summary, err := s.runner.Tick(ctx)
		s.logTick(ctx, summary, err)
	}()
}

func (s *Scheduler) logTick(ctx context.Context, summary TickSummary, err error) {
	switch {
	case err == nil:
		s.logger.DebugContext(ctx, "tick finished",
			"batch_size", summary.Batch, "skipped", summary.Skipped, "duration", summary.Duration)
	case isContextCancellation(err):
		s.logger.DebugContext(ctx, "tick cancelled by context", "error", err)
	default:
		s.logger.ErrorContext(ctx, "tick failed", "batch_size", summary.Batch, "error", err)
	}
}

// waitWithJitter adds a random delay up to 10% of the interval to prevent thundering herd.
func (s *Scheduler) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

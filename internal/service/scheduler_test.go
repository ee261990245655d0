package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingRunner holds every tick until release is closed.
type blockingRunner struct {
	calls   atomic.Int32
	active  atomic.Int32
	maxSeen atomic.Int32
	started chan struct{}
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (r *blockingRunner) Tick(ctx context.Context) (TickSummary, error) {
	r.calls.Add(1)
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		old := r.maxSeen.Load()
		if n <= old || r.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}
	select {
	case r.started <- struct{}{}:
	default:
	}
	select {
	case <-r.release:
	case <-ctx.Done():
		return TickSummary{}, ctx.Err()
	}
	return TickSummary{Batch: 1}, nil
}

type tickFunc func(ctx context.Context) (TickSummary, error)

func (f tickFunc) Tick(ctx context.Context) (TickSummary, error) { return f(ctx) }

func TestNewScheduler(t *testing.T) {
	_, err := NewScheduler(SchedulerOptions{Interval: time.Minute})
	require.Error(t, err)
	_, err = NewScheduler(SchedulerOptions{Runner: newBlockingRunner()})
	require.Error(t, err)
	s, err := NewScheduler(SchedulerOptions{Runner: newBlockingRunner(), Interval: time.Minute})
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestScheduler_RunOnce_SingleFlight(t *testing.T) {
	runner := newBlockingRunner()
	s, err := NewScheduler(SchedulerOptions{Runner: runner, Interval: time.Hour})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background())
		done <- err
	}()
	<-runner.started

	_, err = s.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrTickInProgress)

	close(runner.release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), runner.calls.Load())

	summary, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Batch)
}

func TestScheduler_DropsOverlappingFires(t *testing.T) {
	runner := newBlockingRunner()
	sink := newCountingSink()
	s, err := NewScheduler(SchedulerOptions{
		Runner:     runner,
		Interval:   5 * time.Millisecond,
		RunOnStart: true,
		Metrics:    sink,
	})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	<-runner.started

	require.Eventually(t, func() bool { return s.Dropped() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), runner.calls.Load(), "no second tick while the first is running")

	close(runner.release)
	require.Eventually(t, func() bool { return runner.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))

	assert.Equal(t, int32(1), runner.maxSeen.Load())
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.GreaterOrEqual(t, sink.counts["reconciler.fire_dropped"], 3)
}

func TestScheduler_StartStop(t *testing.T) {
	var ticks atomic.Int32
	runner := tickFunc(func(context.Context) (TickSummary, error) {
		ticks.Add(1)
		return TickSummary{}, errors.New("check failed")
	})
	s, err := NewScheduler(SchedulerOptions{Runner: runner, Interval: 10 * time.Millisecond, RunOnStart: true})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()), "second start is rejected")

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, 2*time.Second, 5*time.Millisecond,
		"failed ticks never stop the loop")

	require.NoError(t, s.Stop(context.Background()))
	after := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, ticks.Load())

	require.NoError(t, s.Stop(context.Background()), "stop is idempotent")
}

func TestScheduler_StopWaitsForInFlightTick(t *testing.T) {
	runner := newBlockingRunner()
	s, err := NewScheduler(SchedulerOptions{Runner: runner, Interval: time.Hour, RunOnStart: true})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	<-runner.started

	// The in-flight tick observes cancellation through its context.
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, int32(0), runner.active.Load())
}

func TestScheduler_Run_ReturnsNilOnCancel(t *testing.T) {
	s, err := NewScheduler(SchedulerOptions{
		Runner:   tickFunc(func(context.Context) (TickSummary, error) { return TickSummary{}, nil }),
		Interval: time.Hour,
		Jitter:   true,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx))

	dctx, dcancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer dcancel()
	<-dctx.Done()
	assert.ErrorIs(t, s.Run(dctx), context.DeadlineExceeded)
}

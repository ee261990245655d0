package failurenotifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/molcalc/chemjobs/internal/observability/notify"
)

func captureSink(mu *sync.Mutex, out *[]notify.JobFailurePayload) notify.Sink {
	return notify.SinkFunc(func(_ context.Context, payload notify.JobFailurePayload) error {
		mu.Lock()
		defer mu.Unlock()
		*out = append(*out, payload)
		return nil
	})
}

func TestServiceNotifyJobFailure(t *testing.T) {
	var (
		mu       sync.Mutex
		received []notify.JobFailurePayload
	)
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{Name: "a", Sink: captureSink(&mu, &received)},
			{Name: "b", Sink: captureSink(&mu, &received)},
			{Name: "nil"},
		},
	})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "123", Scope: notify.ScopeJob})

	if len(received) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(received))
	}
	if received[0].Severity != notify.SeverityCritical {
		t.Fatalf("expected severity to default to critical, got %s", received[0].Severity)
	}
	if received[0].OccurredAt.IsZero() {
		t.Fatal("expected OccurredAt to be stamped")
	}
}

func TestServiceDisabled(t *testing.T) {
	svc := NewService(Options{})
	if svc.Enabled() {
		t.Fatal("expected Enabled() to be false when no sinks registered")
	}
	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "x"})

	var nilSvc *Service
	if nilSvc.Enabled() {
		t.Fatal("nil service must report disabled")
	}
}

func TestServiceLogsErrors(t *testing.T) {
	svc := NewService(Options{
		Sinks: []SinkRegistration{{
			Name: "fail",
			Sink: notify.SinkFunc(func(context.Context, notify.JobFailurePayload) error {
				return errors.New("boom")
			}),
		}},
	})
	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "123"})
}

func TestServiceScopeFilter(t *testing.T) {
	var (
		mu       sync.Mutex
		received []notify.JobFailurePayload
	)
	svc := NewService(Options{
		Sinks:  []SinkRegistration{{Name: "capture", Sink: captureSink(&mu, &received)}},
		Scopes: []string{notify.ScopeTick},
	})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "j", Scope: notify.ScopeJob})
	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{Scope: notify.ScopeTick})

	if len(received) != 1 || received[0].Scope != notify.ScopeTick {
		t.Fatalf("expected only the tick alert, got %+v", received)
	}
}

func TestServiceDeliversAfterCallerCancel(t *testing.T) {
	var sinkErr error
	svc := NewService(Options{
		Sinks: []SinkRegistration{{
			Name: "ctx",
			Sink: notify.SinkFunc(func(ctx context.Context, _ notify.JobFailurePayload) error {
				sinkErr = ctx.Err()
				return nil
			}),
		}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.NotifyJobFailure(ctx, notify.JobFailurePayload{Scope: notify.ScopeTick})

	if sinkErr != nil {
		t.Fatalf("delivery context should not inherit cancellation, got %v", sinkErr)
	}
}

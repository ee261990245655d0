// Package failurenotifier fans operator alerts out to every configured sink.
package failurenotifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/molcalc/chemjobs/internal/observability/notify"
)

const defaultDeliveryTimeout = 10 * time.Second

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Scopes limits delivery to the listed notify.Scope* values. Empty means all scopes.
	Scopes []string
	// DeliveryTimeout bounds each sink call. Delivery is detached from caller cancellation
	// so an alert raised during shutdown still goes out.
	DeliveryTimeout time.Duration
}

// Service dispatches failure events to all registered sinks.
type Service struct {
	logger  *slog.Logger
	sinks   []SinkRegistration
	scopes  map[string]struct{}
	timeout time.Duration
}

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	var scopes map[string]struct{}
	if len(opts.Scopes) > 0 {
		scopes = make(map[string]struct{}, len(opts.Scopes))
		for _, s := range opts.Scopes {
			scopes[s] = struct{}{}
		}
	}

	timeout := opts.DeliveryTimeout
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}

	return &Service{
		logger:  logger.With("component", "failure_notifier"),
		sinks:   sinks,
		scopes:  scopes,
		timeout: timeout,
	}
}

// NotifyJobFailure fans the payload out to all sinks and waits for every delivery.
func (s *Service) NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload) {
	if !s.Enabled() {
		return
	}
	if s.scopes != nil {
		if _, ok := s.scopes[payload.Scope]; !ok {
			s.logger.DebugContext(ctx, "skipping notification outside configured scopes",
				"job_id", payload.JobID,
				"scope", payload.Scope,
			)
			return
		}
	}

	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = time.Now().UTC()
	}

	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendJobFailure(deliverCtx, payload); err != nil {
				s.logger.Error("failure notifier delivery error",
					"sink", entry.Name,
					"job_id", payload.JobID,
					"scope", payload.Scope,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}

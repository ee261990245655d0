package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the ops probe server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeReconciler runs the periodic reconciliation loop.
	ServiceModeReconciler ServiceMode = "reconciler"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeReconciler}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeReconciler:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, reconciler)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

const (
	defaultReconcileInterval = 2 * time.Hour
	minReconcileInterval     = time.Minute
)

// ReconcilerConfig contains reconciliation loop configuration.
type ReconcilerConfig struct {
	// Interval is the wall-clock period between ticks.
	Interval time.Duration `env:"RECONCILER_INTERVAL" envDefault:"2h"`

	// RunOnStart runs one tick as soon as the loop starts instead of waiting a full interval.
	RunOnStart bool `env:"RECONCILER_RUN_ON_START" envDefault:"true"`

	// TickTimeout bounds a whole tick, including result collection for every completed job.
	TickTimeout time.Duration `env:"RECONCILER_TICK_TIMEOUT" envDefault:"30m"`

	// JobLockTTL is how long a per-job lock survives a crashed holder.
	JobLockTTL time.Duration `env:"RECONCILER_JOB_LOCK_TTL" envDefault:"10m"`

	// CollectConcurrency caps how many completed jobs collect results at once within a tick.
	CollectConcurrency int `env:"RECONCILER_COLLECT_CONCURRENCY" envDefault:"4"`
}

// Sanitize applies guardrails to reconciler configuration values.
func (r *ReconcilerConfig) Sanitize() {
	if r.Interval <= 0 {
		r.Interval = defaultReconcileInterval
	}
	if r.Interval < minReconcileInterval {
		r.Interval = minReconcileInterval
	}
	if r.TickTimeout <= 0 {
		r.TickTimeout = 30 * time.Minute
	}
	if r.JobLockTTL <= 0 {
		r.JobLockTTL = 10 * time.Minute
	}
	if r.CollectConcurrency < 1 {
		r.CollectConcurrency = 1
	}
	if r.CollectConcurrency > 32 {
		r.CollectConcurrency = 32
	}
}

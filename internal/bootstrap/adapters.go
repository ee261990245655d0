package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/molcalc/chemjobs/config"
	"github.com/molcalc/chemjobs/internal/adapters/artifacts"
	"github.com/molcalc/chemjobs/internal/adapters/cluster"
	"github.com/molcalc/chemjobs/internal/adapters/reconciler"
	"github.com/molcalc/chemjobs/internal/core"
	"github.com/molcalc/chemjobs/internal/observability/statsd"
)

// ClusterDeps groups the inputs for the cluster gateway.
type ClusterDeps struct {
	Config  config.ClusterConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// BuildClusterGateway selects the transport named by CLUSTER_TRANSPORT and wraps it in a Gateway.
// The returned closer releases transport resources (the shared SSH connection) and is never nil.
func BuildClusterGateway(ctx context.Context, deps ClusterDeps) (*cluster.Gateway, io.Closer, error) {
	transport, closer, err := buildTransport(ctx, deps.Config)
	if err != nil {
		return nil, nil, err
	}

	selector, err := cluster.NewReportSelector(deps.Config.ReportPath)
	if err != nil {
		_ = closer.Close()
		return nil, nil, fmt.Errorf("cluster report path: %w", err)
	}

	gw, err := cluster.NewGateway(cluster.GatewayOptions{
		Transport: transport,
		Timeout:   deps.Config.Timeout,
		RateLimit: deps.Config.RateLimit,
		Selector:  selector,
		Encoding:  cluster.Encoding(deps.Config.Encoding),
		Logger:    deps.Logger,
		Metrics:   deps.Metrics,
	})
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return gw, closer, nil
}

//nolint:ireturn // the transport is chosen at runtime.
func buildTransport(ctx context.Context, cfg config.ClusterConfig) (cluster.Transport, io.Closer, error) {
	if cfg.Transport != config.ClusterTransportHTTP && cfg.Loc == "" {
		return nil, nil, errors.New("CLUSTER_LOC is required")
	}

	switch cfg.Transport {
	case config.ClusterTransportExec, "":
		t, err := cluster.NewExecTransport(cluster.ExecConfig{
			Command: cluster.DefaultExecCommand(cfg.Host, cfg.Python, cfg.Loc),
		})
		if err != nil {
			return nil, nil, err
		}
		return t, nopCloser{}, nil
	case config.ClusterTransportSSH:
		t, err := cluster.NewSSHTransport(cluster.SSHConfig{
			Addr:           cfg.Host,
			User:           cfg.SSHUser,
			Command:        strings.Join([]string{cfg.Python, cfg.Loc}, " "),
			KeyFile:        cfg.SSHKeyFile,
			KnownHostsFile: cfg.SSHKnownHostsFile,
		})
		if err != nil {
			return nil, nil, err
		}
		return t, t, nil
	case config.ClusterTransportHTTP:
		t, err := cluster.NewHTTPTransport(ctx, cluster.HTTPConfig{
			URL:          cfg.HTTPURL,
			TokenURL:     cfg.HTTPTokenURL,
			ClientID:     cfg.HTTPClientID,
			ClientSecret: cfg.HTTPClientSecret,
			Timeout:      cfg.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return t, nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown cluster transport %q", cfg.Transport)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// BuildArtifactStore builds the result bucket client for the configured backend.
//
//nolint:ireturn // the backend is chosen at runtime.
func BuildArtifactStore(ctx context.Context, cfg config.ArtifactsConfig, logger *slog.Logger) (core.ArtifactStore, error) {
	store, err := artifacts.New(ctx, artifacts.Config{
		Backend:         artifacts.Backend(cfg.Backend),
		Bucket:          cfg.Bucket,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		UseSSL:          cfg.UseSSL,
		ForcePathStyle:  cfg.ForcePathStyle,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("artifact store: %w", err)
	}
	return store, nil
}

// ReconcilerConfig contains configuration for the reconciliation loop.
type ReconcilerConfig struct {
	Services ServiceContainer
	Config   *config.AppConfig
	Logger   *slog.Logger
}

// NewReconcilerRunner wires the reconciler runner from the shared service container.
func NewReconcilerRunner(cfg ReconcilerConfig) (*reconciler.Runner, error) {
	if cfg.Config == nil {
		return nil, errors.New("reconciler: app config is required")
	}
	var notifier core.FailureNotifier
	if fn := cfg.Services.Observability.FailureNotifier; fn != nil && fn.Enabled() {
		notifier = fn
	}
	return reconciler.NewRunner(reconciler.RunnerOptions{
		DB:             cfg.Services.DB,
		Redis:          cfg.Services.Redis,
		Gateway:        cfg.Services.Gateway,
		Artifacts:      cfg.Services.Artifacts,
		Config:         cfg.Config.Reconciler,
		Notifier:       notifier,
		Logger:         cfg.Logger,
		Metrics:        cfg.Services.Observability.Sink(),
		UploadTTL:      cfg.Config.Artifacts.UploadTTL,
		MaxUploadBytes: cfg.Config.Artifacts.MaxUploadBytes,
	})
}

// RunReconciler starts the reconciliation loop and blocks until ctx is cancelled.
func RunReconciler(ctx context.Context, cfg ReconcilerConfig) error {
	runner, err := NewReconcilerRunner(cfg)
	if err != nil {
		return fmt.Errorf("create reconciler runner: %w", err)
	}
	return runner.Run(ctx)
}

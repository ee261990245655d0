package bootstrap

import (
	"context"
	"testing"

	"github.com/molcalc/chemjobs/config"
	"github.com/molcalc/chemjobs/internal/observability/statsd"
)

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{
			name: "no services enabled",
			want: 0,
		},
		{
			name:  "http only",
			modes: []config.ServiceMode{config.ServiceModeHTTP},
			want:  1,
		},
		{
			name:  "all services enabled",
			modes: []config.ServiceMode{config.ServiceModeHTTP, config.ServiceModeReconciler},
			want:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelCapacity(enabled); got != tt.want {
				t.Fatalf("errorChannelCapacity(%v) = %d, want %d", tt.modes, got, tt.want)
			}
			if got := errorChannelBufferSize(enabled); got != tt.want+1 {
				t.Fatalf("errorChannelBufferSize(%v) = %d, want %d", tt.modes, got, tt.want+1)
			}
		})
	}
}

func TestGetEnabledServices(t *testing.T) {
	cfg := &config.AppConfig{Services: "http, reconciler"}
	got := GetEnabledServices(cfg)
	if len(got) != 2 || got[0] != "http" || got[1] != "reconciler" {
		t.Fatalf("unexpected services: %v", got)
	}

	if got := GetEnabledServices(&config.AppConfig{Services: "bogus"}); len(got) != 0 {
		t.Fatalf("expected no services for invalid config, got %v", got)
	}
	if err := ValidateServiceConfig(&config.AppConfig{Services: "bogus"}); err == nil {
		t.Fatal("expected validation error")
	}
	if err := ValidateServiceConfig(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuildFailureNotifier(t *testing.T) {
	disabled := buildFailureNotifier(nil, config.ObservabilityNotificationsConfig{})
	if disabled.Enabled() {
		t.Fatal("notifier without sinks must report disabled")
	}

	enabled := buildFailureNotifier(nil, config.ObservabilityNotificationsConfig{
		Enabled: true,
		Slack: config.SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: "https://hooks.slack.com/services/T000/B000/XXXX",
		},
	})
	if !enabled.Enabled() {
		t.Fatal("notifier with a slack sink must report enabled")
	}
}

func TestObservabilityContainer_SinkDefaultsToNop(t *testing.T) {
	var o ObservabilityContainer
	if _, ok := o.Sink().(statsd.Nop); !ok {
		t.Fatalf("expected statsd.Nop, got %T", o.Sink())
	}
}

func TestBuildTransport(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     config.ClusterConfig
		want    string
		wantErr bool
	}{
		{
			name: "exec",
			cfg:  config.ClusterConfig{Transport: config.ClusterTransportExec, Host: "cluster", Python: "python3", Loc: "/opt/chem/main.py"},
			want: "exec",
		},
		{
			name:    "exec without entrypoint",
			cfg:     config.ClusterConfig{Transport: config.ClusterTransportExec, Host: "cluster"},
			wantErr: true,
		},
		{
			name: "http",
			cfg:  config.ClusterConfig{Transport: config.ClusterTransportHTTP, HTTPURL: "https://shim.example.org/call"},
			want: "http",
		},
		{
			name:    "ssh without known hosts",
			cfg:     config.ClusterConfig{Transport: config.ClusterTransportSSH, Host: "login.example.org", Loc: "/opt/chem/main.py"},
			wantErr: true,
		},
		{
			name:    "unknown",
			cfg:     config.ClusterConfig{Transport: "carrier-pigeon", Loc: "/opt/chem/main.py"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport, closer, err := buildTransport(ctx, tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if transport.Name() != tt.want {
				t.Fatalf("transport = %q, want %q", transport.Name(), tt.want)
			}
			if err := closer.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
		})
	}
}

func TestBuildClusterGateway_InvalidReportPath(t *testing.T) {
	_, _, err := BuildClusterGateway(context.Background(), ClusterDeps{
		Config: config.ClusterConfig{
			Transport:  config.ClusterTransportExec,
			Host:       "cluster",
			Python:     "python3",
			Loc:        "/opt/chem/main.py",
			ReportPath: "jobs[",
		},
	})
	if err == nil {
		t.Fatal("expected report path error")
	}
}

func TestReadinessChecks(t *testing.T) {
	if got := readinessChecks(ServiceContainer{}); len(got) != 0 {
		t.Fatalf("expected no checks, got %d", len(got))
	}
}

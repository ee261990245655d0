package statsd

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestMetricName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix, name, want string
	}{
		{"chemjobs", "reconciler.tick", "chemjobs.reconciler.tick"},
		{"", " cluster/call ", "cluster_call"},
		{"chemjobs", "foo..bar.", "chemjobs.foo.bar"},
		{"chemjobs", "  ", ""},
		{"", "a:b|c", "a_b_c"},
	}
	for _, tt := range tests {
		if got := metricName(tt.prefix, tt.name); got != tt.want {
			t.Fatalf("metricName(%q, %q) = %q, want %q", tt.prefix, tt.name, got, tt.want)
		}
	}
}

func TestLineFormatting(t *testing.T) {
	t.Parallel()

	c := &Client{
		prefix: "chemjobs",
		//nolint:gocritic // whitespace is part of the test case
		globalTags: cleanTags(map[string]string{"env": "prod", " service ": " reconciler "}),
	}
	got := c.line("reconciler.tick", "1", "c", map[string]string{"result": " success ", "": "x", "env": "stage"})
	want := "chemjobs.reconciler.tick:1|c|#env:stage,result:success,service:reconciler"
	if got != want {
		t.Fatalf("line mismatch\n got: %q\nwant: %q", got, want)
	}

	if got := (&Client{}).line("gauge", "2.5", "g", nil); got != "gauge:2.5|g" {
		t.Fatalf("untagged line = %q", got)
	}
}

func TestDisabledClientDropsMetrics(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{Enabled: false, Address: "127.0.0.1:8125"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Enabled() {
		t.Fatal("disabled client reports enabled")
	}
	c.Count("x", 1, nil)
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var nilClient *Client
	nilClient.Count("x", 1, nil)
	if nilClient.Enabled() {
		t.Fatal("nil client reports enabled")
	}
}

func TestClientWritesUDP(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp unavailable: %v", err)
	}
	defer pc.Close()

	c, err := NewClient(Config{Enabled: true, Address: pc.LocalAddr().String(), Prefix: "chemjobs."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Close()

	c.Timing("results.collect_duration", 1500*time.Microsecond, map[string]string{"result": "success"})

	buf := make([]byte, 512)
	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got := string(buf[:n])
	if !strings.HasPrefix(got, "chemjobs.results.collect_duration:1.5|ms") {
		t.Fatalf("unexpected packet %q", got)
	}
}

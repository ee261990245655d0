package config

import (
	"strings"
	"time"
)

// ClusterTransport selects how gateway calls reach the cluster.
type ClusterTransport string

const (
	// ClusterTransportExec runs `ssh <host> <python> <loc>` as a subprocess.
	ClusterTransportExec ClusterTransport = "exec"
	// ClusterTransportSSH holds a native SSH connection and opens one session per call.
	ClusterTransportSSH ClusterTransport = "ssh"
	// ClusterTransportHTTP posts the envelope to an HTTP shim.
	ClusterTransportHTTP ClusterTransport = "http"
)

// ClusterConfig configures the remote executor gateway.
type ClusterConfig struct {
	Transport ClusterTransport `env:"CLUSTER_TRANSPORT" envDefault:"exec"`
	// Host is the ssh destination (a Host alias from ~/.ssh/config for exec, host[:port] for ssh).
	Host string `env:"CLUSTER_HOST" envDefault:"cluster"`
	// Loc is the path of the remote entrypoint script.
	Loc     string        `env:"CLUSTER_LOC"`
	Python  string        `env:"CLUSTER_PYTHON"  envDefault:"python3"`
	Timeout time.Duration `env:"CLUSTER_TIMEOUT" envDefault:"2m"`
	// Encoding frames the envelope on the wire: json or base64.
	Encoding string `env:"CLUSTER_ENCODING" envDefault:"json"`

	SSHUser           string `env:"CLUSTER_SSH_USER"`
	SSHKeyFile        string `env:"CLUSTER_SSH_KEY_FILE"`
	SSHKnownHostsFile string `env:"CLUSTER_SSH_KNOWN_HOSTS"`

	HTTPURL          string `env:"CLUSTER_HTTP_URL"`
	HTTPTokenURL     string `env:"CLUSTER_HTTP_TOKEN_URL"`
	HTTPClientID     string `env:"CLUSTER_HTTP_CLIENT_ID"`
	HTTPClientSecret string `env:"CLUSTER_HTTP_CLIENT_SECRET"`

	// RateLimit caps gateway calls per second. Zero disables limiting.
	RateLimit float64 `env:"CLUSTER_RATE_LIMIT" envDefault:"0"`
	// ReportPath is a JMESPath expression locating the per-job report in a check response.
	ReportPath string `env:"CLUSTER_REPORT_PATH"`
}

// Sanitize applies guardrails to cluster configuration values.
func (c *ClusterConfig) Sanitize() {
	c.Transport = ClusterTransport(strings.ToLower(strings.TrimSpace(string(c.Transport))))
	if c.Transport == "" {
		c.Transport = ClusterTransportExec
	}
	if c.Host = strings.TrimSpace(c.Host); c.Host == "" {
		c.Host = "cluster"
	}
	if c.Python = strings.TrimSpace(c.Python); c.Python == "" {
		c.Python = "python3"
	}
	c.Loc = strings.TrimSpace(c.Loc)
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	c.Encoding = strings.ToLower(strings.TrimSpace(c.Encoding))
	if c.Encoding == "" {
		c.Encoding = "json"
	}
	if c.RateLimit < 0 {
		c.RateLimit = 0
	}
	c.ReportPath = strings.TrimSpace(c.ReportPath)
}

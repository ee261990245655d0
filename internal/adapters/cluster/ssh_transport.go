package cluster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/net/proxy"
)

// SSHConfig configures the native SSH transport.
type SSHConfig struct {
	// Addr is host:port of the cluster login node.
	Addr string
	User string
	// Command is the remote command line, e.g. "python3 /opt/chem/main.py".
	Command string

	KeyFile        string
	KnownHostsFile string
	DialTimeout    time.Duration

	// Signer and HostKeyCallback override KeyFile and KnownHostsFile when set.
	Signer          ssh.Signer
	HostKeyCallback ssh.HostKeyCallback
}

func (c *SSHConfig) clientConfig() (*ssh.ClientConfig, error) {
	if strings.TrimSpace(c.Addr) == "" {
		return nil, errors.New("ssh transport: addr is required")
	}
	if strings.TrimSpace(c.Command) == "" {
		return nil, errors.New("ssh transport: command is required")
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		c.Addr = net.JoinHostPort(c.Addr, "22")
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}

	signer := c.Signer
	if signer == nil && c.KeyFile != "" {
		pem, err := os.ReadFile(c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("ssh transport: read key: %w", err)
		}
		if signer, err = ssh.ParsePrivateKey(pem); err != nil {
			return nil, fmt.Errorf("ssh transport: parse key: %w", err)
		}
	}

	hostKeys := c.HostKeyCallback
	if hostKeys == nil {
		if c.KnownHostsFile == "" {
			return nil, errors.New("ssh transport: known_hosts file is required")
		}
		cb, err := knownhosts.New(c.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("ssh transport: load known_hosts: %w", err)
		}
		hostKeys = cb
	}

	cfg := &ssh.ClientConfig{
		User:            c.User,
		HostKeyCallback: hostKeys,
		Timeout:         c.DialTimeout,
	}
	if signer != nil {
		cfg.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	}
	return cfg, nil
}

// SSHTransport runs the remote entrypoint over a shared SSH connection, one session per call.
// The connection is dialed lazily through any proxy named in ALL_PROXY and redialed after a failure.
type SSHTransport struct {
	addr    string
	command string
	config  *ssh.ClientConfig
	dialer  proxy.Dialer

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSHTransport validates cfg and returns an SSHTransport. No connection is made yet.
func NewSSHTransport(cfg SSHConfig) (*SSHTransport, error) {
	clientCfg, err := cfg.clientConfig()
	if err != nil {
		return nil, err
	}
	return &SSHTransport{
		addr:    cfg.Addr,
		command: cfg.Command,
		config:  clientCfg,
		dialer:  proxy.FromEnvironmentUsing(&net.Dialer{Timeout: cfg.DialTimeout}),
	}, nil
}

// Name implements Transport.
func (t *SSHTransport) Name() string { return "ssh" }

// Call implements Transport.
func (t *SSHTransport) Call(ctx context.Context, payload []byte) ([]byte, error) {
	client, err := t.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: ssh dial %s: %w", ErrTransport, t.addr, err)
	}

	session, err := client.NewSession()
	if err != nil {
		t.drop(client)
		return nil, fmt.Errorf("%w: ssh session: %w", ErrTransport, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdin = bytes.NewReader(payload)
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(t.command) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		<-done
		return nil, fmt.Errorf("%w: ssh %s: %w", ErrTransport, t.addr, ctx.Err())
	case err := <-done:
		if err == nil {
			return stdout.Bytes(), nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: remote command exited %d: %s",
				ErrTransport, exitErr.ExitStatus(), stderrDetail(stderr.Bytes()))
		}
		t.drop(client)
		return nil, fmt.Errorf("%w: ssh run: %w", ErrTransport, err)
	}
}

// Close closes the shared connection if one is open.
func (t *SSHTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}

func (t *SSHTransport) connect(ctx context.Context) (*ssh.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return t.client, nil
	}

	var (
		conn net.Conn
		err  error
	)
	if cd, ok := t.dialer.(proxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", t.addr)
	} else {
		conn, err = t.dialer.Dial("tcp", t.addr)
	}
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, t.addr, t.config)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	// The handshake deadline must not outlive the call that dialed.
	_ = conn.SetDeadline(time.Time{})

	t.client = ssh.NewClient(c, chans, reqs)
	return t.client, nil
}

func (t *SSHTransport) drop(client *ssh.Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == client {
		_ = t.client.Close()
		t.client = nil
	}
}

package cluster

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/pem"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// testSSHServer accepts sessions and answers every exec request with handler(command, stdin).
type testSSHServer struct {
	addr    string
	hostKey ssh.Signer
}

type execHandler func(command string, stdin []byte) (stdout []byte, stderr []byte, exit uint32)

func newTestSSHServer(t *testing.T, handler execHandler) *testSSHServer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostKey, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{NoClientAuth: true}
	cfg.AddHostKey(hostKey)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSSHConn(conn, cfg, handler)
		}
	}()
	return &testSSHServer{addr: ln.Addr().String(), hostKey: hostKey}
}

func serveSSHConn(conn net.Conn, cfg *ssh.ServerConfig, handler execHandler) {
	_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		return
	}
	go ssh.DiscardRequests(reqs)
	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "session only")
			continue
		}
		ch, requests, err := nc.Accept()
		if err != nil {
			continue
		}
		go func() {
			defer ch.Close()
			for req := range requests {
				if req.Type != "exec" {
					_ = req.Reply(false, nil)
					continue
				}
				var payload struct{ Command string }
				_ = ssh.Unmarshal(req.Payload, &payload)
				_ = req.Reply(true, nil)

				stdin, _ := io.ReadAll(ch)
				stdout, stderr, code := handler(payload.Command, stdin)
				_, _ = ch.Write(stdout)
				_, _ = ch.Stderr().Write(stderr)

				status := make([]byte, 4)
				binary.BigEndian.PutUint32(status, code)
				_, _ = ch.SendRequest("exit-status", false, status)
				return
			}
		}()
	}
}

func newTestSSHTransport(t *testing.T, srv *testSSHServer) *SSHTransport {
	t.Helper()
	tr, err := NewSSHTransport(SSHConfig{
		Addr:            srv.addr,
		User:            "chemjobs",
		Command:         "python3 /opt/chem/main.py",
		HostKeyCallback: ssh.FixedHostKey(srv.hostKey.PublicKey()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestSSHTransport_Call(t *testing.T) {
	var gotCommand atomic.Value
	srv := newTestSSHServer(t, func(cmd string, stdin []byte) ([]byte, []byte, uint32) {
		gotCommand.Store(cmd)
		if string(stdin) == "fail" {
			return nil, []byte("Traceback: KeyError 'action'"), 1
		}
		return append([]byte("echo:"), stdin...), nil, 0
	})
	tr := newTestSSHTransport(t, srv)

	t.Run("round trip", func(t *testing.T) {
		out, err := tr.Call(context.Background(), []byte(`{"action":"check"}`))
		require.NoError(t, err)
		assert.Equal(t, `echo:{"action":"check"}`, string(out))
		assert.Equal(t, "python3 /opt/chem/main.py", gotCommand.Load())
	})

	t.Run("connection is reused", func(t *testing.T) {
		first, err := tr.connect(context.Background())
		require.NoError(t, err)
		_, err = tr.Call(context.Background(), []byte("x"))
		require.NoError(t, err)
		second, err := tr.connect(context.Background())
		require.NoError(t, err)
		assert.Same(t, first, second)
	})

	t.Run("remote exit status", func(t *testing.T) {
		_, err := tr.Call(context.Background(), []byte("fail"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTransport)
		assert.Contains(t, err.Error(), "exited 1")
		assert.Contains(t, err.Error(), "KeyError")
	})
}

func TestSSHTransport_Timeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	srv := newTestSSHServer(t, func(string, []byte) ([]byte, []byte, uint32) {
		<-release
		return nil, nil, 0
	})
	tr := newTestSSHTransport(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := tr.Call(ctx, []byte("{}"))
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSSHTransport_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	tr, err := NewSSHTransport(SSHConfig{
		Addr:            addr,
		Command:         "true",
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // test only
		DialTimeout:     time.Second,
	})
	require.NoError(t, err)
	_, err = tr.Call(context.Background(), nil)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestSSHConfig_Validation(t *testing.T) {
	t.Run("addr and command required", func(t *testing.T) {
		_, err := NewSSHTransport(SSHConfig{Command: "x", HostKeyCallback: ssh.InsecureIgnoreHostKey()}) //nolint:gosec // test only
		assert.Error(t, err)
		_, err = NewSSHTransport(SSHConfig{Addr: "cluster", HostKeyCallback: ssh.InsecureIgnoreHostKey()}) //nolint:gosec // test only
		assert.Error(t, err)
	})

	t.Run("known hosts required", func(t *testing.T) {
		_, err := NewSSHTransport(SSHConfig{Addr: "cluster", Command: "x"})
		assert.ErrorContains(t, err, "known_hosts")
	})

	t.Run("default port", func(t *testing.T) {
		tr, err := NewSSHTransport(SSHConfig{Addr: "cluster", Command: "x", HostKeyCallback: ssh.InsecureIgnoreHostKey()}) //nolint:gosec // test only
		require.NoError(t, err)
		assert.Equal(t, "cluster:22", tr.addr)
	})

	t.Run("key and known hosts files", func(t *testing.T) {
		dir := t.TempDir()
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		block, err := ssh.MarshalPrivateKey(priv, "")
		require.NoError(t, err)
		keyFile := filepath.Join(dir, "id_ed25519")
		require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(block), 0o600))

		signer, err := ssh.NewSignerFromKey(priv)
		require.NoError(t, err)
		khFile := filepath.Join(dir, "known_hosts")
		line := "cluster " + string(ssh.MarshalAuthorizedKey(signer.PublicKey()))
		require.NoError(t, os.WriteFile(khFile, []byte(line), 0o600))

		tr, err := NewSSHTransport(SSHConfig{Addr: "cluster", Command: "x", KeyFile: keyFile, KnownHostsFile: khFile})
		require.NoError(t, err)
		assert.Len(t, tr.config.Auth, 1)

		_, err = NewSSHTransport(SSHConfig{Addr: "cluster", Command: "x", KeyFile: filepath.Join(dir, "missing"), KnownHostsFile: khFile})
		assert.Error(t, err)
	})
}

package cluster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ExecConfig describes the local command that reaches the remote entrypoint.
type ExecConfig struct {
	// Command is the argv run for every call, e.g. ssh cluster python3 /opt/chem/main.py.
	Command []string
	// Env is appended to the process environment.
	Env []string
	// WaitDelay bounds how long a killed command may hold its pipes open.
	WaitDelay time.Duration
}

// DefaultExecCommand builds the ssh argv for host, interpreter and script.
func DefaultExecCommand(host, python, script string) []string {
	return []string{"ssh", host, python, script}
}

// ExecTransport spawns one subprocess per call and exchanges the payload over stdin/stdout.
type ExecTransport struct {
	cfg ExecConfig
}

// NewExecTransport validates cfg and returns an ExecTransport.
func NewExecTransport(cfg ExecConfig) (*ExecTransport, error) {
	if len(cfg.Command) == 0 || strings.TrimSpace(cfg.Command[0]) == "" {
		return nil, errors.New("exec transport: command is required")
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = 2 * time.Second
	}
	return &ExecTransport{cfg: cfg}, nil
}

// Name implements Transport.
func (t *ExecTransport) Name() string { return "exec" }

// Call implements Transport.
func (t *ExecTransport) Call(ctx context.Context, payload []byte) ([]byte, error) {
	// #nosec G204 -- argv comes from operator configuration, never from job input
	cmd := exec.CommandContext(ctx, t.cfg.Command[0], t.cfg.Command[1:]...)
	if len(t.cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), t.cfg.Env...)
	}
	cmd.WaitDelay = t.cfg.WaitDelay
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, t.cfg.Command[0], ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s exited %d: %s",
				ErrTransport, t.cfg.Command[0], exitErr.ExitCode(), stderrDetail(stderr.Bytes()))
		}
		return nil, fmt.Errorf("%w: run %s: %w", ErrTransport, t.cfg.Command[0], err)
	}
	return stdout.Bytes(), nil
}

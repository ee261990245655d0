package cluster

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/molcalc/chemjobs/internal/domain/cluster"
)

func shTransport(t *testing.T, script string) *ExecTransport {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	tr, err := NewExecTransport(ExecConfig{Command: []string{"sh", "-c", script}, WaitDelay: 100 * time.Millisecond})
	require.NoError(t, err)
	return tr
}

func TestExecTransport_Call(t *testing.T) {
	t.Run("stdin in stdout out", func(t *testing.T) {
		tr := shTransport(t, "cat")
		out, err := tr.Call(context.Background(), []byte(`{"action":"check"}`))
		require.NoError(t, err)
		assert.Equal(t, `{"action":"check"}`, string(out))
	})

	t.Run("non-zero exit carries stderr", func(t *testing.T) {
		tr := shTransport(t, "echo 'slurm unreachable' >&2; exit 3")
		_, err := tr.Call(context.Background(), nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTransport)
		assert.Contains(t, err.Error(), "exited 3")
		assert.Contains(t, err.Error(), "slurm unreachable")
	})

	t.Run("context deadline kills the process", func(t *testing.T) {
		tr := shTransport(t, "sleep 10")
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := tr.Call(ctx, nil)
		assert.ErrorIs(t, err, ErrTransport)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("missing binary", func(t *testing.T) {
		tr, err := NewExecTransport(ExecConfig{Command: []string{"/nonexistent/chemjobs-remote"}})
		require.NoError(t, err)
		_, err = tr.Call(context.Background(), nil)
		assert.ErrorIs(t, err, ErrTransport)
	})
}

func TestExecTransport_WithGateway(t *testing.T) {
	// The script ignores its input and reports one completed job.
	tr := shTransport(t, `cat >/dev/null; printf '{"j1":{"status":"COMPLETED","started":"2024-03-01T10:00:00Z","finished":"2024-03-01T11:00:00Z"}}'`)
	g := newTestGateway(t, tr, GatewayOptions{Timeout: 5 * time.Second})

	report, err := g.Check(context.Background(), domain.CheckRequest{"j1": 0})
	require.NoError(t, err)
	require.Contains(t, report, "j1")
	assert.True(t, report["j1"].IsCompleted())
	require.NotNil(t, report["j1"].Finished)
}

func TestNewExecTransport_Validation(t *testing.T) {
	_, err := NewExecTransport(ExecConfig{})
	assert.Error(t, err)
	_, err = NewExecTransport(ExecConfig{Command: []string{" "}})
	assert.Error(t, err)

	assert.Equal(t, []string{"ssh", "cluster", "python3", "/opt/chem/main.py"},
		DefaultExecCommand("cluster", "python3", "/opt/chem/main.py"))
}

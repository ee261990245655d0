// Package cluster implements the remote executor gateway: typed per-action calls
// serialised into a JSON envelope and carried by an interchangeable Transport.
package cluster

import (
	"context"
	"strings"

	apperrors "github.com/molcalc/chemjobs/internal/errors"
)

var (
	// ErrTransport is returned when the remote side could not be reached, exited
	// non-zero, or did not answer before the call timeout.
	ErrTransport = apperrors.NewSentinel("cluster_transport", "cluster transport failure")
	// ErrDecode is returned when the remote side answered with something that is not
	// the expected JSON shape.
	ErrDecode = apperrors.NewSentinel("cluster_decode", "cluster response decode failure")
)

// Transport carries one encoded request to the remote entrypoint and returns its raw response.
// Implementations must honour ctx cancellation and return errors wrapping ErrTransport.
type Transport interface {
	Call(ctx context.Context, payload []byte) ([]byte, error)
	Name() string
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, payload []byte) ([]byte, error)

// Call invokes f.
func (f TransportFunc) Call(ctx context.Context, payload []byte) ([]byte, error) {
	return f(ctx, payload)
}

// Name implements Transport.
func (TransportFunc) Name() string { return "func" }

const maxStderrInError = 512

// stderrDetail trims remote stderr to something fit for an error message.
func stderrDetail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxStderrInError {
		s = s[:maxStderrInError] + "..."
	}
	if s == "" {
		return "<no stderr>"
	}
	return s
}

// Package httpx serves the ops probe endpoints.
package httpx

import (
	"log/slog"
	"net/http"
	"time"
)

// RouterServices holds the dependencies of the probe router.
type RouterServices struct {
	// Checks are run by /readyz; every one must pass for the process to be ready.
	Checks       map[string]CheckFunc
	CheckTimeout time.Duration
	Logger       *slog.Logger
}

// NewRouter returns the probe mux.
func NewRouter(svc RouterServices) *http.ServeMux {
	logger := svc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.Handle("GET /readyz", &readyHandler{
		checks:  svc.Checks,
		timeout: svc.CheckTimeout,
		logger:  logger.With("component", "readiness"),
	})
	return mux
}

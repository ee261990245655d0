package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"os"
	"testing"

	apperrors "github.com/molcalc/chemjobs/internal/errors"
)

func TestClassify(t *testing.T) {
	partial := apperrors.NewSentinel("partial_collection", "partial result collection")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"sentinel", fmt.Errorf("job j1: %w", partial), "partial_collection"},
		{"deadline", fmt.Errorf("wrap: %w", context.DeadlineExceeded), "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"app error", apperrors.NotFoundf("job %s", "j1"), "db_not_found"},
		{"path error", &os.PathError{Op: "open", Path: "/x", Err: goerrors.New("denied")}, "errors_errorstring"},
		{"plain", goerrors.New("x"), "errors_errorstring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

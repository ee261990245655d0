// Package errors classifies errors into short, stable names for metric tags and alerts.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	apperrors "github.com/molcalc/chemjobs/internal/errors"
)

// Classify returns a normalized error class suitable for tagging metrics/logs.
// Explicit classes (apperrors.Sentinel, AppError codes, context errors) win; otherwise
// the innermost concrete type name is used.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var classed interface{ Class() string }
	if goerrors.As(err, &classed) {
		if c := classed.Class(); c != "" {
			return c
		}
	}
	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	}
	if code := apperrors.GetCode(err); code != "" {
		return "db_" + string(code)
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	name := strings.ReplaceAll(strings.ToLower(t.String()), ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}

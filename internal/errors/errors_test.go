package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrapf(cause, ErrCodeUnavailable, "update job %s", "j1")

	if got, want := err.Error(), "update job j1: connection reset"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if !IsUnavailable(fmt.Errorf("outer: %w", err)) {
		t.Error("IsUnavailable should see through wrapping")
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, ErrCodeInternal, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, ErrCodeInternal, "x %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
}

func TestPredicates(t *testing.T) {
	cases := []struct {
		err  error
		pred func(error) bool
		name string
	}{
		{NotFoundf("job %s", "j1"), IsNotFound, "not found"},
		{Conflictf("job %s", "j1"), IsConflict, "conflict"},
		{Validationf("bad %s", "x"), IsValidation, "validation"},
		{New(ErrCodeTimeout, "slow"), IsTimeout, "timeout"},
	}
	for _, c := range cases {
		if !c.pred(c.err) {
			t.Errorf("%s predicate returned false", c.name)
		}
		if IsUnavailable(c.err) {
			t.Errorf("%s should not be unavailable", c.name)
		}
	}

	if GetCode(errors.New("plain")) != "" {
		t.Error("GetCode on plain error should be empty")
	}
	if GetField(ValidationField("userid", "required")) != "userid" {
		t.Error("GetField should return the field")
	}
}

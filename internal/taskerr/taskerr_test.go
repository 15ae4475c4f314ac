package taskerr

import (
	"errors"
	"testing"
)

func TestConstructorsWrapSentinel(t *testing.T) {
	tests := map[string]struct {
		err    error
		target error
	}{
		"status":        {err: NewStatus("bad call"), target: ErrStatus},
		"context":       {err: NewContext("died"), target: ErrContext},
		"serialization": {err: NewSerialization("bad payload"), target: ErrSerialization},
		"worker":        {err: NewWorker("cancelled"), target: ErrWorker},
		"synchronization": {
			err:    NewSynchronization("unexpected exit"),
			target: ErrSynchronization,
		},
		"panic": {err: NewPanic("PanicError", "boom", ""), target: ErrPanic},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			if !errors.Is(test.err, test.target) {
				t.Fatalf("expected errors.Is(err, target) to hold; err: %v", test.err)
			}
		})
	}
}

func TestPanicErrorIncludesStack(t *testing.T) {
	err := NewPanic("PanicError", "boom", "remote stack trace")
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error message")
	}

	var p Panic
	if !errors.As(err, &p) {
		t.Fatalf("expected errors.As to find a Panic")
	}
	if p.Stack != "remote stack trace" {
		t.Fatalf("unexpected stack; actual: %q", p.Stack)
	}
}

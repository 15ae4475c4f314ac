// Package taskerr defines the error kinds a Context, Worker, or Pool may
// surface, per their lifecycle contracts.
package taskerr

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrStatus indicates an operation was attempted that is illegal for the
	// current lifecycle state of a Context, Worker, or Pool — e.g. starting a
	// Context twice, or enqueuing a task on a shut down Worker. Programmer
	// error; never retried.
	ErrStatus = errors.New("illegal operation for current status")

	// ErrContext indicates the executor died or its Channel broke. Terminal
	// for that Context and any Worker owning it.
	ErrContext = errors.New("context failed")

	// ErrSerialization indicates a single task's payload could not be encoded
	// or decoded. Scoped to that task; other tasks on the same Worker
	// continue.
	ErrSerialization = errors.New("serialization failed")

	// ErrWorker indicates the Worker cancelled its pending tasks, propagated
	// to every awaiter when kill or shutdown-escalation fires.
	ErrWorker = errors.New("worker cancelled pending tasks")

	// ErrSynchronization indicates a protocol violation by the child: an
	// unexpected ExitResult, a malformed TaskResult, or a TaskResult whose id
	// is unknown. Terminal for that Worker.
	ErrSynchronization = errors.New("synchronization violation")

	// ErrPanic indicates a failure descriptor was reported by the child —
	// either from a failing Task or from the bootstrap contract itself. See
	// Panic for the carried detail.
	ErrPanic = errors.New("remote panic")
)

// NewStatus wraps ErrStatus with msg context.
func NewStatus(msg string) error {
	return fmt.Errorf("%w: %s", ErrStatus, msg)
}

// NewContext wraps ErrContext with msg context, recording a stack trace at
// the point the Context was declared dead.
func NewContext(msg string) error {
	return pkgerrors.WithStack(fmt.Errorf("%w: %s", ErrContext, msg))
}

// NewSerialization wraps ErrSerialization with msg context.
func NewSerialization(msg string) error {
	return fmt.Errorf("%w: %s", ErrSerialization, msg)
}

// NewWorker wraps ErrWorker with msg context.
func NewWorker(msg string) error {
	return fmt.Errorf("%w: %s", ErrWorker, msg)
}

// NewSynchronization wraps ErrSynchronization with msg context, recording a
// stack trace since the violation indicates the child's protocol handling
// is broken and the failure is worth a full trace.
func NewSynchronization(msg string) error {
	return pkgerrors.WithStack(fmt.Errorf("%w: %s", ErrSynchronization, msg))
}

// Panic carries the detail of a remote failure: the kind of the remote
// error, its message, and (if available) a remote stack trace.
type Panic struct {
	Kind    string
	Message string
	Stack   string
}

// Error implements the error interface.
func (p Panic) Error() string {
	if p.Stack == "" {
		return fmt.Sprintf("%s: %s: %s", ErrPanic, p.Kind, p.Message)
	}
	return fmt.Sprintf("%s: %s: %s\n%s", ErrPanic, p.Kind, p.Message, p.Stack)
}

// Unwrap enables errors.Is(err, ErrPanic).
func (p Panic) Unwrap() error { return ErrPanic }

// NewPanic builds a Panic error, capturing a local stack trace alongside
// whatever remote stack the child reported.
func NewPanic(kind, message, remoteStack string) error {
	return pkgerrors.WithStack(Panic{Kind: kind, Message: message, Stack: remoteStack})
}

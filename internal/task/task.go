// Package task defines the wire-level data model shared by a Context's
// parent and child sides: Task, Job, TaskResult, and ExitResult.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tjper/parallelrun/internal/environment"
)

// Task is a user-defined, serialisable unit of work. Run executes the task
// against the Worker's Environment and returns a value that must itself be
// serialisable.
type Task interface {
	Run(ctx context.Context, env *environment.Environment) (interface{}, error)
}

// Job wraps a Task with a unique identifier, stable across a serialize/
// deserialize round trip (the child never mints its own id).
type Job struct {
	ID   uuid.UUID
	Task Task
}

// wireJob is the framed representation of a Job: the Task is carried as its
// registered type name plus its JSON-encoded body, since a concrete Go type
// — unlike a PHP closure — cannot serialize itself without help.
type wireJob struct {
	ID   uuid.UUID       `json:"id"`
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// MarshalJSON encodes a Job as {id, type, body}, looking up the Task's
// registered type name.
func (j Job) MarshalJSON() ([]byte, error) {
	name, ok := typeName(j.Task)
	if !ok {
		return nil, fmt.Errorf("task type %T is not registered", j.Task)
	}
	body, err := json.Marshal(j.Task)
	if err != nil {
		return nil, fmt.Errorf("marshal task body: %w", err)
	}
	return json.Marshal(wireJob{ID: j.ID, Type: name, Body: body})
}

// UnmarshalJSON decodes a Job, reconstructing its Task via the type
// registry (New). j.ID is set as soon as the envelope decodes, even if a
// later step (unknown type, mismatched body) fails: a caller that only
// knows a Job by its wire bytes still needs the id to report a failure
// scoped to that one Job rather than treating the whole frame as lost.
func (j *Job) UnmarshalJSON(data []byte) error {
	var w wireJob
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	j.ID = w.ID

	t, ok := New(w.Type)
	if !ok {
		return fmt.Errorf("no task registered under type %q", w.Type)
	}
	if err := json.Unmarshal(w.Body, t); err != nil {
		return fmt.Errorf("task body did not decode into a %q task: %w", w.Type, err)
	}
	j.Task = t
	return nil
}

// Failure describes a remote error: the kind of failure, a human message,
// and (if available) a remote stack trace. It is the wire shape underlying
// taskerr.Panic.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// TaskResult pairs a Job id with either a successful value or a Failure.
// TaskResult always carries the id of the Job it answers.
type TaskResult struct {
	ID    uuid.UUID       `json:"id"`
	Value json.RawMessage `json:"value,omitempty"`
	Err   *Failure        `json:"err,omitempty"`
}

// ExitResult is the sentinel message the child sends exactly once, as its
// final message before a clean exit. No further user messages follow an
// ExitResult on a Channel.
type ExitResult struct {
	Value json.RawMessage `json:"value,omitempty"`
	Err   *Failure        `json:"err,omitempty"`
}

// Stop is the sentinel integer message instructing the child's event loop
// to stop and exit cleanly.
const Stop = 0

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func() Task)
	typeNames  = make(map[string]string)
)

// Register associates name with a Task constructor, so a Job carrying that
// name can be reconstructed on the child side. Register is typically called
// from an init function by every Task implementation a binary ships.
func Register(name string, ctor func() Task) {
	registryMu.Lock()
	defer registryMu.Unlock()

	registry[name] = ctor
	sample := ctor()
	typeNames[fmt.Sprintf("%T", sample)] = name
}

// New constructs a zero-valued Task registered under name.
func New(name string) (Task, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	ctor, ok := registry[name]
	if !ok {
		return nil, false
	}
	return ctor(), true
}

// typeName returns the registered name for t's concrete type.
func typeName(t Task) (string, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	name, ok := typeNames[fmt.Sprintf("%T", t)]
	return name, ok
}

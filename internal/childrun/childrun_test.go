package childrun

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/google/uuid"

	"github.com/tjper/parallelrun/internal/channel"
	"github.com/tjper/parallelrun/internal/environment"
	"github.com/tjper/parallelrun/internal/task"
)

// wire builds a child Channel and a parent Channel sharing a pair of
// in-memory pipes, so loop can be exercised without a real child process.
func wire() (child, parent *channel.Channel, cleanup func()) {
	c2pR, c2pW := io.Pipe()
	p2cR, p2cW := io.Pipe()

	child = channel.New(p2cR, c2pW)
	parent = channel.New(c2pR, p2cW)
	return child, parent, func() {
		_ = c2pR.Close()
		_ = p2cW.Close()
	}
}

func TestLoopRunsJobAndReportsResult(t *testing.T) {
	child, parent, closeFn := wire()
	defer closeFn()

	done := make(chan int, 1)
	go func() { done <- loop(context.Background(), child, environment.New()) }()

	id := uuid.New()
	job := task.Job{ID: id, Task: &echoTask{Value: "hello"}}
	if err := parent.Send(channel.KindJob, job); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	kind, payload, err := parent.Receive()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if kind != channel.KindResult {
		t.Fatalf("unexpected kind; actual: %s, expected: %s", kind, channel.KindResult)
	}

	var result task.TaskResult
	if err := json.Unmarshal(payload, &result); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if result.ID != id {
		t.Fatalf("unexpected job id; actual: %s, expected: %s", result.ID, id)
	}

	var value string
	if err := json.Unmarshal(result.Value, &value); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if value != "hello" {
		t.Fatalf("unexpected value; actual: %s, expected: hello", value)
	}

	if err := parent.Send(channel.KindStop, task.Stop); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	kind, _, err = parent.Receive()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if kind != channel.KindExit {
		t.Fatalf("unexpected kind; actual: %s, expected: %s", kind, channel.KindExit)
	}

	if code := <-done; code != ExitSuccess {
		t.Fatalf("unexpected exit code; actual: %d, expected: %d", code, ExitSuccess)
	}
}

func TestLoopRecoversPanickingTask(t *testing.T) {
	child, parent, closeFn := wire()
	defer closeFn()

	go loop(context.Background(), child, environment.New())

	id := uuid.New()
	job := task.Job{ID: id, Task: &panicTask{Message: "boom"}}
	if err := parent.Send(channel.KindJob, job); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	_, payload, err := parent.Receive()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	var result task.TaskResult
	if err := json.Unmarshal(payload, &result); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if result.Err == nil {
		t.Fatalf("expected a failure descriptor")
	}
	if result.Err.Message != "boom" {
		t.Fatalf("unexpected failure message; actual: %s, expected: boom", result.Err.Message)
	}
}

func TestLoopScopesSerializationFailureToOneJob(t *testing.T) {
	child, parent, closeFn := wire()
	defer closeFn()

	done := make(chan int, 1)
	go func() { done <- loop(context.Background(), child, environment.New()) }()

	badID := uuid.New()
	bad := struct {
		ID   uuid.UUID `json:"id"`
		Type string    `json:"type"`
		Body []byte    `json:"body"`
	}{ID: badID, Type: "childrun_test.unregistered"}
	if err := parent.Send(channel.KindJob, bad); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	kind, payload, err := parent.Receive()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if kind != channel.KindResult {
		t.Fatalf("unexpected kind; actual: %s, expected: %s", kind, channel.KindResult)
	}

	var result task.TaskResult
	if err := json.Unmarshal(payload, &result); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if result.ID != badID {
		t.Fatalf("unexpected job id; actual: %s, expected: %s", result.ID, badID)
	}
	if result.Err == nil || result.Err.Kind != "SerializationException" {
		t.Fatalf("expected a SerializationException failure; actual: %+v", result.Err)
	}

	// The Worker survives: a second, well-formed Job still runs.
	okID := uuid.New()
	job := task.Job{ID: okID, Task: &echoTask{Value: "still alive"}}
	if err := parent.Send(channel.KindJob, job); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	kind, payload, err = parent.Receive()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if kind != channel.KindResult {
		t.Fatalf("unexpected kind; actual: %s, expected: %s", kind, channel.KindResult)
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if result.ID != okID {
		t.Fatalf("unexpected job id; actual: %s, expected: %s", result.ID, okID)
	}
	if result.Err != nil {
		t.Fatalf("unexpected failure: %+v", result.Err)
	}

	if err := parent.Send(channel.KindStop, task.Stop); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if kind, _, err = parent.Receive(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	} else if kind != channel.KindExit {
		t.Fatalf("unexpected kind; actual: %s, expected: %s", kind, channel.KindExit)
	}
	if code := <-done; code != ExitSuccess {
		t.Fatalf("unexpected exit code; actual: %d, expected: %d", code, ExitSuccess)
	}
}

type echoTask struct {
	Value string `json:"value"`
}

func (e *echoTask) Run(ctx context.Context, env *environment.Environment) (interface{}, error) {
	return e.Value, nil
}

type panicTask struct {
	Message string `json:"message"`
}

func (p *panicTask) Run(ctx context.Context, env *environment.Environment) (interface{}, error) {
	panic(p.Message)
}

func init() {
	task.Register("childrun_test.echo", func() task.Task { return new(echoTask) })
	task.Register("childrun_test.panic", func() task.Task { return new(panicTask) })
}

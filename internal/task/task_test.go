package task

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/tjper/parallelrun/internal/environment"
)

type stubTask struct {
	Value string `json:"value"`
}

func (s *stubTask) Run(ctx context.Context, env *environment.Environment) (interface{}, error) {
	return s.Value, nil
}

func init() {
	Register("task.stub", func() Task { return new(stubTask) })
}

func TestJobMarshalUnmarshalRoundTrip(t *testing.T) {
	job := Job{ID: uuid.New(), Task: &stubTask{Value: "hello"}}

	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	var decoded Job
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if decoded.ID != job.ID {
		t.Fatalf("unexpected id; actual: %s, expected: %s", decoded.ID, job.ID)
	}
	got, ok := decoded.Task.(*stubTask)
	if !ok {
		t.Fatalf("unexpected task type: %T", decoded.Task)
	}
	if got.Value != "hello" {
		t.Fatalf("unexpected value; actual: %s, expected: hello", got.Value)
	}
}

func TestJobMarshalUnregisteredTask(t *testing.T) {
	job := Job{ID: uuid.New(), Task: &struct {
		Task
	}{}}

	if _, err := json.Marshal(job); err == nil {
		t.Fatalf("expected error marshaling an unregistered task type")
	}
}

func TestJobUnmarshalUnknownType(t *testing.T) {
	raw := []byte(`{"id":"` + uuid.New().String() + `","type":"task.nonexistent","body":{}}`)

	var job Job
	if err := json.Unmarshal(raw, &job); err == nil {
		t.Fatalf("expected error decoding an unregistered task type")
	}
}

func TestNewUnregistered(t *testing.T) {
	if _, ok := New("does.not.exist"); ok {
		t.Fatalf("expected ok to be false for an unregistered type name")
	}
}

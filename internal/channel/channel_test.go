package channel

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/tjper/parallelrun/internal/taskerr"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	tests := map[string]struct {
		kind    Kind
		payload interface{}
	}{
		"job":    {kind: KindJob, payload: map[string]interface{}{"a": float64(1)}},
		"stop":   {kind: KindStop, payload: 0},
		"result": {kind: KindResult, payload: map[string]interface{}{"id": "abc"}},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			ch := New(&buf, &buf)

			if err := ch.Send(test.kind, test.payload); err != nil {
				t.Fatalf("unexpected error: %s", err)
			}

			kind, payload, err := ch.Receive()
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if kind != test.kind {
				t.Fatalf("unexpected kind; actual: %s, expected: %s", kind, test.kind)
			}

			want, err := json.Marshal(test.payload)
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if !bytes.Equal(payload, want) {
				t.Fatalf("unexpected payload; actual: %s, expected: %s", payload, want)
			}
		})
	}
}

func TestReceiveShortFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0, 0, 0, 0, 5}) // declares 5 bytes, none follow

	ch := New(&buf, io.Discard)
	if _, _, err := ch.Receive(); !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame, got: %v", err)
	}
}

func TestReceiveFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	ch := New(&buf, &buf).WithMaxFrameSize(4)

	if err := ch.Send(KindJob, map[string]string{"key": "value"}); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if _, _, err := ch.Receive(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got: %v", err)
	}
}

func TestSendUnserializablePayload(t *testing.T) {
	var buf bytes.Buffer
	ch := New(&buf, &buf)

	err := ch.Send(KindJob, make(chan int))
	if !errors.Is(err, taskerr.ErrSerialization) {
		t.Fatalf("expected ErrSerialization, got: %v", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("write failed") }

func TestSendTransportFailure(t *testing.T) {
	ch := New(bytes.NewReader(nil), failingWriter{})
	if err := ch.Send(KindStop, nil); err == nil {
		t.Fatalf("expected error from a failing writer")
	}
}

// Package channel implements the duplex, length-prefixed message framing
// that carries Jobs and TaskResults between a Context's parent and child
// sides.
//
// Framing is grounded on the encodeString helper in aghassemi's go.ref
// exec/parent.go: an 8-byte big-endian length prefix followed by that many
// bytes of payload, written atomically with respect to other sends on the
// same stream.
package channel

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/tjper/parallelrun/internal/taskerr"
)

// DefaultMaxFrameSize is the default cap on a single frame's declared
// length; a frame claiming to be larger fails with ErrFrameTooLarge.
const DefaultMaxFrameSize = 1 << 30 // 1 GiB

// ErrShortFrame indicates EOF was reached while reading a partial frame.
var ErrShortFrame = errors.New("channel: short read of frame")

// ErrFrameTooLarge indicates a frame's declared length exceeded the
// Channel's configured cap.
var ErrFrameTooLarge = errors.New("channel: frame exceeds maximum size")

// envelope is the self-describing wire shape every frame carries: a Kind
// tag (see the Kind* constants) and the JSON-encoded payload appropriate to
// that Kind.
type envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Kind tags the payload carried by one frame.
type Kind string

const (
	// KindJob carries a task.Job: "execute this task."
	KindJob Kind = "job"
	// KindStop carries the sentinel integer 0 (task.Stop): "stop your loop
	// and exit cleanly."
	KindStop Kind = "stop"
	// KindResult carries a task.TaskResult: the answer to a Job.
	KindResult Kind = "result"
	// KindExit carries a task.ExitResult: the terminal message before child
	// exit.
	KindExit Kind = "exit"
	// KindBootstrap carries an optional initial argument, sent at most once
	// as the first frame on a freshly started Context.
	KindBootstrap Kind = "bootstrap"
)

// New creates a Channel over the given duplex stream. r and w may be backed
// by separate pipes (as they are for a process Context's stdin/stdout); New
// only requires them to be safe to use independently.
func New(r io.Reader, w io.Writer) *Channel {
	return &Channel{
		r:           bufio.NewReader(r),
		w:           w,
		maxFrameLen: DefaultMaxFrameSize,
	}
}

// Channel is a duplex, framed message transport. A Send writes exactly one
// frame atomically with respect to other sends on the same Channel; a
// Receive reads exactly one frame.
type Channel struct {
	sendMu sync.Mutex
	r      *bufio.Reader
	w      io.Writer

	maxFrameLen int64
}

// WithMaxFrameSize overrides the default 1 GiB frame-size cap.
func (c *Channel) WithMaxFrameSize(n int64) *Channel {
	c.maxFrameLen = n
	return c
}

// Send writes one frame of the given kind carrying payload. A payload that
// cannot be JSON-encoded yields a SerializationException-class error
// (taskerr.ErrSerialization); any other failure is a transport error the
// caller (normally a Context) should treat as fatal to the Channel.
func (c *Channel) Send(kind Kind, payload interface{}) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return taskerr.NewSerialization(fmt.Sprintf("encode %s payload: %s", kind, err))
		}
		raw = b
	}

	body, err := json.Marshal(envelope{Kind: kind, Payload: raw})
	if err != nil {
		return taskerr.NewSerialization(fmt.Sprintf("encode %s envelope: %s", kind, err))
	}

	return c.sendFrame(body)
}

func (c *Channel) sendFrame(body []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	var header [8]byte
	binary.BigEndian.PutUint64(header[:], uint64(len(body)))

	if _, err := writeFull(c.w, header[:]); err != nil {
		return fmt.Errorf("channel: write frame header: %w", err)
	}
	if _, err := writeFull(c.w, body); err != nil {
		return fmt.Errorf("channel: write frame body: %w", err)
	}
	return nil
}

// Receive reads exactly one frame and returns its kind and raw JSON
// payload. The caller decodes payload according to kind.
func (c *Channel) Receive() (Kind, json.RawMessage, error) {
	var header [8]byte
	if _, err := io.ReadFull(c.r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return "", nil, ErrShortFrame
		}
		return "", nil, err
	}

	length := binary.BigEndian.Uint64(header[:])
	if int64(length) > c.maxFrameLen {
		return "", nil, ErrFrameTooLarge
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(c.r, body); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return "", nil, ErrShortFrame
		}
		return "", nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", nil, taskerr.NewSerialization(fmt.Sprintf("decode envelope: %s", err))
	}
	return env.Kind, env.Payload, nil
}

// writeFull writes all of b to w, treating a short write without an error
// as impossible per io.Writer's contract but guarding against it anyway —
// mirrors the short-write check in go.ref's encodeString.
func writeFull(w io.Writer, b []byte) (int, error) {
	n, err := w.Write(b)
	if err != nil {
		return n, err
	}
	if n != len(b) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

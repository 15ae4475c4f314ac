// Package worker implements the parent-side job multiplexer: many
// outstanding tasks sharing one Context, correlated by Job id.
//
// Structurally grounded on internal/jobworker/job/job.go
// (mutex-guarded struct, explicit status, one owned context.Context) and
// on dustinevan-jogger's lib/job/manager.go jobMap+mutex shape for the
// pending-awaiter map. The receive loop itself re-arms tail-style on the
// empty→non-empty transition rather than being written as a reentrant
// closure.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tjper/parallelrun/internal/execctx"
	"github.com/tjper/parallelrun/internal/task"
	"github.com/tjper/parallelrun/internal/taskerr"
)

// Option configures a Worker at construction time.
type Option func(*Worker)

// WithContextOptions supplies execctx.Options applied to the Worker's
// lazily-started Context.
func WithContextOptions(opts ...execctx.Option) Option {
	return func(w *Worker) { w.ctxOpts = opts }
}

// New creates a Worker owning a not-yet-started Context.
func New(opts ...Option) *Worker {
	w := &Worker{pending: make(map[uuid.UUID]*awaiter)}
	for _, opt := range opts {
		opt(w)
	}
	w.drained = sync.NewCond(&w.mu)
	return w
}

// Worker owns one Context, a map of outstanding Jobs to their awaiters, and
// a shutdown flag. Exactly one Context.ReceiveResult is outstanding at any
// moment, enforced by receiverArmed.
type Worker struct {
	mu      sync.Mutex
	drained *sync.Cond

	ctx     *execctx.Context
	ctxOpts []execctx.Option

	started       bool
	shutdownFlag  bool
	receiverArmed bool
	dead          bool

	pending map[uuid.UUID]*awaiter
}

// awaiter is the pending entry for one outstanding Job.
type awaiter struct {
	done chan struct{}
	val  json.RawMessage
	err  error
}

// Awaiter is returned to a caller of Enqueue so it can await its Task's
// result independently of any other outstanding Task on the same Worker.
type Awaiter struct {
	a *awaiter
}

// Wait blocks until the Task's TaskResult arrives or ctx is cancelled,
// whichever comes first.
func (a *Awaiter) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-a.a.done:
		return a.a.val, a.a.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done returns the channel that closes once this Awaiter has settled.
// Receiving from it does not consume the result — Pool uses it only to
// detect when a Worker's submission has settled, so it can requeue the
// Worker onto the idle queue.
func (a *Awaiter) Done() <-chan struct{} { return a.a.done }

// IsRunning reports whether the Worker's Context is started and not yet
// killed or shut down.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started && !w.dead && !w.shutdownFlag
}

// IsIdle reports whether the Worker's pending map is empty. A Worker is
// idle iff its pending map is empty.
func (w *Worker) IsIdle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending) == 0
}

// PendingCount reports the number of outstanding Jobs — used by Pool for
// its per-worker concurrency / least-loaded selection policy.
func (w *Worker) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Enqueue allocates a new Job for t, installs an awaiter keyed by the
// Job's id, and sends it on the Worker's Context — lazily starting the
// Context on first use.
func (w *Worker) Enqueue(ctx context.Context, t task.Task) (*Awaiter, error) {
	w.mu.Lock()
	if w.shutdownFlag {
		w.mu.Unlock()
		return nil, taskerr.NewStatus("worker is shut down")
	}
	if !w.started {
		ec, err := execctx.New(w.ctxOpts...)
		if err != nil {
			w.mu.Unlock()
			return nil, err
		}
		if err := ec.Start(ctx); err != nil {
			w.mu.Unlock()
			return nil, err
		}
		w.ctx = ec
		w.started = true
	}

	job := task.Job{ID: uuid.New(), Task: t}
	a := &awaiter{done: make(chan struct{})}
	w.pending[job.ID] = a
	arm := !w.receiverArmed
	if arm {
		w.receiverArmed = true
	}
	w.mu.Unlock()

	if err := w.ctx.SendJob(job); err != nil {
		w.mu.Lock()
		delete(w.pending, job.ID)
		serialization := isSerializationErr(err)
		if serialization && arm {
			// this call armed the receiver: hand it to the Jobs enqueued
			// meanwhile, or disarm it if there are none.
			if len(w.pending) > 0 {
				go w.receiveLoop()
			} else {
				w.receiverArmed = false
			}
		}
		w.maybeSignalDrained()
		w.mu.Unlock()

		if serialization {
			a.err = err
			close(a.done)
			return &Awaiter{a: a}, nil
		}

		// any other send failure is fatal: cancel every pending awaiter and
		// kill the Context.
		w.failAll(taskerr.NewWorker(fmt.Sprintf("send failed: %s", err)))
		_ = w.ctx.Kill()
		return nil, err
	}

	if arm {
		go w.receiveLoop()
	}

	return &Awaiter{a: a}, nil
}

// receiveLoop reposts Context.ReceiveResult as long as the pending map is
// non-empty, demultiplexing each TaskResult to its awaiter by Job id.
func (w *Worker) receiveLoop() {
	for {
		result, err := w.ctx.ReceiveResult()
		if err != nil {
			w.mu.Lock()
			w.dead = true
			w.receiverArmed = false
			w.mu.Unlock()
			w.failAll(err)
			_ = w.ctx.Kill()
			return
		}

		w.mu.Lock()
		a, ok := w.pending[result.ID]
		if !ok {
			w.dead = true
			w.receiverArmed = false
			w.mu.Unlock()
			w.failAll(taskerr.NewSynchronization(fmt.Sprintf("task result for unknown job id %s", result.ID)))
			_ = w.ctx.Kill()
			return
		}
		delete(w.pending, result.ID)
		empty := len(w.pending) == 0
		if empty {
			w.receiverArmed = false
		}
		w.maybeSignalDrained()
		w.mu.Unlock()

		if result.Err != nil {
			a.err = taskerr.NewPanic(result.Err.Kind, result.Err.Message, result.Err.Stack)
		} else {
			a.val = result.Value
		}
		close(a.done)

		if empty {
			return
		}
	}
}

// Shutdown marks the Worker shut down, refuses new enqueues, waits for
// every pending awaiter to settle, sends the stop sentinel, then joins the
// Context and returns its exit code.
func (w *Worker) Shutdown() (int, error) {
	w.mu.Lock()
	if w.shutdownFlag {
		w.mu.Unlock()
		return 0, taskerr.NewStatus("worker already shut down")
	}
	w.shutdownFlag = true
	if !w.started || w.dead {
		w.mu.Unlock()
		return 0, nil
	}
	for len(w.pending) > 0 {
		w.drained.Wait()
	}
	w.mu.Unlock()

	if err := w.ctx.SendStop(); err != nil {
		return 0, err
	}
	payload, err := w.ctx.Join()
	if err != nil {
		return 0, err
	}

	var code int
	_ = json.Unmarshal(payload, &code)
	return code, nil
}

// Kill cancels every pending awaiter with a WorkerException and kills the
// Context. Idempotent.
func (w *Worker) Kill() error {
	w.mu.Lock()
	w.shutdownFlag = true
	w.dead = true
	w.mu.Unlock()

	w.failAll(taskerr.NewWorker("worker killed"))

	if w.ctx == nil {
		return nil
	}
	return w.ctx.Kill()
}

func (w *Worker) failAll(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, a := range w.pending {
		a.err = err
		close(a.done)
		delete(w.pending, id)
	}
	w.maybeSignalDrained()
}

// maybeSignalDrained wakes any Shutdown waiting on the pending map to
// empty. Caller must hold w.mu.
func (w *Worker) maybeSignalDrained() {
	if len(w.pending) == 0 {
		w.drained.Broadcast()
	}
}

func isSerializationErr(err error) bool {
	return errors.Is(err, taskerr.ErrSerialization)
}

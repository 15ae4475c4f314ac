// Package pool implements the Pool abstraction: a capacity-bounded
// collection of Workers with an idle-queue-plus-wait-queue dispatch
// policy, lazy growth up to a cap, and concurrent shutdown.
//
// Grounded structurally on internal/jobworker/cgroup.Service's
// functional-options constructor (ServiceOption/WithMountPath) for Pool's
// own Option/WithMaxWorkers, and on ChuLiYu-raft-recovery's worker_pool.go
// started/stopped-under-mutex + sync.WaitGroup shutdown shape — not its
// pull-based JobSource polling, which this Pool's push-based dispatch has
// no use for. The wait-queue itself follows
// internal/jobworker/watch.ModWatcher's listener-channel broadcast pattern.
package pool

import (
	"container/list"
	"sync"

	"github.com/google/uuid"

	"github.com/tjper/parallelrun/internal/task"
	"github.com/tjper/parallelrun/internal/taskerr"
	"github.com/tjper/parallelrun/internal/worker"

	"context"
)

const (
	defaultMaxWorkers           = 8
	defaultPerWorkerConcurrency = 1
)

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithMaxWorkers caps the number of Workers the Pool will create.
func WithMaxWorkers(n int) Option {
	return func(p *Pool) { p.max = n }
}

// WithPerWorkerConcurrency bounds how many outstanding Jobs a non-idle
// Worker may carry before it is no longer eligible for the "smallest
// pending count" selection rule.
func WithPerWorkerConcurrency(n int) Option {
	return func(p *Pool) { p.perWorkerConcurrency = n }
}

// WithWorkerOptions supplies worker.Options applied to every Worker the
// Pool creates.
func WithWorkerOptions(opts ...worker.Option) Option {
	return func(p *Pool) { p.workerOpts = opts }
}

// New creates an empty Pool.
func New(opts ...Option) *Pool {
	p := &Pool{
		max:                  defaultMaxWorkers,
		perWorkerConcurrency: defaultPerWorkerConcurrency,
		idle:                 list.New(),
		waiters:              make(map[uuid.UUID]chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Pool maintains up to max Workers, routes tasks to the least-loaded idle
// Worker, grows on demand, and reaps Workers on shutdown. Invariant: every
// Worker in the Pool is either busy, idle, or being removed; idle+busy ≤
// max; a shut-down Pool holds no live Workers.
type Pool struct {
	mu sync.Mutex

	max                  int
	perWorkerConcurrency int
	workerOpts           []worker.Option

	workers []*worker.Worker
	idle    *list.List // FIFO of idle *worker.Worker

	waiters map[uuid.UUID]chan struct{}

	shutdownFlag bool
}

// Lease hands out scoped access to one Worker. The lease is returned to the
// idle queue on Release; if the Worker is not running at release time it is
// discarded instead. A leased Worker is off the idle queue, but it is not
// exclusive: the Pool does not track leases, so once the Pool is at its
// Worker cap, Enqueue's least-loaded selection may still pick a leased
// Worker whose pending count is below the per-worker concurrency cap.
type Lease struct {
	pool *Pool
	w    *worker.Worker
}

// Worker returns the leased Worker.
func (l *Lease) Worker() *worker.Worker { return l.w }

// Release returns the Worker to the Pool's idle queue, or discards it if
// it is no longer running.
func (l *Lease) Release() {
	l.pool.mu.Lock()
	defer l.pool.mu.Unlock()

	if !l.w.IsRunning() {
		l.pool.removeWorkerLocked(l.w)
		return
	}
	l.pool.idle.PushBack(l.w)
	l.pool.notifyWaitersLocked()
}

// Enqueue selects a Worker — pulling from the idle queue, growing the Pool,
// picking the least-loaded Worker under the per-worker concurrency cap, or
// waiting for one of those to become possible — and submits t to it.
func (p *Pool) Enqueue(ctx context.Context, t task.Task) (*worker.Awaiter, error) {
	w, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}

	a, err := w.Enqueue(ctx, t)
	if err != nil {
		p.mu.Lock()
		p.removeWorkerLocked(w)
		p.mu.Unlock()
		return nil, err
	}

	go p.requeueWhenSettled(w, a)
	return a, nil
}

// GetWorker hands out a scoped lease on one Worker, via the same selection
// policy as Enqueue. The leased Worker is taken off the idle queue for the
// lease's duration; it is not excluded from least-loaded selection (see
// Lease).
func (p *Pool) GetWorker(ctx context.Context) (*Lease, error) {
	w, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Lease{pool: p, w: w}, nil
}

// Shutdown marks the Pool shut down, refuses new enqueues, and shuts down
// every Worker concurrently — which itself waits for that Worker's
// outstanding tasks to settle before stopping its Context.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	if p.shutdownFlag {
		p.mu.Unlock()
		return taskerr.NewStatus("pool already shut down")
	}
	p.shutdownFlag = true
	workers := append([]*worker.Worker(nil), p.workers...)
	p.notifyWaitersLocked()
	p.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, len(workers))
	for i, w := range workers {
		wg.Add(1)
		go func(i int, w *worker.Worker) {
			defer wg.Done()
			_, errs[i] = w.Shutdown()
		}(i, w)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Kill kills every Worker immediately; every awaiting task fails with a
// WorkerException.
func (p *Pool) Kill() error {
	p.mu.Lock()
	p.shutdownFlag = true
	workers := append([]*worker.Worker(nil), p.workers...)
	p.workers = nil
	p.idle.Init()
	p.notifyWaitersLocked()
	p.mu.Unlock()

	for _, w := range workers {
		_ = w.Kill()
	}
	return nil
}

// acquire implements the dispatch policy: prefer an idle Worker in FIFO
// order; else grow if under the cap; else
// pick the non-idle Worker with the smallest pending count among those
// below perWorkerConcurrency, ties broken by insertion order; else suspend
// until one becomes possible.
func (p *Pool) acquire(ctx context.Context) (*worker.Worker, error) {
	for {
		p.mu.Lock()
		if p.shutdownFlag {
			p.mu.Unlock()
			return nil, taskerr.NewStatus("pool is shut down")
		}

		if el := p.idle.Front(); el != nil {
			w := el.Value.(*worker.Worker)
			p.idle.Remove(el)
			p.mu.Unlock()
			return w, nil
		}

		if len(p.workers) < p.max {
			w := worker.New(p.workerOpts...)
			p.workers = append(p.workers, w)
			p.mu.Unlock()
			return w, nil
		}

		if w := p.leastLoadedBelowCapLocked(); w != nil {
			p.mu.Unlock()
			return w, nil
		}

		id := uuid.New()
		waitCh := make(chan struct{})
		p.waiters[id] = waitCh
		p.mu.Unlock()

		select {
		case <-waitCh:
		case <-ctx.Done():
			p.mu.Lock()
			delete(p.waiters, id)
			p.mu.Unlock()
			return nil, ctx.Err()
		}
	}
}

// leastLoadedBelowCapLocked returns the Worker with the smallest pending
// count among those strictly below perWorkerConcurrency, ties broken by
// position in p.workers (insertion order). Caller must hold p.mu.
func (p *Pool) leastLoadedBelowCapLocked() *worker.Worker {
	var best *worker.Worker
	bestPending := -1
	for _, w := range p.workers {
		pc := w.PendingCount()
		if pc >= p.perWorkerConcurrency {
			continue
		}
		if best == nil || pc < bestPending {
			best = w
			bestPending = pc
		}
	}
	return best
}

// requeueWhenSettled waits for a's submission to settle and, if the
// Worker's pending set has returned to empty, pushes it back onto the idle
// queue.
func (p *Pool) requeueWhenSettled(w *worker.Worker, a *worker.Awaiter) {
	<-a.Done()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !w.IsRunning() {
		p.removeWorkerLocked(w)
		return
	}
	if w.IsIdle() {
		p.idle.PushBack(w)
		p.notifyWaitersLocked()
	}
}

// removeWorkerLocked drops w from the Pool's bookkeeping (workers slice and
// idle queue, if present). Caller must hold p.mu.
func (p *Pool) removeWorkerLocked(dead *worker.Worker) {
	for i, w := range p.workers {
		if w == dead {
			p.workers = append(p.workers[:i], p.workers[i+1:]...)
			break
		}
	}
	for el := p.idle.Front(); el != nil; el = el.Next() {
		if el.Value.(*worker.Worker) == dead {
			p.idle.Remove(el)
			break
		}
	}
	p.notifyWaitersLocked()
}

// notifyWaitersLocked wakes every submitter suspended in acquire. Caller
// must hold p.mu.
func (p *Pool) notifyWaitersLocked() {
	for id, ch := range p.waiters {
		close(ch)
		delete(p.waiters, id)
	}
}

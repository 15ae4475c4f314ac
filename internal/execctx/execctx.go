// Package execctx implements the Context abstraction: a durable,
// bidirectional bridge to an isolated child process, with the lifecycle
// start → send/receive* → join | kill.
//
// Grounded on internal/jobworker/job/job.go (pipe setup,
// SysProcAttr{Setpgid:true}, exec.CommandContext self-reexec, exit-code
// inspection) and internal/jobworker/reexec/reexec.go (the child side's
// framing discipline). Unlike jobworker's Job, which piped an arbitrary
// shell Command over extra file descriptors, a Context always reexecs
// itself into the fixed childrun event loop and uses the child's
// stdin/stdout as the Channel: stdout and stdin of the child are the wire.
package execctx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/tjper/parallelrun/internal/cgroup"
	"github.com/tjper/parallelrun/internal/channel"
	ierrors "github.com/tjper/parallelrun/internal/errors"
	"github.com/tjper/parallelrun/internal/log"
	"github.com/tjper/parallelrun/internal/output"
	"github.com/tjper/parallelrun/internal/task"
	"github.com/tjper/parallelrun/internal/taskerr"
)

// Reexec is the argument appended to a self-reexec'd child's argv, causing
// it to run childrun.Main instead of the normal CLI dispatch.
const Reexec = "reexec"

var logger = log.New(os.Stdout, "execctx")

// Status is a Context's lifecycle state.
type Status int

const (
	Created Status = iota
	Started
	Joining
	Joined
	Killed
)

func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case Started:
		return "started"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	case Killed:
		return "killed"
	default:
		return "unknown"
	}
}

// Option configures a Context at construction time.
type Option func(*Context)

// WithCgroup constrains the child process to the given cgroup once it has
// started.
func WithCgroup(svc *cgroup.Service, opts ...cgroup.CgroupOption) Option {
	return func(c *Context) {
		c.cgroupService = svc
		c.cgroupOpts = opts
	}
}

// WithBootstrap supplies an initial argument sent to the child as the first
// Channel message. The child stores it in its Environment under the key
// "bootstrap".
func WithBootstrap(v interface{}) Option {
	return func(c *Context) { c.bootstrap = v }
}

// WithDir sets the child process's working directory.
func WithDir(dir string) Option {
	return func(c *Context) { c.dir = dir }
}

// WithEnv sets the child process's environment variables.
func WithEnv(env []string) Option {
	return func(c *Context) { c.env = env }
}

// New creates a Context in the Created state. It does not spawn anything
// until Start is called.
func New(opts ...Option) (*Context, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}

	c := &Context{
		id:   uuid.New(),
		exe:  exe,
		stat: Created,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Context owns one child process and its Channel. A Context exclusively
// owns its executor and Channel.
type Context struct {
	mu   sync.Mutex
	id   uuid.UUID
	exe  string
	dir  string
	env  []string
	stat Status

	bootstrap     interface{}
	cgroupService *cgroup.Service
	cgroupOpts    []cgroup.CgroupOption

	ctx    context.Context
	cancel context.CancelFunc
	cmd    *exec.Cmd
	ch     *channel.Channel

	killOnce sync.Once
	stderrLf *os.File

	exitCh chan struct{} // closed once cmd.Wait returns
	waitErr error
}

// ID identifies this Context, also used as its log-output file name.
func (c *Context) ID() uuid.UUID { return c.id }

func (c *Context) String() string { return c.id.String() }

// Status returns the Context's current lifecycle state.
func (c *Context) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stat
}

// Start spawns the child process and establishes the Channel. Starting
// twice fails with a StatusError. Failure to spawn fails with a
// ContextException.
func (c *Context) Start(parent context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stat != Created {
		return taskerr.NewStatus(fmt.Sprintf("context %s already started", c.id))
	}

	c.ctx, c.cancel = context.WithCancel(parent)
	cmd := exec.CommandContext(c.ctx, c.exe, Reexec)
	cmd.Dir = c.dir
	if len(c.env) > 0 {
		cmd.Env = c.env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		c.cancel()
		return taskerr.NewContext(fmt.Sprintf("open child stdin: %s", err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.cancel()
		return taskerr.NewContext(fmt.Sprintf("open child stdout: %s", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		c.cancel()
		return taskerr.NewContext(fmt.Sprintf("open child stderr: %s", err))
	}

	if err := os.MkdirAll(output.Root, 0755); err != nil {
		logger.Warnf("create output root; error: %s", err)
	}
	lf, err := os.OpenFile(output.File(c.id), os.O_CREATE|os.O_WRONLY|os.O_APPEND, output.FileMode)
	if err != nil {
		logger.Warnf("open output log; error: %s", err)
	}
	c.stderrLf = lf

	if err := cmd.Start(); err != nil {
		c.cancel()
		return taskerr.NewContext(fmt.Sprintf("spawn child: %s", err))
	}

	// stderr is tee'd to the host's stderr and to the Context's log file by
	// its own goroutine, so the parent never waits on it. The copy writes to
	// each sink in turn: a sink that blocks stalls the copy until it accepts
	// the write.
	go c.teeStderr(stderr)

	if c.cgroupService != nil {
		group, err := c.cgroupService.CreateCgroup(c.cgroupOpts...)
		if err != nil {
			logger.Errorf("create cgroup; error: %s", err)
		} else if err := c.cgroupService.PlaceInCgroup(*group, cmd.Process.Pid); err != nil {
			logger.Errorf("place in cgroup; error: %s", err)
		}
	}

	c.cmd = cmd
	c.ch = channel.New(stdout, stdin)
	c.exitCh = make(chan struct{})
	c.stat = Started

	go func() {
		c.waitErr = cmd.Wait()
		close(c.exitCh)
	}()

	if c.bootstrap != nil {
		if err := c.ch.Send(channel.KindBootstrap, c.bootstrap); err != nil {
			return taskerr.NewContext(fmt.Sprintf("send bootstrap: %s", err))
		}
	}

	return nil
}

func (c *Context) teeStderr(r io.Reader) {
	w := io.Writer(os.Stderr)
	if c.stderrLf != nil {
		w = io.MultiWriter(os.Stderr, c.stderrLf)
	}
	if _, err := io.Copy(w, r); err != nil {
		logger.Warnf("tee child stderr; error: %s", err)
	}
}

// SendJob queues one Job. Ordering: Jobs sent on one Context are received
// in send order by the child.
func (c *Context) SendJob(j task.Job) error {
	if err := c.ch.Send(channel.KindJob, j); err != nil {
		if errors.Is(err, taskerr.ErrSerialization) {
			return err
		}
		return taskerr.NewContext(fmt.Sprintf("send job %s: %s", j.ID, err))
	}
	return nil
}

// SendStop sends the sentinel integer 0, instructing the child's event
// loop to stop and exit cleanly.
func (c *Context) SendStop() error {
	if err := c.ch.Send(channel.KindStop, task.Stop); err != nil {
		return taskerr.NewContext(fmt.Sprintf("send stop: %s", err))
	}
	return nil
}

// ReceiveResult awaits one TaskResult. If the child instead emits an
// ExitResult out of band — it terminated unexpectedly mid-protocol — this
// returns a SynchronizationError describing the unexpected exit value.
func (c *Context) ReceiveResult() (task.TaskResult, error) {
	kind, payload, err := c.ch.Receive()
	if err != nil {
		return task.TaskResult{}, taskerr.NewContext(fmt.Sprintf("receive: %s", err))
	}

	switch kind {
	case channel.KindResult:
		var tr task.TaskResult
		if err := json.Unmarshal(payload, &tr); err != nil {
			return task.TaskResult{}, taskerr.NewSynchronization(fmt.Sprintf("malformed task result: %s", err))
		}
		return tr, nil
	case channel.KindExit:
		var er task.ExitResult
		_ = json.Unmarshal(payload, &er)
		desc := "value"
		if er.Err != nil {
			desc = er.Err.Kind
		}
		return task.TaskResult{}, taskerr.NewSynchronization(
			fmt.Sprintf("received exit result (%s) while awaiting a task result", desc))
	default:
		return task.TaskResult{}, taskerr.NewSynchronization(fmt.Sprintf("unexpected message kind %q", kind))
	}
}

// Join awaits the child's final ExitResult, then awaits OS-level exit. A
// nonzero exit code becomes a ContextException. A successful join yields
// the value carried by the ExitResult, unless that value was a failure
// descriptor, in which case Join re-raises it as a PanicError.
func (c *Context) Join() (json.RawMessage, error) {
	c.mu.Lock()
	switch c.stat {
	case Killed:
		c.mu.Unlock()
		return nil, taskerr.NewStatus(fmt.Sprintf("context %s was killed", c.id))
	case Joining, Joined:
		c.mu.Unlock()
		return nil, taskerr.NewStatus(fmt.Sprintf("context %s already joining or joined", c.id))
	}
	c.stat = Joining
	c.mu.Unlock()

	kind, payload, err := c.ch.Receive()
	if err != nil {
		return nil, taskerr.NewContext(fmt.Sprintf("receive exit result: %s", err))
	}
	if kind != channel.KindExit {
		return nil, taskerr.NewSynchronization(fmt.Sprintf("expected exit result, got %q", kind))
	}

	var er task.ExitResult
	if err := json.Unmarshal(payload, &er); err != nil {
		return nil, taskerr.NewSynchronization(fmt.Sprintf("malformed exit result: %s", err))
	}

	<-c.exitCh
	if c.stderrLf != nil {
		_ = c.stderrLf.Close()
	}

	c.mu.Lock()
	c.stat = Joined
	c.mu.Unlock()

	if exitErr, ok := c.waitErr.(*exec.ExitError); ok {
		code := exitErr.ExitCode()
		return nil, taskerr.NewContext(fmt.Sprintf("process exited with code %d", code))
	}
	if c.waitErr != nil {
		return nil, taskerr.NewContext(fmt.Sprintf("process wait: %s", c.waitErr))
	}

	if er.Err != nil {
		return nil, taskerr.NewPanic(er.Err.Kind, er.Err.Message, er.Err.Stack)
	}
	return er.Value, nil
}

// Kill forcibly terminates the child. Idempotent. Transitions any
// non-terminal state to Killed; any in-flight send/receive/join observes a
// ContextException.
func (c *Context) Kill() error {
	c.killOnce.Do(func() {
		c.mu.Lock()
		if c.stat != Joined {
			c.stat = Killed
		}
		cancel := c.cancel
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if c.cmd != nil && c.cmd.Process != nil {
			_ = syscall.Kill(-c.cmd.Process.Pid, syscall.SIGKILL)
		}
	})
	return nil
}

// Signal forwards an OS signal to the child's process group.
func (c *Context) Signal(sig syscall.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd == nil || c.cmd.Process == nil {
		return taskerr.NewStatus(fmt.Sprintf("context %s not started", c.id))
	}
	if err := syscall.Kill(-c.cmd.Process.Pid, sig); err != nil {
		return ierrors.Wrap(err)
	}
	return nil
}

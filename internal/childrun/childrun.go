// Package childrun implements the Worker runtime that executes inside a
// Context's child process: an event loop that receives Jobs, runs their
// Tasks concurrently, and reports TaskResults, terminating cleanly on the
// stop sentinel.
//
// Grounded on internal/jobworker/reexec/reexec.go's outer
// shape (read one unit of work off a fd, run it, report how it went), here
// generalized from "run one OS command once" to "loop over many Jobs
// concurrently until told to stop."
package childrun

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/tjper/parallelrun/internal/channel"
	"github.com/tjper/parallelrun/internal/environment"
	"github.com/tjper/parallelrun/internal/log"
	"github.com/tjper/parallelrun/internal/task"
)

// Exit codes mirror reexec.go's constants.
const (
	ExitSuccess = 0
	ExitFailure = 100
)

var logger = log.New(os.Stderr, "childrun")

// Main runs the child-side event loop against stdin/stdout until it
// receives the stop sentinel or a transport failure, returning the process
// exit code to report to os.Exit.
func Main(ctx context.Context) int {
	return loop(ctx, channel.New(os.Stdin, os.Stdout), environment.New())
}

// loop runs the event loop against ch, separated out from Main so it can be
// exercised against an in-memory Channel.
func loop(ctx context.Context, ch *channel.Channel, env *environment.Environment) int {
	var wg sync.WaitGroup
	for {
		kind, payload, err := ch.Receive()
		if err != nil {
			logger.Errorf("receive: %s", err)
			return ExitFailure
		}

		switch kind {
		case channel.KindBootstrap:
			// The bootstrap argument is available to every Task executed by
			// this child via the Environment, under a reserved key.
			env.Set("bootstrap", json.RawMessage(payload), 0)

		case channel.KindStop:
			wg.Wait()
			return exit(ch, ExitSuccess, nil)

		case channel.KindJob:
			var j task.Job
			if err := json.Unmarshal(payload, &j); err != nil {
				if j.ID == uuid.Nil {
					// The envelope itself didn't decode: there is no id to
					// scope a result to, so the frame is unrecoverable.
					return exit(ch, ExitFailure, &task.Failure{
						Kind:    "ChannelException",
						Message: err.Error(),
					})
				}
				// The envelope decoded but the task type or body didn't:
				// report a failure scoped to this Job only. Every other
				// Job on this Worker continues.
				failure := task.TaskResult{ID: j.ID, Err: &task.Failure{
					Kind:    "SerializationException",
					Message: err.Error(),
				}}
				if sendErr := ch.Send(channel.KindResult, failure); sendErr != nil {
					logger.Errorf("send task result %s: %s", j.ID, sendErr)
				}
				continue
			}
			wg.Add(1)
			go runJob(ctx, ch, env, j, &wg)

		default:
			logger.Warnf("unexpected message kind: %s", kind)
		}
	}
}

// runJob executes one Job's Task and reports its TaskResult. A panic
// within Run is recovered and reported as a failure descriptor rather than
// crashing the child — an uncaught failure of one Task must not affect any
// other Job in flight.
func runJob(ctx context.Context, ch *channel.Channel, env *environment.Environment, j task.Job, wg *sync.WaitGroup) {
	defer wg.Done()

	result := task.TaskResult{ID: j.ID}

	func() {
		defer func() {
			if r := recover(); r != nil {
				result.Err = &task.Failure{Kind: "PanicError", Message: fmt.Sprintf("%v", r)}
			}
		}()

		value, err := j.Task.Run(ctx, env)
		if err != nil {
			result.Err = &task.Failure{Kind: "PanicError", Message: err.Error()}
			return
		}

		raw, err := json.Marshal(value)
		if err != nil {
			result.Err = &task.Failure{
				Kind:    "SerializationException",
				Message: "the given data cannot be sent because it is not serializable",
			}
			return
		}
		result.Value = raw
	}()

	if err := ch.Send(channel.KindResult, result); err != nil {
		logger.Errorf("send task result %s: %s", j.ID, err)
	}
}

// exit sends the terminal ExitResult and returns the process exit code the
// caller should report to os.Exit.
func exit(ch *channel.Channel, code int, failure *task.Failure) int {
	exitResult := task.ExitResult{Err: failure}
	if failure == nil {
		exitResult.Value = json.RawMessage("0")
	}
	if err := ch.Send(channel.KindExit, exitResult); err != nil {
		logger.Errorf("send exit result: %s", err)
	}
	return code
}

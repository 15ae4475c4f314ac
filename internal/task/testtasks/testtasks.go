// Package testtasks provides a handful of registered Task implementations
// used to exercise a Context/Worker/Pool end to end, without pulling in any
// real workload's dependencies.
package testtasks

import (
	"context"
	"time"

	"github.com/tjper/parallelrun/internal/environment"
	"github.com/tjper/parallelrun/internal/task"
)

func init() {
	task.Register("testtasks.Echo", func() task.Task { return new(Echo) })
	task.Register("testtasks.Sleep", func() task.Task { return new(Sleep) })
	task.Register("testtasks.Panic", func() task.Task { return new(Panic) })
}

// Echo returns Value unchanged, round-tripped through JSON. Useful for
// confirming a Context's wire protocol carries a payload intact.
type Echo struct {
	Value interface{} `json:"value"`
}

func (e *Echo) Run(ctx context.Context, env *environment.Environment) (interface{}, error) {
	return e.Value, nil
}

// Sleep blocks for Duration (respecting ctx cancellation) and then returns
// Value. Useful for exercising concurrent dispatch across Workers.
type Sleep struct {
	Duration time.Duration `json:"duration"`
	Value    interface{}   `json:"value"`
}

func (s *Sleep) Run(ctx context.Context, env *environment.Environment) (interface{}, error) {
	select {
	case <-time.After(s.Duration):
		return s.Value, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Panic unconditionally panics with Message, to exercise the child's
// recover-and-report path.
type Panic struct {
	Message string `json:"message"`
}

func (p *Panic) Run(ctx context.Context, env *environment.Environment) (interface{}, error) {
	panic(p.Message)
}

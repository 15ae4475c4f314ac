package rpc

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/tjper/parallelrun/internal/log"
	"github.com/tjper/parallelrun/internal/pool"
	"github.com/tjper/parallelrun/internal/task"
	"github.com/tjper/parallelrun/internal/validator"
	"github.com/tjper/parallelrun/internal/worker"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

var logger = log.New(os.Stdout, "rpc")

var _ PoolControlServer = (*PoolControl)(nil)

// NewPoolControl wraps a Pool as a PoolControlServer.
func NewPoolControl(p *pool.Pool) *PoolControl {
	return &PoolControl{pool: p, jobs: make(map[string]*worker.Awaiter)}
}

// PoolControl implements PoolControlServer against one Pool, tracking
// outstanding submissions so Status can be polled after Submit returns.
type PoolControl struct {
	pool *pool.Pool

	mu   sync.Mutex
	jobs map[string]*worker.Awaiter
}

func (s *PoolControl) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	valid := validator.New()
	valid.Assert(req.Type != "", "task type empty")
	if err := valid.Err(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	t, ok := task.New(req.Type)
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "no task registered under type %q", req.Type)
	}
	if len(req.Body) > 0 {
		if err := json.Unmarshal(req.Body, t); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "decode task body: %s", err)
		}
	}

	if user, ok := userFromContext(ctx); ok {
		logger.Infof("submit task %s; user: %s", req.Type, user)
	}

	a, err := s.pool.Enqueue(ctx, t)
	if err != nil {
		logger.Errorf("enqueue task; error: %s", err)
		return nil, status.Error(codes.Internal, "enqueue task")
	}

	id := uuid.New().String()
	s.mu.Lock()
	s.jobs[id] = a
	s.mu.Unlock()

	return &SubmitResponse{JobID: id}, nil
}

func (s *PoolControl) Status(ctx context.Context, req *StatusRequest) (*StatusResponse, error) {
	s.mu.Lock()
	a, ok := s.jobs[req.JobID]
	s.mu.Unlock()
	if !ok {
		return nil, status.Error(codes.NotFound, "unknown job id")
	}

	select {
	case <-a.Done():
	default:
		return &StatusResponse{State: "pending"}, nil
	}

	value, err := a.Wait(ctx)
	if err != nil {
		return &StatusResponse{State: "failed", Err: &Failure{Kind: "TaskError", Message: err.Error()}}, nil
	}
	return &StatusResponse{State: "done", Value: value}, nil
}

func (s *PoolControl) Shutdown(ctx context.Context, _ *emptypb.Empty) (*ShutdownResponse, error) {
	if err := s.pool.Shutdown(); err != nil {
		return nil, status.Errorf(codes.Internal, "shutdown pool: %s", err)
	}
	return &ShutdownResponse{ExitCode: 0}, nil
}

func (s *PoolControl) Kill(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.pool.Kill(); err != nil {
		return nil, status.Errorf(codes.Internal, "kill pool: %s", err)
	}
	return new(emptypb.Empty), nil
}

package cli

import (
	"context"
	"fmt"
	"net"

	"github.com/tjper/parallelrun/internal/cgroup"
	"github.com/tjper/parallelrun/internal/encrypt"
	"github.com/tjper/parallelrun/internal/execctx"
	"github.com/tjper/parallelrun/internal/pool"
	"github.com/tjper/parallelrun/internal/rpc"
	"github.com/tjper/parallelrun/internal/worker"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

func runServe(ctx context.Context) int {
	var workerOpts []worker.Option
	if *resourceLimited {
		cgroupSvc, err := cgroup.NewService()
		if err != nil {
			logger.Errorf("cgroup service setup; error: %v", err)
			return ecCgroupService
		}
		defer cgroupSvc.Cleanup()
		workerOpts = append(workerOpts, worker.WithContextOptions(execctx.WithCgroup(cgroupSvc)))
	}

	p := pool.New(
		pool.WithMaxWorkers(*maxWorkersFlag),
		pool.WithPerWorkerConcurrency(*perWorkerFlag),
		pool.WithWorkerOptions(workerOpts...),
	)

	tlsConfig, err := encrypt.NewServermTLSConfig(*certFlag, *keyFlag, *caCertFlag)
	if err != nil {
		logger.Errorf("build server TLS config; error: %v", err)
		return ecTLSConfig
	}

	srv := grpc.NewServer(grpc.Creds(credentials.NewTLS(tlsConfig)))
	rpc.RegisterPoolControlServer(srv, rpc.NewPoolControl(p))

	addr := fmt.Sprintf(":%d", *portFlag)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Errorf("listen on %s; error: %v", addr, err)
		return ecListen
	}
	defer lis.Close()

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	if err := srv.Serve(lis); err != nil {
		logger.Errorf("serve on %s; error: %v", addr, err)
		return ecServe
	}

	return ecSuccess
}

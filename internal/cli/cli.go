// Package cli defines the parallelrun CLI: serve the PoolControl API, or
// (internally, via self-reexec) run the childrun event loop.
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tjper/parallelrun/internal/execctx"
	"github.com/tjper/parallelrun/internal/log"
)

var logger = log.New(os.Stdout, "cli")

var (
	keyFlag    = flag.String("key", "", "path to server private key")
	certFlag   = flag.String("cert", "", "path to server certificate")
	caCertFlag = flag.String("ca_cert", "", "path to CA certificate")
	portFlag   = flag.Int("port", 8080, "port to serve the PoolControl API")

	maxWorkersFlag  = flag.Int("max_workers", 8, "maximum number of Workers the Pool may run concurrently")
	perWorkerFlag   = flag.Int("per_worker_concurrency", 1, "maximum outstanding tasks per non-idle Worker once the Pool is at max_workers; beyond it the Pool waits")
	resourceLimited = flag.Bool("cgroup", false, "constrain each Worker's Context to its own cgroup")
)

const (
	ecSuccess = iota
	ecUnrecognized
	ecCgroupService
	ecTLSConfig
	ecListen
	ecServe
)

const serveSub = "serve"

// Run is the entrypoint of the parallelrun CLI.
func Run() int {
	flag.Parse()

	if len(os.Args) < 2 {
		return help("Too few arguments")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	last := len(os.Args) - 1
	switch v := os.Args[last]; v {
	case serveSub:
		return runServe(ctx)
	case execctx.Reexec:
		return runReexec(ctx)
	default:
		return help(fmt.Sprintf("Unrecognized subcommand %q.", v))
	}
}

func help(text string) int {
	var b strings.Builder
	if text != "" {
		_, _ = b.WriteString(fmt.Sprintf("\nNotice: %s", text))
	}

	b.WriteString(
		`

parallelrun runs an mTLS-secured gRPC API that accepts registered tasks
and runs them across a pool of isolated worker processes.

Usage:
  parallelrun [global flags] command

Available Commands:
  serve       Serve the PoolControl API.
  reexec      Run the childrun event loop. Launched by a Context; never
              invoke directly.

Global Flags:
  -port                     port to serve the PoolControl API
  -cert                     server x509 certificate
  -key                      server private key
  -ca_cert                  certificate authority cert
  -max_workers              maximum Pool size
  -per_worker_concurrency   maximum outstanding tasks per Worker
  -cgroup                   constrain each Worker's Context to its own cgroup
`)
	fmt.Fprint(os.Stdout, b.String())
	return ecUnrecognized
}

// Command parallelrun serves the PoolControl API and, via self-reexec, runs
// the childrun event loop inside each Worker's Context.
package main

import (
	"os"

	"github.com/tjper/parallelrun/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}

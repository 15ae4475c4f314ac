package cli

import (
	"context"

	"github.com/tjper/parallelrun/internal/childrun"
)

func runReexec(ctx context.Context) int {
	return childrun.Main(ctx)
}

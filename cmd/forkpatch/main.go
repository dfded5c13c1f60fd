package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/asynkron/forkpatch/internal/cli"
)

// main hands the process arguments to the forkpatch command line.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

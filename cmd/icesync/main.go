package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/icesync/adapter/cli"
)

func main() {
	// Cancelled on SIGINT/SIGTERM; serve shuts down gracefully.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli.Execute(ctx)
}

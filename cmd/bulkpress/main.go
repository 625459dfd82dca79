// Command bulkpress runs keyword batches from the command line.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(loadConfig).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

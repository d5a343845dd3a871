// Command changesync runs and administers the offline change synchronization engine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/velmie/changesync/internal/cli"
)

const exitFailure = 1

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "changesync: %v\n", err)
		stop()
		os.Exit(exitFailure)
	}
}

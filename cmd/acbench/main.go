// Command acbench compares algorithm configurators on the trajectories of
// their runs.
//
// Usage:
//
//	acbench parse runs/spear/smac/run-1 --kind smac
//	acbench compare --config experiment.yaml --root runs --store
//	acbench report --config experiment.yaml --latest 5
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

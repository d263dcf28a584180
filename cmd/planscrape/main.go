package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/law-makers/planscrape/internal/cli"
)

func main() {
	// Cancelling the context stops in-flight scrapers; they return the
	// partial batches gathered so far.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

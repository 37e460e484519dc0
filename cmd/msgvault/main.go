// Package main provides the entry point for msgvault.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yndnr/msgvault-go/internal/cli/command"
	"github.com/yndnr/msgvault-go/internal/infra/shutdown"
)

// drainTimeout bounds cleanup after a signal or normal exit.
const drainTimeout = 10 * time.Second

func main() {
	h := shutdown.NewHandler(drainTimeout)
	ctx := h.Context(context.Background())

	app := command.App(h)
	err := app.RunContext(ctx, os.Args)

	if cerr := h.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

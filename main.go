// ./main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/captchafill/cmd"
	"github.com/xkilldash9x/captchafill/internal/observability"
)

// main is the entry point for the captchafill CLI.
func main() {
	os.Exit(run())
}

func run() int {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer observability.Sync()

	err := cmd.Execute(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	default:
		return 1
	}
}

// handlePanic flushes buffered logs before the panic continues.
func handlePanic() {
	if r := recover(); r != nil {
		observability.Sync()
		panic(r)
	}
}

// ./main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/Aadvait-Hirde/LLMVulnBench/cmd"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/observability"
)

const panicLogFile = "panic.log"

// main is the entry point for the LLMVulnBench CLI.
func main() {
	defer handlePanic()

	// Interrupts cancel loading, persistence and publishing.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

// handlePanic writes the panic and its stack to panic.log before exiting.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := os.WriteFile(panicLogFile, []byte(panicMessage), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
		os.Exit(2)
	}
	fmt.Fprintf(os.Stderr, "Unexpected failure. Details logged to %s\n", panicLogFile)
	os.Exit(2)
}

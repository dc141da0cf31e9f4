// Command steptrace traces a JavaScript program step by step and prints the
// session result as JSON.
package main

import (
	"context"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	cmd := newRootCmd(os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		safeFprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

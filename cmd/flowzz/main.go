// Command flowzz builds ranked flowzz catalogs and compares vendor prices
// across items from the command line.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/flowzz-client/cmd/flowzz/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(commands.ExecuteContext(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

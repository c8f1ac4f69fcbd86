package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/guardpost/guardpost/cmd/guardctl/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(cli.Connect).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "guardctl:", err)
		stop()
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/odyssey-pharmacy/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/app"
)

func main() {
	if app.SkipStartup("odysseyctl") {
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(cli.DefaultRuntime()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "odysseyctl:", err)
		os.Exit(1)
	}
}

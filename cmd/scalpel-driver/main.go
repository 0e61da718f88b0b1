// cmd/scalpel-driver/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/scalpel-driver/cmd"
	"github.com/xkilldash9x/scalpel-driver/internal/observability"
)

func main() {
	// SIGINT and SIGTERM start a graceful shutdown: sessions close first.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	if err != nil {
		stop()
		os.Exit(1)
	}
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/you-humble/pdftrack/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)

	err := app.New().Run(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

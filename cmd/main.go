package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OperativeX/processmind-sub001/internal/app"
	"github.com/OperativeX/processmind-sub001/internal/platform/envutil"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Start(); err != nil {
		a.Log.Error("Failed to start background workers", "error", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			a.Log.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		a.Log.Info("Shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), envutil.Duration("SHUTDOWN_TIMEOUT", 15*time.Second))
		defer cancel()
		if err := a.Shutdown(ctx); err != nil {
			a.Log.Warn("HTTP shutdown did not finish cleanly", "error", err)
		}
	}
}

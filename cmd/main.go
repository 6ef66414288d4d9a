package main

import (
	"os"
	"os/signal"
	"syscall"

	"optionsflow/internal/bootstrap"
	"optionsflow/pkg/logger"
)

func main() {
	container := bootstrap.NewContainer()
	container.MustInit()
	defer logger.Sync()

	if err := container.Start(); err != nil {
		container.Log.Fatalf("failed to start: %v", err)
	}

	waitForShutdown(container)

	if err := container.Shutdown(); err != nil {
		container.Log.Errorw("Shutdown finished with errors", "error", err)
		os.Exit(1)
	}
}

// waitForShutdown blocks until SIGINT/SIGTERM or a fatal component error.
// A second signal during graceful shutdown aborts the in-flight batch.
func waitForShutdown(c *bootstrap.Container) {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		c.Log.Infow("Received shutdown signal", "signal", sig.String())
	case <-c.Context.Done():
		c.Log.Warn("Context cancelled by a component, shutting down")
	}

	go func() {
		sig := <-sigChan
		c.Log.Warnw("Received second signal, discarding in-flight analysis", "signal", sig.String())
		c.Abort()
	}()
}

// Standalone job worker. Runs the same pipelines as the API's embedded
// worker (START_WORKER=true) but without the HTTP surface, for deployments
// that scale training capacity separately.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tagmate/tagmate-backend/internal/app"
)

func main() {
	os.Setenv("START_WORKER", "true")

	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to init worker: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if a.Services.Temporal == nil {
		a.Log.Error("TEMPORAL_ADDRESS is required for the worker")
		os.Exit(1)
	}
	if err := a.Start(); err != nil {
		a.Log.Error("failed to start worker", "error", err)
		os.Exit(1)
	}
	a.Log.Info("Worker running")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	a.Log.Info("Worker shutting down")
}

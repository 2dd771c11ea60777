package main

import (
	"fmt"
	"os"

	"github.com/tagmate/tagmate-backend/internal/app"
	"github.com/tagmate/tagmate-backend/internal/pkg/envutil"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Start(); err != nil {
		a.Log.Error("failed to start background services", "error", err)
		os.Exit(1)
	}

	addr := ":" + envutil.String("PORT", "8080")
	a.Log.Info("Starting API server", "addr", addr)
	if err := a.Run(addr); err != nil {
		a.Log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

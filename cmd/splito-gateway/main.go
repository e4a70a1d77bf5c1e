// Command splito-gateway serves the settlement gateway API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/splito-labs/settlement_gateway/internal/app/runtime"
)

func main() {
	// API clients read amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	application, err := runtime.NewApplication()
	if err != nil {
		log.Fatalf("Failed to configure gateway: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := application.Run(ctx)
	if runErr != nil {
		log.Printf("Server error: %v", runErr)
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	if runErr != nil {
		os.Exit(1)
	}
}

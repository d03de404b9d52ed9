/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the FarmChain supply engine server. Handles
  configuration, dependency wiring, ledger recovery, and graceful
  shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Rebuild the inventory ledger from persisted orders
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8081)
  -db      SQLite database path (default: farmchain.db)
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/farmchain/trace-engine/api"
	"github.com/farmchain/trace-engine/store/sqlite"
	"github.com/farmchain/trace-engine/supply"
)

func main() {
	// Flags
	port := flag.Int("port", 8081, "HTTP server port")
	dbPath := flag.String("db", "farmchain.db", "SQLite database path")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire the engine
	ledger := supply.NewInventoryLedger()
	trace := supply.NewTraceService(store, store)
	fulfillment := supply.NewFulfillmentService(store, ledger, trace)
	query := supply.NewQueryService(store, ledger, trace)
	anomaly := supply.NewTraceGapAssessor(trace)

	// The ledger is derived state: rebuild it from order records before
	// serving traffic.
	if err := fulfillment.RecoverLedger(context.Background()); err != nil {
		log.Fatalf("Failed to rebuild inventory ledger: %v", err)
	}

	handler := api.NewHandler(fulfillment, query, trace, anomaly)
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

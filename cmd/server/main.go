/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the commission engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load config (defaults → JSON file → .env → env)
  2. Initialize tracing (no-op unless TRACING_ENABLED)
  3. Open the SQL store (SQLite or PostgreSQL) and migrate
  4. Pick the threshold source (SQL settings table or Redis)
  5. Create events manager, engine, API handler and scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  JSON config file (optional)
  -env     .env file (default: .env, ignored when missing)
  -port    HTTP server port, overrides config
  -db      Database DSN, overrides config
           Use ":memory:" for an in-memory SQLite database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections, close event streams
  2. Wait for active requests to complete (30s timeout)
  3. Stop the reconcile scheduler
  4. Flush traces, close Redis and the database
  5. Exit

EXAMPLES:
  # SQLite file, reconcile nightly at 03:00
  RECONCILE_SCHEDULE="0 3 * * *" ./server -db="./data/commission.db"

  # PostgreSQL with the threshold in Redis
  DATABASE_DRIVER=postgres ELIGIBILITY_SOURCE=redis \
    ./server -db="postgres://app@localhost/commission?sslmode=disable"

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - store/sqlstore/sqlstore.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/commission-engine/api"
	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/config"
	"github.com/warp/commission-engine/events"
	"github.com/warp/commission-engine/store/redisstore"
	"github.com/warp/commission-engine/store/sqlstore"
	"github.com/warp/commission-engine/tracing"
)

func main() {
	// Flags
	configFile := flag.String("config", "", "JSON config file")
	envFile := flag.String("env", ".env", ".env file, ignored when missing")
	port := flag.String("port", "", "HTTP server port (overrides config)")
	dsn := flag.String("db", "", "Database DSN (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Tracing
	if err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: api.ServiceName,
		Environment: cfg.Environment,
	}); err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	// Initialize store
	dialect, err := sqlstore.ParseDialect(cfg.Database.Driver)
	if err != nil {
		log.Fatalf("Invalid database driver: %v", err)
	}
	store, err := sqlstore.Open(dialect, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Threshold source
	var eligibility commission.EligibilityConfig = store
	checks := map[string]api.Pinger{"database": store}
	if cfg.Eligibility.Source == "redis" {
		rds, err := redisstore.New(cfg.Eligibility.RedisAddr, cfg.Eligibility.RedisPassword, cfg.Eligibility.RedisDB)
		if err != nil {
			log.Fatalf("Failed to initialize Redis: %v", err)
		}
		defer rds.Close()
		eligibility = rds
		checks["redis"] = rds
	}

	// Engine and handler
	em := events.NewManager(true)
	engine := commission.NewEngine(store, eligibility, commission.WithNotifier(em))
	handler := api.NewHandler(engine, em)
	handler.HealthChecks = checks

	scheduler := api.NewReconciliationScheduler(engine, cfg.Reconcile.Schedule)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	handler.Scheduler = scheduler

	// Create router
	router := api.NewRouter(handler, cfg.Origins())

	// Create server. WriteTimeout stays 0: /api/events streams indefinitely.
	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	server.RegisterOnShutdown(em.Shutdown)

	// Start server in goroutine
	go func() {
		log.Printf("[Server] Starting on http://localhost:%s (db=%s, threshold=%s)",
			cfg.Server.Port, dialect, cfg.Eligibility.Source)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Server] Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("[Server] Forced to shutdown: %v", err)
	}
	scheduler.Stop()
	if err := tracing.Shutdown(ctx); err != nil {
		log.Printf("[Server] Failed to flush traces: %v", err)
	}

	log.Println("[Server] Stopped")
}

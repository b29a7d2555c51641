/*
main.go - Application entry point

PURPOSE:
  Starts the shop ledger's local API for the desktop shell's web UI.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Open the storage backend (SQLite, Pebble or memory)
  3. Load the document (migrating a legacy one)
  4. Create the ledger engine, metrics and API handler
  5. Start the rollover scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port     HTTP server port (default: $PORT or 8080)
  -db       Database path (default: $LEDGER_DB or shop-ledger.db)
            Use ":memory:" for an in-memory database
  -backend  sqlite | pebble | memory (default: $LEDGER_BACKEND or sqlite)

ENVIRONMENT:
  PORT, LEDGER_BACKEND, LEDGER_DB, LEDGER_TZ, ALLOWED_ORIGIN,
  ROLLOVER_SCHEDULE, DEFAULT_LOGIN_PASSWORD, DEFAULT_ADMIN_PASSWORD.
  A .env file in the working directory is read first.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the database
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/shop.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on Pebble
  ./server -backend=pebble -db="./data/shop-pebble"

SEE ALSO:
  - api/server.go: Router configuration
  - store/store.go: Document lifecycle
  - config/config.go: Environment keys
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

	"github.com/warp/shop-ledger/api"
	"github.com/warp/shop-ledger/config"
	"github.com/warp/shop-ledger/ledger"
	"github.com/warp/shop-ledger/metrics"
	"github.com/warp/shop-ledger/store"
	"github.com/warp/shop-ledger/store/memory"
	"github.com/warp/shop-ledger/store/pebble"
	"github.com/warp/shop-ledger/store/sqlite"
)

func main() {
	cfg := config.Load()

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "Database path (\":memory:\" for in-memory)")
	backendName := flag.String("backend", cfg.Backend, "Storage backend: sqlite, pebble or memory")
	flag.Parse()

	backend, err := openBackend(*backendName, *dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	reg := metrics.New()
	loc := cfg.Location()

	// Load the document
	st := store.New(backend,
		store.WithDefaults(cfg.Defaults()),
		store.WithLocation(loc),
		store.WithObserver(reg),
	)
	doc := st.Load(context.Background())
	log.Printf("Loaded document: %d customers, %d parts, %d operations",
		len(doc.Customers), len(doc.Parts), len(doc.Operations))

	engine := ledger.NewEngine(st,
		ledger.WithLocation(loc),
		ledger.WithObserver(reg),
		ledger.WithSink(ledger.SinkFunc(func(text string, kind ledger.NotificationType) {
			log.Printf("[Notify] %s: %s", kind, text)
		})),
	)

	scheduler := api.NewRolloverScheduler(engine)
	scheduler.Schedule = cfg.RolloverSchedule
	scheduler.OnWarn = func(string) { reg.ObserveStaleSession() }
	if err := scheduler.Start(); err != nil {
		log.Printf("Warning: rollover scheduler not started: %v", err)
	}

	handler := api.NewHandler(engine, st, loc)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        reg.Handler(),
	})

	// Loopback only: the desktop shell is the sole client
	server := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	if err := st.Close(); err != nil {
		log.Printf("Failed to close database: %v", err)
	}

	log.Println("Server stopped")
}

func openBackend(name, path string) (store.Backend, error) {
	switch name {
	case config.BackendSQLite:
		return sqlite.New(path)
	case config.BackendPebble:
		return pebble.New(path)
	case config.BackendMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

/*
main.go - Application entry point

PURPOSE:
  Starts the bonus recap server. Handles configuration, dependency
  injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional) and environment
  2. Open the store (memory, SQLite or PostgreSQL)
  3. Connect the recap cache (Redis, falling back to in-process)
  4. Build service, handler and router
  5. Start the recap scheduler
  6. Serve until SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -env     Path to a .env file (default: .env, missing is fine)

ENVIRONMENT:
  PORT, DB_DRIVER, SQLITE_PATH, DATABASE_URL,
  REDIS_ADDR, REDIS_PASSWORD, REDIS_DB, CACHE_TTL_SECONDS,
  ALLOWED_ORIGINS, RECONCILE_INTERVAL_MINUTES, SCHEDULER_ENABLED
  See config/config.go for defaults.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for an in-flight pass)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close cache and database connections

EXAMPLES:
  # SQLite file database
  SQLITE_PATH=./data/recap.db ./server

  # Throwaway in-memory store
  DB_DRIVER=memory ./server

  # PostgreSQL + Redis
  DATABASE_URL=postgres://... REDIS_ADDR=localhost:6379 ./server

SEE ALSO:
  - api/server.go: Router configuration
  - service/service.go: Recap passes
*/
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/bonus-recap/api"
	"github.com/warp/bonus-recap/cache"
	"github.com/warp/bonus-recap/config"
	"github.com/warp/bonus-recap/recap"
	memstore "github.com/warp/bonus-recap/recap/store"
	"github.com/warp/bonus-recap/service"
	"github.com/warp/bonus-recap/store/postgres"
	"github.com/warp/bonus-recap/store/sqlite"
)

func main() {
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	cfg := config.LoadFile(*envFile)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	recapCache, closeCache := openCache(cfg)
	defer closeCache()

	svc := service.New(store, recapCache, cfg.CacheTTL)
	handler := api.NewHandler(svc)
	router := api.NewRouter(handler, cfg.AllowedOrigins)

	scheduler := api.NewRecapScheduler(svc)
	scheduler.CheckInterval = cfg.ReconcileInterval
	scheduler.Enabled = cfg.SchedulerEnabled
	scheduler.Start()

	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost%s (store: %s)", cfg.Address(), cfg.DBDriver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

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

	log.Println("Server stopped")
}

func openStore(cfg config.Config) (recap.Store, error) {
	switch cfg.DBDriver {
	case config.DriverMemory:
		return memstore.NewMemory(), nil
	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return postgres.New(ctx, cfg.DatabaseURL)
	default:
		return sqlite.New(cfg.SQLitePath)
	}
}

// openCache prefers Redis when configured and reachable.
func openCache(cfg config.Config) (cache.RecapCache, func()) {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryRecapCache(), func() {}
	}

	rc := cache.NewRedisRecapCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		log.Printf("[Cache] Redis at %s unavailable, using in-process cache: %v", cfg.RedisAddr, err)
		rc.Close()
		return cache.NewMemoryRecapCache(), func() {}
	}

	log.Printf("[Cache] Using Redis at %s", cfg.RedisAddr)
	return rc, func() { rc.Close() }
}

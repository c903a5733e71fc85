/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the studio engine server. Handles
  configuration, dependency wiring, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse environment config, then command-line flag overrides
  2. Configure structured logging (JSON, optional rotating file)
  3. Open the SQLite store (or the in-memory store in demo mode)
  4. Build cache, views, metrics, consolidation runner
  5. Configure HTTP router
  6. Start server with graceful shutdown

CONFIGURATION:
  Environment (flag override in parens):
    STUDIO_PORT              HTTP port, default 8080        (-port)
    STUDIO_DB_PATH           SQLite path, default studio.db (-db)
    STUDIO_LOG_LEVEL         debug|info|warn|error          (-log-level)
    STUDIO_LOG_FILE          rotating log file, stderr if empty
    STUDIO_CACHE_ENTRIES     cache entry ceiling, default 1024
    STUDIO_CACHE_MEMORY_MB   cache memory ceiling, default 32
    STUDIO_CACHE_TTL_MS      default aggregate TTL, default 30000

  -mem runs entirely in memory (demo mode, no SQLite file).

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Cancel any active consolidation run
  3. Wait for active requests to complete (30s timeout)
  4. Close the database and exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/studio.db"

  # Demo mode, no database file
  ./server -mem

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/quartertone/studio-engine/api"
	"github.com/quartertone/studio-engine/cache"
	"github.com/quartertone/studio-engine/consolidate"
	"github.com/quartertone/studio-engine/store/sqlite"
	"github.com/quartertone/studio-engine/studio"
	memstore "github.com/quartertone/studio-engine/studio/store"
)

type config struct {
	Port          int    `env:"STUDIO_PORT" envDefault:"8080"`
	DBPath        string `env:"STUDIO_DB_PATH" envDefault:"studio.db"`
	LogLevel      string `env:"STUDIO_LOG_LEVEL" envDefault:"info"`
	LogFile       string `env:"STUDIO_LOG_FILE"`
	CacheEntries  int    `env:"STUDIO_CACHE_ENTRIES" envDefault:"1024"`
	CacheMemoryMB int    `env:"STUDIO_CACHE_MEMORY_MB" envDefault:"32"`
	CacheTTLMS    int    `env:"STUDIO_CACHE_TTL_MS" envDefault:"30000"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	// Flags override the environment
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug|info|warn|error)")
	useMemory := flag.Bool("mem", false, "run with the in-memory store (demo mode)")
	flag.Parse()

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	// Store
	var (
		entityStore studio.Store
		runLog      studio.RunLog
	)
	if *useMemory {
		mem := memstore.NewMemory()
		entityStore, runLog = mem, mem
		logger.Info("using in-memory store (demo mode)")
	} else {
		db, err := sqlite.New(cfg.DBPath)
		if err != nil {
			logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
			os.Exit(1)
		}
		defer db.Close()
		entityStore, runLog = db, db
		logger.Info("database open", "path", cfg.DBPath)
	}

	// Cache + views + metrics + runner
	aggCache := cache.New(cache.Config{
		MaxEntries:     cfg.CacheEntries,
		MaxMemoryBytes: int64(cfg.CacheMemoryMB) << 20,
		DefaultTTL:     time.Duration(cfg.CacheTTLMS) * time.Millisecond,
	})
	views := api.NewViews(entityStore, aggCache)
	metrics := api.NewMetrics(aggCache)
	runner := api.NewRunner(entityStore, runLog, views, logger.With("component", "consolidate"), consolidate.Options{})
	runner.Metrics = metrics

	handler := api.NewHandler(entityStore, runLog, views, runner, logger.With("component", "api"))
	router := api.NewRouter(handler, metrics)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	runner.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
		os.Exit(1)
	}

	runner.Wait()
	logger.Info("server stopped")
}

// newLogger builds the JSON logger, optionally writing to a rotating
// file instead of stderr.
func newLogger(cfg config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
}

// Package main provides the reference Task/Schedule API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" // #nosec G108 - pprof is intentionally exposed for debugging, isolated to separate port
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/muaviaUsmani/opsconsole/internal/config"
	"github.com/muaviaUsmani/opsconsole/internal/logger"
	"github.com/muaviaUsmani/opsconsole/internal/server"
	"github.com/muaviaUsmani/opsconsole/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := log.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close logger: %v\n", err)
		}
	}()

	// Set as default logger
	logger.SetDefault(log)

	apiLog := log.WithComponent(logger.ComponentAPI).WithSource(logger.LogSourceInternal)

	apiLog.Info("API server starting",
		"redis_url", cfg.RedisURL,
		"api_port", cfg.APIPort)

	st, err := store.NewRedisStore(cfg.RedisURL)
	if err != nil {
		apiLog.Error("Failed to connect to store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Optional fixtures for local development
	if path := os.Getenv("SEED_FILE"); path != "" {
		seed, err := store.LoadSeed(path)
		if err != nil {
			apiLog.Error("Failed to load seed file", "path", path, "error", err)
			os.Exit(1)
		}
		created, err := st.Seed(context.Background(), seed)
		if err != nil {
			apiLog.Error("Failed to seed store", "path", path, "error", err)
			os.Exit(1)
		}
		apiLog.Info("Seeded schedules", "count", len(created), "path", path)
	}

	// Start pprof server on separate port for profiling
	pprofPort := os.Getenv("PPROF_PORT")
	if pprofPort == "" {
		pprofPort = "6060"
	}
	go func() {
		apiLog.Info("Starting pprof server", "port", pprofPort, "url", fmt.Sprintf("http://localhost:%s/debug/pprof/", pprofPort))
		pprofServer := &http.Server{
			Addr:              ":" + pprofPort,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := pprofServer.ListenAndServe(); err != nil {
			apiLog.Error("pprof server failed", "error", err)
		}
	}()

	addr := ":" + cfg.APIPort
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(st, log).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		apiLog.Info("API server listening", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		apiLog.Info("Received shutdown signal, initiating graceful shutdown", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			apiLog.Error("API server failed", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		apiLog.Error("Graceful shutdown failed", "error", err)
	}
	apiLog.Info("API server stopped")
}

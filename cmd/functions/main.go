// Command functions serves the sci-bom edge functions: experiment creation
// and listing, signup, and the service-level user upsert.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/moeltae/sci-bom/internal/config"
	"github.com/moeltae/sci-bom/internal/functions"
	"github.com/moeltae/sci-bom/internal/janitor"
	"github.com/moeltae/sci-bom/internal/logging"
	"github.com/moeltae/sci-bom/internal/metrics"
	"github.com/moeltae/sci-bom/internal/middleware"
	"github.com/moeltae/sci-bom/internal/supabase"
	"github.com/moeltae/sci-bom/internal/watcher"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Service.Name, cfg.Service.LogLevel, cfg.Service.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("service exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	m := metrics.New("scibom")

	base, err := supabase.New(supabase.Config{
		URL:        cfg.Supabase.URL,
		AnonKey:    cfg.Supabase.AnonKey,
		ServiceKey: cfg.Supabase.ServiceKey,
	})
	if err != nil {
		return fmt.Errorf("supabase client: %w", err)
	}

	router := mux.NewRouter()
	router.Use(middleware.Tracing(logger))
	router.Use(middleware.Metrics(cfg.Service.Name, m))
	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst, logger)
	router.Use(limiter.Handler)
	limiterStop := make(chan struct{})
	defer close(limiterStop)
	limiter.StartCleanup(10*time.Minute, limiterStop)

	router.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	server := functions.NewServer(cfg, logger, m, base)
	if err := server.Register(router); err != nil {
		return err
	}

	if cfg.Janitor.Enabled {
		j := janitor.New(base.Service(), logger, cfg.Janitor.Schedule, cfg.Janitor.Grace.Std())
		if err := j.Start(); err != nil {
			return err
		}
		defer j.Stop()
	}

	if cfg.Realtime.Enabled {
		w := watcher.New(cfg.Supabase.URL, cfg.Supabase.ServiceKey, logger)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := w.Start(ctx); err != nil {
			logger.WithError(err).Warn("status watcher unavailable")
		} else {
			defer w.Stop()
		}
		cancel()
	}

	httpServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Service.Port),
		// Bounded per-invocation deadline; cancellation propagates into the
		// store calls through the request context.
		Handler:           http.TimeoutHandler(router, cfg.Service.RequestTimeout.Std(), `{"error":"request timed out"}`),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Service.Port).Info("functions server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.WithField("signal", sig.String()).Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "healthy",
		"service":   "functions",
		"version":   version,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

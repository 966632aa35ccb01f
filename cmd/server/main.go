package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/doctrans/internal/api"
	"github.com/dgallion1/doctrans/internal/backend"
	"github.com/dgallion1/doctrans/internal/config"
	"github.com/dgallion1/doctrans/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := backend.New(ctx, cfg.BackendConfig(log))
	if err != nil {
		log.Error("create backend", "backend", cfg.Backend, "error", err)
		os.Exit(1)
	}
	stats := backend.NewLLMStats(cfg.StatsWindow)
	b = backend.RateLimited(backend.Instrument(b, string(cfg.Backend), stats), cfg.RateLimit)

	orch := pipeline.NewOrchestrator(cfg, b, log)
	orch.Start(ctx)

	srv := api.NewServer(orch, stats, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "error", err)
		}

		orch.Stop()
		backend.Close(b)
	}()

	log.Info("starting doctrans", "port", cfg.Port, "backend", cfg.Backend, "model", cfg.Model)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

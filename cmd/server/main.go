package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roamly/roamly/internal/auth"
	"github.com/roamly/roamly/internal/clock"
	"github.com/roamly/roamly/internal/config"
	"github.com/roamly/roamly/internal/handler"
	"github.com/roamly/roamly/internal/middleware"
	"github.com/roamly/roamly/internal/service"
	"github.com/roamly/roamly/internal/storage"
	"github.com/roamly/roamly/internal/storage/sqlite"
	"github.com/roamly/roamly/pkg/logging"
)

func main() {
	logging.Setup()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.SetupWithLevel(logging.ParseLevel(cfg.LogLevel))

	docs, err := sqlite.New(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer docs.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	trips := storage.NewTripStore(docs)
	reviews := storage.NewReviewStore(docs)
	users := storage.NewUserStore(docs)

	clk := clock.System{}
	tripSvc := service.NewTripService(trips, users, clk, cfg.StoreTimeout)
	reviewSvc := service.NewReviewService(reviews, trips, users, clk, cfg.StoreTimeout)

	authenticator := auth.NewPasswordAuthenticator(users)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	api := handler.New(tripSvc, reviewSvc, users, authenticator, jwtManager)
	api.Routes(r)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", cfg.HTTPAddr)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	case sig := <-stop:
		slog.Info("Shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped")
}

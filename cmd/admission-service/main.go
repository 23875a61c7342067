package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/mt-platform/admission-service/internal/config"
	httpx "github.com/mt-platform/admission-service/internal/http"
	"github.com/mt-platform/admission-service/internal/http/handlers"
	"github.com/mt-platform/admission-service/internal/http/middleware"
	"github.com/mt-platform/admission-service/internal/ratelimit"
	"github.com/mt-platform/admission-service/internal/service"
	"github.com/mt-platform/admission-service/internal/storage/postgres"
	"github.com/mt-platform/admission-service/internal/store/redisstore"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	// Подключение к БД c таймаутом.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	str, err := postgres.New(dbCtx, cfg.DB.DatabaseURL)
	dbCancel()
	if err != nil {
		log.Error("postgres_connect_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer str.Close()
	log.Info("postgres_connected")

	// Подключение к Redis (общее состояние admission-слоя).
	rdCtx, rdCancel := context.WithTimeout(rootCtx, 10*time.Second)
	kv, err := redisstore.New(rdCtx, cfg.Redis.RedisURL)
	rdCancel()
	if err != nil {
		log.Error("redis_connect_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = kv.Close() }()
	log.Info("redis_connected")

	// Сервис и admission-пайплайн.
	srvc := service.New(str, kv, cfg.Auth)

	table := ratelimit.NewPolicyTable(ratelimit.Policy{
		MaxRequests: cfg.RateLimit.DefaultMaxRequests,
		Window:      cfg.RateLimit.DefaultWindow,
	})
	limiter := ratelimit.New(kv, table)
	adm := middleware.NewAdmission(limiter, srvc, cfg.Features.MatureContentEnabled)

	var ready atomic.Bool

	router := httpx.NewRouter(handlers.New(srvc), adm, table, httpx.Options{
		Logger:  log,
		Timeout: cfg.Timeouts.Request,
		Ready:   ready.Load,
	})
	log.Info("service_initialized")

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info("http_listen_start", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	ready.Store(true)

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	ready.Store(false)

	// Graceful stop с таймаутом.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_force_stop", slog.String("err", err.Error()))
		_ = httpSrv.Close()
	}

	log.Info("service_stopped")
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}

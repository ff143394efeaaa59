package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/taskshare/taskshare-api/internal/auth"
	"github.com/taskshare/taskshare-api/internal/middleware"
	"github.com/taskshare/taskshare-api/internal/observability"
	"github.com/taskshare/taskshare-api/internal/store"
	"github.com/taskshare/taskshare-api/internal/tasks"
	"github.com/taskshare/taskshare-api/internal/users"
)

func main() {
	logger := newLoggerFromEnv()
	slog.SetDefault(logger) // for third-party packages that use slog

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("config_error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.otelExporter, "taskshare-api")
	if err != nil {
		logger.Error("tracing_error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dsn, err := store.FileDSN(cfg.dbPath)
	if err != nil {
		logger.Error("dsn_error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	db, err := store.Open(dsn)
	if err != nil {
		logger.Error("db_open_error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := store.ApplyMigrations(ctx, db); err != nil {
		logger.Error("migrate_error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	userRepo := users.NewSQLiteRepo(db)
	taskRepo := tasks.NewSQLiteRepo(db)
	tokens := auth.NewTokens(cfg.jwtSecret, cfg.tokenTTL)

	r := newRouter(routerDeps{
		users:       userRepo,
		tasks:       taskRepo,
		tokens:      tokens,
		logger:      logger,
		corsOrigins: cfg.corsOrigins,
		rateRPS:     cfg.rateRPS,
		rateBurst:   cfg.rateBurst,
	})

	srv := &http.Server{
		Addr:    cfg.addr,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listen", slog.String("addr", cfg.addr))
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server_error", slog.String("error", err.Error()))
		}
	case sig := <-sigCh:
		logger.Info("server_shutdown", slog.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown_error", slog.String("error", err.Error()))
		}
	}

	if err := db.Close(); err != nil {
		logger.Error("db_close_error", slog.String("error", err.Error()))
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Error("tracing_shutdown_error", slog.String("error", err.Error()))
	}
}

type routerDeps struct {
	users       users.Repository
	tasks       tasks.Repository
	tokens      *auth.Tokens
	logger      *slog.Logger
	corsOrigins []string
	rateRPS     float64
	rateBurst   int
}

// newRouter wires the middleware stack and all routes. Auth, health, and
// metrics stay open; everything under /tasks requires a valid bearer token.
func newRouter(deps routerDeps) *chi.Mux {
	r := chi.NewRouter()

	// RequestID first so downstream can include it (logger, spans, etc.)
	r.Use(chimw.RequestID)

	// Panic recovery: never crash the server; returns 500 on panics
	r.Use(chimw.Recoverer)

	// Timeouts: cancel handlers that exceed this duration
	r.Use(chimw.Timeout(15 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "Trace-Id"},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	}))

	r.Use(middleware.RateLimit(middleware.NewLimiter(deps.rateRPS, deps.rateBurst)))
	r.Use(middleware.Metrics)
	r.Use(middleware.Tracing)
	r.Use(middleware.RequestLogger(deps.logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", middleware.MetricsHandler())

	auth.RegisterRoutes(r, deps.users, deps.tokens, deps.logger)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity(deps.tokens))
		tasks.RegisterRoutes(r, deps.tasks, deps.logger)
	})

	return r
}

type config struct {
	addr         string
	dbPath       string
	jwtSecret    string
	tokenTTL     time.Duration
	rateRPS      float64
	rateBurst    int
	corsOrigins  []string
	otelExporter string
}

func loadConfig() (config, error) {
	cfg := config{
		addr:         envOr("ADDR", ":8080"),
		dbPath:       envOr("DB_PATH", "data/taskshare.db"),
		jwtSecret:    os.Getenv("JWT_SECRET"),
		tokenTTL:     24 * time.Hour,
		rateRPS:      0, // disabled unless configured
		rateBurst:    1,
		corsOrigins:  []string{"*"},
		otelExporter: os.Getenv("OTEL_EXPORTER"),
	}

	if cfg.jwtSecret == "" {
		return config{}, fmt.Errorf("JWT_SECRET must be set")
	}

	if v := os.Getenv("TOKEN_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return config{}, fmt.Errorf("TOKEN_TTL: %w", err)
		}
		cfg.tokenTTL = ttl
	}

	if v := os.Getenv("RATE_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return config{}, fmt.Errorf("RATE_RPS: %w", err)
		}
		cfg.rateRPS = rps
	}
	if v := os.Getenv("RATE_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return config{}, fmt.Errorf("RATE_BURST: %w", err)
		}
		cfg.rateBurst = burst
	}

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.corsOrigins = strings.Split(v, ",")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newLoggerFromEnv() *slog.Logger {
	level := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: l,
	})
	return slog.New(handler)
}

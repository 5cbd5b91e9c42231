// Package main is the entry point for the location API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/brocosoup/PulseRelay-public-sub001/internal/api"
	"github.com/brocosoup/PulseRelay-public-sub001/internal/audit"
	"github.com/brocosoup/PulseRelay-public-sub001/internal/auth"
	"github.com/brocosoup/PulseRelay-public-sub001/internal/config"
	"github.com/brocosoup/PulseRelay-public-sub001/internal/db"
	"github.com/brocosoup/PulseRelay-public-sub001/internal/health"
	"github.com/brocosoup/PulseRelay-public-sub001/internal/location"
	"github.com/brocosoup/PulseRelay-public-sub001/internal/middleware"
	"github.com/brocosoup/PulseRelay-public-sub001/internal/tracing"
)

const serviceName = "pulserelay-api"

// rateLimitCleanupInterval is how often expired in-memory rate limit
// buckets are swept.
const rateLimitCleanupInterval = 5 * time.Minute

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("PulseRelay Location API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	summary := cfg.LogSummary()
	attrs := make([]any, 0, len(summary)*2)
	for k, v := range summary {
		attrs = append(attrs, k, v)
	}
	logger.Info("configuration loaded", attrs...)

	ctx := context.Background()

	tracer, err := tracing.NewProvider(tracing.Config{
		ServiceName: serviceName,
		Enabled:     cfg.TracingEnabled,
		Environment: cfg.Env,
		Protocol:    cfg.TracingProtocol,
		Endpoint:    cfg.TracingEndpoint,
		SampleRate:  cfg.TracingSampleRate,
		Insecure:    cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down tracer", "error", err)
		}
	}()

	// Storage: Postgres when configured, in-memory otherwise.
	var (
		settingsRepo location.SettingsRepository
		sampleRepo   location.SampleRepository
		auditRepo    audit.Repository
		dbChecker    api.HealthChecker
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		settingsRepo = location.NewPostgresSettingsRepository(pool)
		sampleRepo = location.NewPostgresSampleRepository(pool)
		auditRepo = audit.NewPostgresRepository(pool)
		dbChecker = health.NewDBChecker(pool)
		logger.Info("using postgres storage")
	} else {
		settingsRepo = location.NewInMemorySettingsRepository()
		sampleRepo = location.NewInMemorySampleRepository()
		auditRepo = audit.NewInMemoryRepository()
		logger.Warn("DATABASE_URL not set, using in-memory storage")
	}

	// Metrics registry shared by the HTTP middleware and the domain.
	registry := prometheus.NewRegistry()
	mwMetrics := middleware.NewMetrics()
	if err := mwMetrics.Register(registry); err != nil {
		logger.Error("failed to register middleware metrics", "error", err)
		os.Exit(1)
	}
	locMetrics := location.NewMetrics()
	if err := locMetrics.Register(registry); err != nil {
		logger.Error("failed to register location metrics", "error", err)
		os.Exit(1)
	}

	// Rate limit store: Redis when configured, in-memory otherwise.
	var (
		limitStore   middleware.RateLimitStore
		redisChecker api.HealthChecker
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to parse REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		limitStore = middleware.NewRedisRateLimitStore(redisClient).WithMetrics(mwMetrics)
		redisChecker = health.NewRedisChecker(redisClient)
		logger.Info("using redis rate limit store")
	} else {
		memStore := middleware.NewInMemoryRateLimitStore()
		limitStore = memStore

		cleanupDone := make(chan struct{})
		defer close(cleanupDone)
		go func() {
			ticker := time.NewTicker(rateLimitCleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					memStore.Cleanup()
				case <-cleanupDone:
					return
				}
			}
		}()
	}

	jwtService := auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret)

	service := location.NewService(settingsRepo, sampleRepo, auditRepo, locMetrics)
	locationHandlers := api.NewLocationHandlers(service)
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:    dbChecker,
		RedisChecker: redisChecker,
	})

	handler := buildHandler(routerConfig{
		locations:    locationHandlers,
		health:       healthHandlers,
		jwt:          jwtService,
		limitStore:   limitStore,
		metrics:      registry,
		corsOrigins:  cfg.CORSAllowedOrigins,
		logger:       logger,
		extraMetrics: mwMetrics,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// routerConfig carries everything buildHandler needs to assemble the
// route table and middleware chain.
type routerConfig struct {
	locations    *api.LocationHandlers
	health       *api.HealthHandlers
	jwt          *auth.JWTService
	limitStore   middleware.RateLimitStore
	metrics      *prometheus.Registry
	corsOrigins  []string
	logger       *slog.Logger
	extraMetrics *middleware.Metrics
}

// buildHandler assembles the route table and the middleware chain:
// RequestID -> Tracing -> HTTPMetrics -> Logging -> CORS -> global rate
// limit, with per-route auth and tighter per-user limits on the write
// and overlay paths.
func buildHandler(rc routerConfig) http.Handler {
	owner := middleware.RequireOwner(rc.jwt)
	overlay := middleware.RequireOverlay(rc.jwt)

	// The update path is limited per user, so the limiter sits inside the
	// auth middleware where the user ID is available.
	updateLimit := middleware.RateLimiter(rc.limitStore, middleware.DefaultUpdateLimit(), middleware.UserKeyFunc())
	overlayLimit := middleware.RateLimiter(rc.limitStore, middleware.DefaultOverlayLimit(), middleware.UserKeyFunc())

	mux := http.NewServeMux()

	mux.Handle("GET /api/location/settings", owner(http.HandlerFunc(rc.locations.GetSettings)))
	mux.Handle("PUT /api/location/settings", owner(http.HandlerFunc(rc.locations.UpdateSettings)))
	mux.Handle("POST /api/location/update", owner(updateLimit(http.HandlerFunc(rc.locations.UpdateLocation))))
	mux.Handle("GET /api/location/current", owner(http.HandlerFunc(rc.locations.GetCurrent)))
	mux.Handle("GET /api/location/history", owner(http.HandlerFunc(rc.locations.GetHistory)))
	mux.Handle("DELETE /api/location/data", owner(http.HandlerFunc(rc.locations.DeleteData)))
	mux.Handle("GET /api/overlay/location/current", overlay(overlayLimit(http.HandlerFunc(rc.locations.GetOverlayCurrent))))

	mux.HandleFunc("/health", rc.health.Health)
	mux.HandleFunc("/ready", rc.health.Ready)
	mux.Handle("GET /metrics", promhttp.HandlerFor(rc.metrics, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"` + serviceName + `","version":"0.0.1"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	globalLimit := middleware.RateLimiter(rc.limitStore, middleware.DefaultGlobalLimit(), middleware.IPKeyFunc())

	var handler http.Handler = mux
	handler = globalLimit(handler)
	handler = middleware.CORS(middleware.CORSConfig{AllowedOrigins: rc.corsOrigins})(handler)
	handler = middleware.Logging(rc.logger)(handler)
	handler = middleware.HTTPMetrics(rc.extraMetrics)(handler)
	handler = middleware.Tracing(serviceName)(handler)
	handler = middleware.RequestID(handler)

	return handler
}

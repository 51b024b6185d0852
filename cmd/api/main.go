// Package main is the entry point for the SIGA core API server: the audit
// trail and the absence escalation engine behind the academic management
// system.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sigaedu/siga/internal/absence"
	"github.com/sigaedu/siga/internal/api"
	"github.com/sigaedu/siga/internal/audit"
	"github.com/sigaedu/siga/internal/config"
	"github.com/sigaedu/siga/internal/db"
	"github.com/sigaedu/siga/internal/escalation"
	"github.com/sigaedu/siga/internal/health"
	"github.com/sigaedu/siga/internal/jobs"
	"github.com/sigaedu/siga/internal/middleware"
	"github.com/sigaedu/siga/internal/notify"
	"github.com/sigaedu/siga/internal/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("SIGA Core API Server")
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
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	summary := cfg.LogSummary()
	attrs := make([]any, 0, len(summary)*2)
	for key, value := range summary {
		attrs = append(attrs, key, value)
	}
	logger.Info("configuration loaded", attrs...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Distributed tracing is opt-in: spans are recorded but dropped until an
	// OTLP endpoint is configured.
	tracingProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "siga-api",
		Enabled:      os.Getenv("TRACING_ENABLED") == "true",
		Environment:  cfg.Env,
		ExporterType: os.Getenv("TRACING_EXPORTER"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
		SamplingRate: 1.0,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := tracingProvider.Shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracing", "error", err)
		}
	}()

	// Metrics registry: HTTP middleware metrics plus background job metrics.
	registry := prometheus.NewRegistry()
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register HTTP metrics", "error", err)
		os.Exit(1)
	}
	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(registry); err != nil {
		logger.Error("failed to register job metrics", "error", err)
		os.Exit(1)
	}

	// Persistence: Postgres when configured, in-memory otherwise.
	var (
		store     audit.Store
		ledger    absence.Ledger
		dbChecker api.HealthChecker
	)
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer conn.Close()
		store = audit.NewPostgresStore(conn, cfg.MaxAuditEntries)
		ledger = absence.NewPostgresLedger(conn)
		dbChecker = health.NewDBChecker(conn)
		logger.Info("using postgres persistence")
	} else {
		store = audit.NewMemoryStore(cfg.MaxAuditEntries)
		ledger = absence.NewMemoryLedger()
		logger.Info("using in-memory persistence", "max_audit_entries", cfg.MaxAuditEntries)
	}

	// Redis backs the escalation pub/sub sink and distributed rate limiting.
	var (
		redisClient  *redis.Client
		redisChecker api.HealthChecker
		rateStore    middleware.RateLimitStore
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		redisChecker = health.NewRedisChecker(redisClient)
		redisRateStore := middleware.NewRedisRateLimitStore(redisClient)
		redisRateStore.SetMetrics(httpMetrics)
		rateStore = redisRateStore
	} else {
		rateStore = middleware.NewInMemoryRateLimitStore()
	}

	recorder := audit.NewRecorder(store, logger)
	queryEngine := audit.NewQueryEngine(store)

	engine := escalation.NewEngine(escalation.Config{
		WarningThreshold:  cfg.WarningThreshold,
		CriticalThreshold: cfg.CriticalThreshold,
	})

	broadcaster := notify.NewBroadcaster()
	sinks := []escalation.NotificationSink{notify.NewBroadcastSink(broadcaster)}
	if redisClient != nil {
		sinks = append(sinks, escalation.NewRedisSink(redisClient, cfg.EscalationChannel))
	}
	sinks = append(sinks, escalation.NewLogSink(logger))
	ingestor := escalation.NewIngestor(ledger, engine, escalation.NewMultiSink(sinks...), logger, jobMetrics)

	if cfg.SeedDemoData {
		if err := audit.Seed(ctx, recorder, store); err != nil {
			logger.Error("failed to seed demo audit events", "error", err)
		}
	}

	auditHandlers := api.NewAuditHandlers(recorder, queryEngine, store)
	absenceHandlers := api.NewAbsenceHandlers(ingestor, ledger, engine)
	wsHandlers := api.NewNotificationWebSocketHandlers(broadcaster)
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:      dbChecker,
		RedisChecker:   redisChecker,
		MetricsEnabled: true,
	})

	exportLimiter := middleware.RateLimiter(rateStore, middleware.DefaultExportLimit(), middleware.ActorKeyFunc(), httpMetrics)
	ingestLimiter := middleware.RateLimiter(rateStore, middleware.DefaultIngestLimit(), middleware.ActorKeyFunc(), httpMetrics)

	mux := http.NewServeMux()

	mux.HandleFunc("/audit/events", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			auditHandlers.SearchEvents(w, r)
		case http.MethodPost:
			auditHandlers.RecordEvent(w, r)
		case http.MethodDelete:
			auditHandlers.ClearEvents(w, r)
		default:
			methodNotAllowed(w, r)
		}
	})
	mux.HandleFunc("/audit/statistics", requireMethod(http.MethodGet, auditHandlers.Statistics))
	mux.Handle("/audit/export", exportLimiter(http.HandlerFunc(requireMethod(http.MethodGet, auditHandlers.Export))))
	mux.HandleFunc("/audit/prune", requireMethod(http.MethodPost, auditHandlers.Prune))

	mux.Handle("/absences", ingestLimiter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			absenceHandlers.ListRecords(w, r)
		case http.MethodPost:
			absenceHandlers.ReportAbsence(w, r)
		default:
			methodNotAllowed(w, r)
		}
	})))
	mux.HandleFunc("/absences/summary", requireMethod(http.MethodGet, absenceHandlers.Summary))
	// /absences/{studentID}: method dispatch happens inside the handler.
	mux.HandleFunc("/absences/", absenceHandlers.StudentRecord)

	mux.HandleFunc("/notifications/ws", wsHandlers.Subscribe)

	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			errCtx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, errCtx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"siga-core","version":"0.1.0"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	// Middleware chain, outermost first: RequestID -> Logging -> Tracing ->
	// HTTPMetrics -> CORS -> global rate limit.
	var handler http.Handler = mux
	handler = middleware.RateLimiter(rateStore, middleware.DefaultGlobalLimit(), middleware.IPKeyFunc(), httpMetrics)(handler)
	handler = middleware.CORS(corsConfigFromEnv())(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Tracing("siga-api")(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RequestID(handler)

	// Background retention for the audit store.
	stopRetention := make(chan struct{})
	go audit.RunPeriodicRetention(ctx, store,
		time.Duration(cfg.RetentionInterval)*time.Hour,
		cfg.RetentionDays, jobMetrics, stopRetention)

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
	close(stopRetention)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// requireMethod rejects any method other than the given one with a structured
// 405 error.
func requireMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			methodNotAllowed(w, r)
			return
		}
		next(w, r)
	}
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeBadRequest)
	api.WriteError(w, ctx, http.StatusMethodNotAllowed, api.ErrCodeBadRequest, "Method not allowed")
}

// corsConfigFromEnv builds the CORS allowlist from CORS_ALLOWED_ORIGINS
// (comma-separated). An empty value disables CORS handling entirely.
func corsConfigFromEnv() middleware.CORSConfig {
	origins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if origins == "" {
		return middleware.CORSConfig{}
	}
	var allowed []string
	for _, origin := range strings.Split(origins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			allowed = append(allowed, trimmed)
		}
	}
	return middleware.CORSConfig{
		AllowedOrigins:   allowed,
		AllowCredentials: true,
		MaxAge:           300,
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // dashboard timezones in minimal containers

	"github.com/boddenberg/leadchat-bfa-go/internal/business"
	"github.com/boddenberg/leadchat-bfa-go/internal/chat/infra"
	chatservice "github.com/boddenberg/leadchat-bfa-go/internal/chat/service"
	"github.com/boddenberg/leadchat-bfa-go/internal/config"
	"github.com/boddenberg/leadchat-bfa-go/internal/dashboard"
	"github.com/boddenberg/leadchat-bfa-go/internal/handler"
	"github.com/boddenberg/leadchat-bfa-go/internal/infra/cache"
	"github.com/boddenberg/leadchat-bfa-go/internal/infra/ledger"
	"github.com/boddenberg/leadchat-bfa-go/internal/infra/observability"
	"github.com/boddenberg/leadchat-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/leadchat-bfa-go/internal/infra/supabase"
	"github.com/boddenberg/leadchat-bfa-go/internal/port"
	"github.com/boddenberg/leadchat-bfa-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("businesses_path", cfg.BusinessesPath),
		zap.String("lead_store", cfg.LeadStore),
		zap.String("llm_provider", cfg.LLMProvider),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
		zap.Int("rate_limit_chat", cfg.RateLimitChat.Requests),
		zap.Duration("prompt_cache_ttl", cfg.PromptCacheTTL),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "leadchat")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Tenants ---
	store := business.Load(cfg.BusinessesPath, cfg.DataDir, logger)
	if store.Len() == 0 {
		logger.Warn("no business profiles available, every chat gets the fallback reply")
	}

	// --- Lead ledger ---
	var leadLedger port.LeadLedger
	var ledgerPinger port.Pinger

	switch cfg.LeadStore {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		rdb, err := ledger.Connect(ctx, cfg.RedisURL, cfg.RedisConnectRetries, logger)
		cancel()
		if err != nil {
			logger.Fatal("failed to connect lead ledger", zap.Error(err))
		}
		defer rdb.Close()

		redisLedger := ledger.NewRedisLedger(rdb, logger)
		leadLedger, ledgerPinger = redisLedger, redisLedger
		logger.Info("using Redis lead ledger")
	case "supabase":
		client := supabase.NewClient(
			&http.Client{Timeout: 10 * time.Second},
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"),
			resilience.Config{MaxRetries: 2, InitialBackoff: 100 * time.Millisecond},
			logger,
		)
		leadStore := supabase.NewLeadStore(client, logger)
		leadLedger, ledgerPinger = leadStore, leadStore
		logger.Info("using Supabase lead ledger", zap.String("supabase_url", cfg.SupabaseURL))
	default:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			logger.Fatal("failed to create data dir", zap.String("dir", cfg.DataDir), zap.Error(err))
		}
		leadLedger = ledger.NewFileLedger(logger)
		logger.Info("using file lead ledger", zap.String("data_dir", cfg.DataDir))
	}

	// --- Language model ---
	model, err := infra.NewModel(infra.ProviderConfig{
		Provider:      cfg.LLMProvider,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIModel:   cfg.OpenAIModel,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OllamaModel:   cfg.OllamaModel,
		OllamaURL:     cfg.OllamaURL,
		Timeout:       cfg.HTTPTimeout,
	})
	if err != nil {
		logger.Fatal("failed to create llm client", zap.Error(err))
	}
	oracle := infra.NewLLMOracle(
		model,
		resilience.NewCircuitBreaker("llm"),
		resilience.NewBulkhead(cfg.MaxConcurrency),
		metrics,
		logger,
	)

	// --- Services ---
	prompts := cache.New[string](cfg.PromptCacheTTL)
	defer prompts.Close()

	leadSvc := service.NewLeadService(store, leadLedger, cfg.PhoneRegion, metrics, logger)
	dashboardSvc := service.NewDashboardService(store, leadLedger, logger)
	chatSvc := chatservice.NewChatService(
		store,
		oracle,
		leadSvc,
		prompts,
		chatservice.Options{
			DefaultSiteID:   cfg.DefaultSiteID,
			MaxHistoryTurns: cfg.MaxHistoryTurns,
		},
		metrics,
		logger,
	)

	// --- Router ---
	rateLimiter := handler.NewRateLimiter(cfg.RateLimitChat, metrics, logger)
	defer rateLimiter.Close()

	router := handler.NewRouter(
		handler.Deps{
			Chat:         chatSvc,
			Dashboard:    dashboardSvc,
			Renderer:     dashboard.NewRenderer(cfg.DefaultTimezone),
			LedgerPinger: ledgerPinger,
			RateLimiter:  rateLimiter,
			Metrics:      metrics,
			Logger:       logger,
		},
		handler.Options{
			CORSOrigins:   cfg.CORSOrigins,
			StaticDir:     cfg.StaticDir,
			DefaultSiteID: cfg.DefaultSiteID,
		},
	)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HTTPTimeout + 10*time.Second, // outlives the model call
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Port),
			zap.String("public_url", cfg.PublicBaseURL),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
		return
	}

	logger.Info("server stopped")
}

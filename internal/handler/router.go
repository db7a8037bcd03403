package handler

import (
	"bytes"
	"context"
	"net/http"
	"time"

	chathandler "github.com/boddenberg/leadchat-bfa-go/internal/chat/handler"
	chatservice "github.com/boddenberg/leadchat-bfa-go/internal/chat/service"
	"github.com/boddenberg/leadchat-bfa-go/internal/dashboard"
	"github.com/boddenberg/leadchat-bfa-go/internal/domain"
	"github.com/boddenberg/leadchat-bfa-go/internal/infra/observability"
	"github.com/boddenberg/leadchat-bfa-go/internal/port"
	"github.com/boddenberg/leadchat-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Deps groups what the router serves.
// LedgerPinger is optional; when set, /healthz reports the ledger backend.
type Deps struct {
	Chat         *chatservice.ChatService
	Dashboard    *service.DashboardService
	Renderer     *dashboard.Renderer
	LedgerPinger port.Pinger
	RateLimiter  *RateLimiter
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// Options configures the HTTP surface.
type Options struct {
	CORSOrigins   []string
	StaticDir     string // widget assets; empty disables static serving
	DefaultSiteID string
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(deps Deps, opts Options) http.Handler {
	r := chi.NewRouter()
	logger := deps.Logger

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	// --- Operational endpoints ---
	r.Get("/health", healthHandler())
	r.Get("/healthz", healthzHandler(deps.LedgerPinger, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/v1/metrics/chat", chatMetricsHandler(deps.Metrics))

	// =============================================
	// Chat widget
	// POST /chat
	// =============================================
	r.With(deps.RateLimiter.Middleware).Post("/chat", chathandler.ChatHandler(deps.Chat, logger))

	// =============================================
	// Lead dashboard
	// GET /admin/leads?siteId=...&token=...
	// =============================================
	r.Get("/admin/leads", leadsDashboardHandler(deps.Dashboard, deps.Renderer, opts.DefaultSiteID, logger))

	// --- Widget assets ---
	if opts.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(opts.StaticDir)))
	}

	return r
}

// ============================================================
// Lead dashboard — GET /admin/leads
// ============================================================

func leadsDashboardHandler(svc *service.DashboardService, renderer *dashboard.Renderer, defaultSiteID string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /admin/leads")
		defer span.End()

		// The token travels in the URL; keep it out of caches and referrers.
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "no-referrer")

		siteID := r.URL.Query().Get("siteId")
		if siteID == "" {
			siteID = defaultSiteID
		}
		span.SetAttributes(attribute.String("site.id", siteID))

		view, err := svc.Leads(ctx, siteID, r.URL.Query().Get("token"))
		if err != nil {
			handleDashboardError(w, siteID, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("leads.count", len(view.Leads)))

		var buf bytes.Buffer
		if err := renderer.Render(&buf, view.Profile, view.Leads); err != nil {
			logger.Error("dashboard render failed", zap.String("site_id", siteID), zap.Error(err))
			writeText(w, http.StatusInternalServerError, "internal server error")
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}
}

// ============================================================
// Health & metrics
// ============================================================

// healthHandler is the plain liveness probe used by hosting platforms.
func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusOK, "OK")
	}
}

func healthzHandler(ledger port.Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "leadchat-api", Status: "healthy", LastChecked: now},
		}

		if ledger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			start := time.Now()
			err := ledger.Ping(ctx)
			status := "healthy"
			if err != nil {
				status = "degraded"
				logger.Warn("lead ledger ping failed", zap.Error(err))
			}
			services = append(services, domain.ServiceHealth{
				Name: "lead-ledger", Status: status,
				LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status != "healthy" {
				overallStatus = s.Status
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func chatMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetChatSnapshot())
	}
}

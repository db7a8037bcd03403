package observability

import (
	"time"

	"github.com/boddenberg/leadchat-bfa-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Lead capture outcomes, used as the "outcome" label of leadchat_leads_total.
const (
	LeadCaptured  = "captured"
	LeadDiscarded = "discarded"
	LeadFailed    = "failed"
)

// Chat request statuses, used as the "status" label of leadchat_chat_requests_total.
const (
	ChatSuccess     = "success"
	ChatFallback    = "fallback"
	ChatInvalid     = "invalid"
	ChatError       = "error"
	ChatRateLimited = "rate_limited"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	tokensUsed      *prometheus.CounterVec
	chatRequests    *prometheus.CounterVec
	leads           *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadchat_operation_duration_seconds",
				Help:    "Duration of operations (chat, oracle, ledger_append, dashboard).",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadchat_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadchat_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadchat_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadchat_llm_tokens_total",
				Help: "Total LLM tokens consumed.",
			},
			[]string{"type"},
		),
		chatRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadchat_chat_requests_total",
				Help: "Total chat requests by outcome.",
			},
			[]string{"status"},
		),
		leads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadchat_leads_total",
				Help: "Lead marker lines seen, by outcome.",
			},
			[]string{"site_id", "outcome"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordTokens records prompt and completion token usage.
func (m *Metrics) RecordTokens(prompt, completion int) {
	m.tokensUsed.WithLabelValues("prompt").Add(float64(prompt))
	m.tokensUsed.WithLabelValues("completion").Add(float64(completion))
}

// IncrChatRequest increments the chat request counter with a status label.
func (m *Metrics) IncrChatRequest(status string) {
	m.chatRequests.WithLabelValues(status).Inc()
}

// IncrLead increments the lead counter for a tenant and outcome.
func (m *Metrics) IncrLead(siteID, outcome string) {
	m.leads.WithLabelValues(siteID, outcome).Inc()
}

// GetChatSnapshot returns a snapshot of chat and lead metrics suitable for the
// GET /v1/metrics/chat endpoint. Values are cumulative since process start.
func (m *Metrics) GetChatSnapshot() *domain.ChatMetrics {
	success := getCounterValue(m.chatRequests, ChatSuccess)
	fallback := getCounterValue(m.chatRequests, ChatFallback)
	failed := getCounterValue(m.chatRequests, ChatError)
	total := success + fallback + failed + getCounterValue(m.chatRequests, ChatInvalid)

	captured := sumByLabel(m.leads, "outcome", LeadCaptured)
	discarded := sumByLabel(m.leads, "outcome", LeadDiscarded)
	leadFailures := sumByLabel(m.leads, "outcome", LeadFailed)

	tokens := getCounterValue(m.tokensUsed, "prompt") + getCounterValue(m.tokensUsed, "completion")
	hits := getCounterValue(m.cacheHits, "prompt")
	misses := getCounterValue(m.cacheMisses, "prompt")

	snap := &domain.ChatMetrics{
		TotalRequests:  int64(total),
		LeadsCaptured:  int64(captured),
		LeadsDiscarded: int64(discarded),
		LeadsFailed:    int64(leadFailures),
		Period:         "all_time",
	}
	if total > 0 {
		snap.ErrorRate = failed / total
		snap.FallbackRate = fallback / total
	}
	if success > 0 {
		snap.CaptureRate = captured / success
		snap.AvgTokensPerReply = tokens / success
	}
	if hits+misses > 0 {
		snap.PromptCacheHitRate = hits / (hits + misses)
	}
	return snap
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

// sumByLabel adds up every series of cv whose label name has the given value.
func sumByLabel(cv *prometheus.CounterVec, name, value string) float64 {
	ch := make(chan prometheus.Metric, 64)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	var total float64
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil || m.Counter == nil {
			continue
		}
		for _, lp := range m.Label {
			if lp.GetName() == name && lp.GetValue() == value {
				total += m.Counter.GetValue()
			}
		}
	}
	return total
}

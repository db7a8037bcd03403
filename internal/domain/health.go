package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// ChatMetrics is returned by GET /v1/metrics/chat.
type ChatMetrics struct {
	TotalRequests      int64   `json:"totalRequests"`
	ErrorRate          float64 `json:"errorRate"`
	FallbackRate       float64 `json:"fallbackRate"`
	LeadsCaptured      int64   `json:"leadsCaptured"`
	LeadsDiscarded     int64   `json:"leadsDiscarded"`
	LeadsFailed        int64   `json:"leadsFailed"`
	CaptureRate        float64 `json:"captureRate"`
	AvgTokensPerReply  float64 `json:"avgTokensPerReply"`
	PromptCacheHitRate float64 `json:"promptCacheHitRate"`
	Period             string  `json:"period"`
}

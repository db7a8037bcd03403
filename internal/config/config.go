package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig indicates how many requests are allowed within a given interval.
type RateLimitConfig struct {
	Requests int
	Interval time.Duration
}

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port          int
	LogLevel      string
	PublicBaseURL string
	StaticDir     string
	CORSOrigins   []string

	// Tenants
	BusinessesPath  string
	DataDir         string
	DefaultSiteID   string
	DefaultTimezone string
	PhoneRegion     string

	// Oracle (language model)
	LLMProvider     string // "openai" or "ollama"
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string
	OllamaModel     string
	OllamaURL       string
	MaxHistoryTurns int

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxConcurrency int
	RateLimitChat  RateLimitConfig

	// Cache
	PromptCacheTTL time.Duration

	// Lead ledger
	LeadStore           string // "file", "redis" or "supabase"
	RedisURL            string
	RedisConnectRetries int

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string

	// Observability
	OTLPEndpoint string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnvInt("PORT", 3000),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:3000"),
		StaticDir:     getEnv("STATIC_DIR", ""),
		CORSOrigins:   splitList(getEnv("CORS_ORIGINS", "*")),

		BusinessesPath:  getEnv("BUSINESSES_PATH", "businesses.json"),
		DataDir:         getEnv("DATA_DIR", "."),
		DefaultSiteID:   getEnv("DEFAULT_SITE_ID", "demo-plumber"),
		DefaultTimezone: getEnv("DEFAULT_TIMEZONE", "America/New_York"),
		PhoneRegion:     strings.ToUpper(getEnv("PHONE_REGION", "US")),

		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4.1-mini"),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		OllamaModel:     getEnv("OLLAMA_MODEL", "llama3.1"),
		OllamaURL:       getEnv("OLLAMA_URL", "http://localhost:11434"),
		MaxHistoryTurns: getEnvInt("MAX_HISTORY_TURNS", 40),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 60*time.Second),

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		PromptCacheTTL: getEnvDuration("PROMPT_CACHE_TTL", 10*time.Minute),

		LeadStore:           strings.ToLower(getEnv("LEAD_STORE", "file")),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisConnectRetries: getEnvInt("REDIS_CONNECT_RETRIES", 3),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	rl, err := parseRateLimit(getEnv("RATE_LIMIT_CHAT", "30/min"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_CHAT value: %w", err)
	}
	cfg.RateLimitChat = rl

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LLMProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("missing OPENAI_API_KEY")
		}
	case "ollama":
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q (expected openai or ollama)", c.LLMProvider)
	}

	switch c.LeadStore {
	case "file", "redis":
	case "supabase":
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			return fmt.Errorf("LEAD_STORE=supabase requires SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")
		}
	default:
		return fmt.Errorf("unknown LEAD_STORE %q (expected file, redis or supabase)", c.LeadStore)
	}

	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid DEFAULT_TIMEZONE %q: %w", c.DefaultTimezone, err)
	}
	return nil
}

// parseRateLimit parses "<requests>/<unit>", e.g. "30/min". "0" or "off" disables limiting.
func parseRateLimit(value string) (RateLimitConfig, error) {
	value = strings.TrimSpace(value)
	if value == "0" || strings.EqualFold(value, "off") {
		return RateLimitConfig{}, nil
	}

	parts := strings.Split(value, "/")
	if len(parts) != 2 {
		return RateLimitConfig{}, fmt.Errorf("expected format <requests>/<interval>, got %q", value)
	}

	requests, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || requests <= 0 {
		return RateLimitConfig{}, fmt.Errorf("invalid request count: %v", parts[0])
	}

	var interval time.Duration
	switch unit := strings.ToLower(strings.TrimSpace(parts[1])); unit {
	case "s", "sec", "second", "seconds":
		interval = time.Second
	case "m", "min", "minute", "minutes":
		interval = time.Minute
	case "h", "hour", "hours":
		interval = time.Hour
	default:
		d, err := time.ParseDuration(unit)
		if err != nil || d <= 0 {
			return RateLimitConfig{}, fmt.Errorf("invalid interval: %v", parts[1])
		}
		interval = d
	}

	return RateLimitConfig{Requests: requests, Interval: interval}, nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

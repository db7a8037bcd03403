package handler

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/boddenberg/leadchat-bfa-go/internal/config"
	"github.com/boddenberg/leadchat-bfa-go/internal/infra/cache"
	"github.com/boddenberg/leadchat-bfa-go/internal/infra/observability"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter is a per-client-IP token bucket.
//
// Limiters live in a TTL cache, so idle clients are forgotten. The TTL is
// several intervals long; a client whose limiter expires mid-burst gets at
// most one extra bucket per TTL.
type RateLimiter struct {
	limiters *cache.InMemory[*rate.Limiter]
	limit    rate.Limit
	burst    int
	retry    string // Retry-After seconds: time to earn one token
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewRateLimiter creates a limiter allowing cfg.Requests per cfg.Interval
// per client. It returns nil when rate limiting is disabled.
func NewRateLimiter(cfg config.RateLimitConfig, metrics *observability.Metrics, logger *zap.Logger) *RateLimiter {
	if cfg.Requests <= 0 || cfg.Interval <= 0 {
		return nil
	}
	ttl := 10 * cfg.Interval
	if ttl < time.Minute {
		ttl = time.Minute
	}
	perToken := cfg.Interval / time.Duration(cfg.Requests)
	retry := int(math.Ceil(perToken.Seconds()))
	if retry < 1 {
		retry = 1
	}
	return &RateLimiter{
		limiters: cache.New[*rate.Limiter](ttl),
		limit:    rate.Every(perToken),
		burst:    cfg.Requests,
		retry:    strconv.Itoa(retry),
		metrics:  metrics,
		logger:   logger,
	}
}

// Middleware rejects requests over the limit with 429.
// A nil RateLimiter lets everything through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		limiter, _ := rl.limiters.GetOrCreate(ip, func() *rate.Limiter {
			return rate.NewLimiter(rl.limit, rl.burst)
		})

		if !limiter.Allow() {
			rl.metrics.IncrChatRequest(observability.ChatRateLimited)
			rl.logger.Debug("rate limit exceeded", zap.String("client_ip", ip))
			w.Header().Set("Retry-After", rl.retry)
			writeError(w, http.StatusTooManyRequests, "Too many messages. Please wait a moment and try again.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Close stops the limiter cache's cleanup goroutine.
func (rl *RateLimiter) Close() {
	if rl != nil {
		rl.limiters.Close()
	}
}

// clientIP returns the host part of RemoteAddr, which middleware.RealIP
// has already replaced with the forwarded address when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

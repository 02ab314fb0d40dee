package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sodav-monitor/sodav/pkg/auth"
	"github.com/sodav-monitor/sodav/pkg/httputil"
	"github.com/sodav-monitor/sodav/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int `yaml:"requests_per_window"`
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration `yaml:"window"`
	// BurstSize allows temporary bursts above the rate. Ignored by the
	// Redis limiter.
	BurstSize int `yaml:"burst"`
}

// DefaultRateLimitConfig is the quota for unauthenticated callers.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    time.Minute,
		BurstSize:         10,
	}
}

// PerUserRateLimitConfig is the quota for bearer-authenticated users.
func PerUserRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 1000,
		WindowDuration:    time.Minute,
		BurstSize:         50,
	}
}

// PerKeyRateLimitConfig is the quota for ingestion API keys. Monitoring
// probes post detections continuously, so it is the most generous.
func PerKeyRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 5000,
		WindowDuration:    time.Minute,
		BurstSize:         100,
	}
}

// Decision is the outcome of one limiter check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RateLimiter implements rate limiting using token bucket algorithm
type RateLimiter struct {
	config  *RateLimitConfig
	now     func() time.Time
	buckets map[string]*bucket
	mu      sync.Mutex
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// NewRateLimiter creates a new in-process rate limiter
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	return &RateLimiter{
		config:  config,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (rl *RateLimiter) capacity() float64 {
	return float64(rl.config.RequestsPerWindow + rl.config.BurstSize)
}

// Allow takes one token from key's bucket, refilling it for elapsed time.
func (rl *RateLimiter) Allow(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{tokens: rl.capacity(), lastUpdate: now}
		rl.buckets[key] = b
	}

	rate := float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds()
	if elapsed := now.Sub(b.lastUpdate).Seconds(); elapsed > 0 {
		b.tokens = math.Min(rl.capacity(), b.tokens+elapsed*rate)
		b.lastUpdate = now
	}

	d := Decision{Limit: rl.config.RequestsPerWindow, Reset: now.Add(rl.config.WindowDuration)}
	if b.tokens >= 1 {
		b.tokens--
		d.Allowed = true
	} else if rate > 0 {
		d.Reset = now.Add(time.Duration((1 - b.tokens) / rate * float64(time.Second)))
	}
	d.Remaining = int(b.tokens)
	return d, nil
}

// Cleanup drops buckets idle for more than two windows.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastUpdate) > rl.config.WindowDuration*2 {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanup runs Cleanup every window until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Rate limit classes, also used as metric labels.
const (
	ClassAnonymous = "anonymous"
	ClassUser      = "user"
	ClassKey       = "key"
)

// RateLimitMiddleware picks a limiter by caller class. It must run after
// the gating middleware so the principal is in context.
type RateLimitMiddleware struct {
	anonymous Limiter
	user      Limiter
	key       Limiter
	metrics   *observability.Metrics
}

// NewRateLimitMiddleware creates a rate limit middleware. A nil limiter
// disables limiting for that class.
func NewRateLimitMiddleware(anonymous, user, key Limiter, metrics *observability.Metrics) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		anonymous: anonymous,
		user:      user,
		key:       key,
		metrics:   metrics,
	}
}

// NewMemoryRateLimitMiddleware builds in-process limiters with the default
// quotas.
func NewMemoryRateLimitMiddleware(metrics *observability.Metrics) *RateLimitMiddleware {
	return NewRateLimitMiddleware(
		NewRateLimiter(DefaultRateLimitConfig()),
		NewRateLimiter(PerUserRateLimitConfig()),
		NewRateLimiter(PerKeyRateLimitConfig()),
		metrics,
	)
}

func (m *RateLimitMiddleware) classify(r *http.Request) (class, key string, limiter Limiter) {
	principal := PrincipalFrom(r.Context())
	switch {
	case principal != nil && principal.Method == auth.MethodAPIKey && principal.Key != nil:
		return ClassKey, "key:" + principal.Key.ID, m.key
	case principal != nil && principal.UserID() != "":
		return ClassUser, "user:" + principal.UserID(), m.user
	default:
		return ClassAnonymous, "ip:" + getClientIP(r), m.anonymous
	}
}

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class, key, limiter := m.classify(r)
		if limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		d, err := limiter.Allow(r.Context(), key)
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).WithField("class", class).Warn("Rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, d)
		if !d.Allowed {
			if m.metrics != nil {
				m.metrics.ObserveRateLimited(class)
			}
			retryAfter := int(math.Ceil(time.Until(d.Reset).Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func setRateLimitHeaders(w http.ResponseWriter, d Decision) {
	remaining := d.Remaining
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
}

package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultRateLimitMessage = "Too many requests, please try again later."

// RateLimitStore keeps the per-key attempt log behind a sliding window.
type RateLimitStore interface {
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
}

// IdentifierFunc extracts the caller key a limit is scoped to.
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule is one named limit: at most Limit hits per Window per caller.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
	// Message is returned in the 429 envelope.
	Message string
	// SkipSuccessful only counts requests that end with a 4xx/5xx status.
	SkipSuccessful bool
	// Skip exempts matching requests entirely.
	Skip func(*gin.Context) bool
}

func (r RateLimitRule) key(caller string) string {
	return r.Name + ":" + caller
}

// policy renders the RateLimit-Policy header value, e.g. "5;w=900".
func (r RateLimitRule) policy() string {
	return strconv.Itoa(r.Limit) + ";w=" + strconv.Itoa(int(r.Window/time.Second))
}

// RateLimiter builds sliding-window middlewares over a shared store.
type RateLimiter struct {
	store  RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

// quota is the state of one caller's window at the time of a request.
type quota struct {
	used  int
	reset time.Time
}

func (q quota) remaining(limit int) int {
	return max(limit-q.used, 0)
}

func NewRateLimiter(store RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{store: store, logger: logger, now: time.Now}
}

// WithClock replaces the time source; tests pin it.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// ClientIPIdentifier scopes a rule to gin's resolved client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

// SkipPaths exempts exact request paths, e.g. health probes.
func SkipPaths(paths ...string) func(*gin.Context) bool {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(c *gin.Context) bool {
		_, ok := set[c.Request.URL.Path]
		return ok
	}
}

// RateLimit enforces rule on every request passing through the returned
// handler. An unusable rule yields a pass-through handler and store failures
// fail open.
func (rl *RateLimiter) RateLimit(rule RateLimitRule) gin.HandlerFunc {
	if rl.store == nil || rule.Identifier == nil || rule.Limit <= 0 || rule.Window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if rule.Name == "" {
		rule.Name = "default"
	}
	if rule.Message == "" {
		rule.Message = defaultRateLimitMessage
	}

	return func(c *gin.Context) {
		if rule.Skip != nil && rule.Skip(c) {
			c.Next()
			return
		}
		caller, ok := rule.Identifier(c)
		if !ok {
			c.Next()
			return
		}

		now := rl.now()
		key := rule.key(caller)
		q, err := rl.inspect(c.Request.Context(), rule, key, now)
		if err != nil {
			rl.logger.Warn("rate limit check failed", zap.String("rule", rule.Name), zap.Error(err))
			c.Next()
			return
		}

		if q.used >= rule.Limit {
			rl.reject(c, rule, q, now)
			return
		}

		if !rule.SkipSuccessful {
			if err := rl.store.RecordAttempt(c.Request.Context(), key, now); err != nil {
				rl.logger.Warn("rate limit record failed", zap.String("rule", rule.Name), zap.Error(err))
			} else {
				q.used++
			}
		}
		writeQuotaHeaders(c, rule, q, now)

		c.Next()

		if rule.SkipSuccessful && c.Writer.Status() >= http.StatusBadRequest {
			// the request context is usually cancelled by now
			ctx := context.WithoutCancel(c.Request.Context())
			if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
				rl.logger.Warn("rate limit record failed", zap.String("rule", rule.Name), zap.Error(err))
			}
		}
	}
}

func (rl *RateLimiter) inspect(ctx context.Context, rule RateLimitRule, key string, now time.Time) (quota, error) {
	if err := rl.store.TrimWindow(ctx, key, rule.Window, now); err != nil {
		return quota{}, err
	}
	used, err := rl.store.CountAttempts(ctx, key, rule.Window, now)
	if err != nil {
		return quota{}, err
	}
	oldest, found, err := rl.store.OldestAttempt(ctx, key, rule.Window, now)
	if err != nil {
		return quota{}, err
	}

	q := quota{used: used, reset: now.Add(rule.Window)}
	if found {
		q.reset = oldest.Add(rule.Window)
	}
	return q, nil
}

func (rl *RateLimiter) reject(c *gin.Context, rule RateLimitRule, q quota, now time.Time) {
	wait := secondsUntil(q.reset, now)
	writeQuotaHeaders(c, rule, q, now)
	c.Header("Retry-After", strconv.Itoa(wait))

	rl.logger.Info("rate limit exceeded",
		zap.String("rule", rule.Name),
		zap.String("path", c.Request.URL.Path),
	)
	c.AbortWithStatusJSON(http.StatusTooManyRequests, errorEnvelope{
		Success: false,
		Message: rule.Message,
		Data:    gin.H{"retryAfter": wait},
		TraceID: GetTraceID(c),
	})
}

// writeQuotaHeaders sets the standard RateLimit-* fields; Reset is the number
// of seconds until the window frees a slot.
func writeQuotaHeaders(c *gin.Context, rule RateLimitRule, q quota, now time.Time) {
	h := c.Writer.Header()
	h.Set("RateLimit-Policy", rule.policy())
	h.Set("RateLimit-Limit", strconv.Itoa(rule.Limit))
	h.Set("RateLimit-Remaining", strconv.Itoa(q.remaining(rule.Limit)))
	h.Set("RateLimit-Reset", strconv.Itoa(secondsUntil(q.reset, now)))
}

func secondsUntil(t, now time.Time) int {
	return max(int(math.Ceil(t.Sub(now).Seconds())), 0)
}

package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/ehr/opdflow/internal/platform/auth"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL evicts limiters of callers that have gone quiet.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
		IdleTTL:           10 * time.Minute,
	}
}

// RateLimit limits requests per tenant and caller. Authenticated callers are
// keyed by user id, anonymous ones by IP.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	limiters := gocache.New(cfg.IdleTTL, 2*cfg.IdleTTL)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			lim := limiterFor(limiters, rateKey(c), cfg)
			c.Response().Header().Set("X-RateLimit-Limit", limit)

			now := time.Now()
			if !lim.AllowN(now, 1) {
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter(lim, now)))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

func rateKey(c echo.Context) string {
	tenant, _ := c.Get("tenant_id").(string)
	if tenant == "" {
		tenant, _ = c.Get(auth.TenantContextKey).(string)
	}
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
		return tenant + ":user:" + uid
	}
	return tenant + ":ip:" + c.RealIP()
}

func limiterFor(store *gocache.Cache, key string, cfg RateLimitConfig) *rate.Limiter {
	if v, ok := store.Get(key); ok {
		store.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize)
	// Add fails when another request created the limiter first.
	if err := store.Add(key, lim, gocache.DefaultExpiration); err != nil {
		if v, ok := store.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// retryAfter is the whole number of seconds until one token is available.
func retryAfter(lim *rate.Limiter, now time.Time) int {
	r := lim.ReserveN(now, 1)
	defer r.CancelAt(now)
	if !r.OK() {
		return 1
	}
	secs := int(math.Ceil(r.DelayFrom(now).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

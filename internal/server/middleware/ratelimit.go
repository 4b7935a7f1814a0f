package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"trust-access-layer/backend/internal/apperror"
	"trust-access-layer/backend/internal/ratelimit"
	"trust-access-layer/backend/internal/telemetry"
)

// RetryAfterSeconds is the fixed retry hint sent with every 429.
const RetryAfterSeconds = 60

var errRateLimited = apperror.New(apperror.KindRateLimited, "too many requests; retry later")

// RateLimiter gates requests per client and route before authentication runs.
type RateLimiter struct {
	limiter   ratelimit.Limiter
	table     ratelimit.Table
	emitter   telemetry.EventEmitter
	logger    *zap.Logger
	// logSample bounds violation logging and telemetry during a flood.
	logSample *rate.Limiter
}

// NewRateLimiter returns the middleware state. emitter and logger may be nil.
func NewRateLimiter(limiter ratelimit.Limiter, table ratelimit.Table, emitter telemetry.EventEmitter, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.L()
	}
	return &RateLimiter{
		limiter:   limiter,
		table:     table,
		emitter:   emitter,
		logger:    logger,
		logSample: rate.NewLimiter(rate.Every(time.Second), 10),
	}
}

// Handler sets X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset on every
// response and answers quota violations with 429 and Retry-After. A limiter backend
// error lets the request through.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		rule := r.table.Lookup(ratelimit.RouteName(c.Request.Method, route))
		ip := ClientIP(c.Request.Context())
		if ip == "" {
			ip = c.Request.RemoteAddr
		}
		key := ratelimit.ClientKey(ip, "", nil, c.Request.Method+" "+route)

		d, err := r.limiter.Allow(c.Request.Context(), key, rule.Max, rule.Window)
		if err != nil {
			r.logger.Warn("ratelimit: backend error; allowing request", zap.Error(err))
			c.Next()
			return
		}
		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))

		if d.Limited {
			if r.logSample.Allow() {
				r.logger.Warn("ratelimit: quota exceeded",
					zap.String("route", route), zap.String("client_key", key), zap.Stringer("rule", rule))
				ev := telemetry.NewSecurityEvent(telemetry.EventRateLimited, "", "", route)
				ev.IP = ip
				telemetry.EmitAsync(r.emitter, ev)
			}
			h.Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
			AbortWithError(c, errRateLimited)
			return
		}
		c.Next()
	}
}

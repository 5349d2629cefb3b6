// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ============================================================================
// Session Authentication
// ============================================================================

// SessionAuth rejects requests lacking the session cookie with a 401
// INVALID_TOKEN envelope. An empty name or value disables the check.
func SessionAuth(name, value string, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if name == "" || value == "" {
			c.Next()
			return
		}
		got, err := c.Cookie(name)
		if err != nil || !ValidateSessionValue(got, value) {
			log.Infow("auth denied", "ip", c.ClientIP(), "path", c.Request.URL.Path, "cookie_present", err == nil)
			writeError(c, http.StatusUnauthorized, "INVALID_TOKEN", "session is missing or invalid")
			return
		}
		c.Next()
	}
}

// ValidateSessionValue compares cookie values in constant time.
// Returns false if either value is empty.
func ValidateSessionValue(got, expected string) bool {
	if got == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// ============================================================================
// Rate Limiting
// ============================================================================

// RateLimiter hands out a token bucket per client IP.
type RateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows rps requests per second per IP with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*clientLimiter),
	}
}

// Allow reports whether ip may make a request now.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cl, ok := rl.clients[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = cl
	}
	cl.lastSeen = now

	// Evict idle clients opportunistically.
	if len(rl.clients) > 1024 {
		for k, v := range rl.clients {
			if now.Sub(v.lastSeen) > 5*time.Minute {
				delete(rl.clients, k)
			}
		}
	}
	return cl.limiter.AllowN(now, 1)
}

// RateLimit answers 429 once a client exceeds its bucket.
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			writeError(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		c.Next()
	}
}

// ============================================================================
// Logging, Metrics, Recovery
// ============================================================================

// RequestLogger logs each request and records it in m.
func RequestLogger(log *zap.SugaredLogger, m *serverMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		m.latency.WithLabelValues(route).Observe(elapsed.Seconds())

		log.Infow("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", elapsed,
			"ip", c.ClientIP(),
		)
	}
}

// SecurityHeaders sets conservative response headers.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// Recovery converts a handler panic into a 500 SYSTEM_ILLEGAL_STATE envelope.
func Recovery(log *zap.SugaredLogger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, err interface{}) {
		log.Errorw("panic recovered", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		writeError(c, http.StatusInternalServerError, "SYSTEM_ILLEGAL_STATE", "internal server error")
	})
}

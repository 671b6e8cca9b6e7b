package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// authMiddleware rejects requests that do not carry the configured API key.
// The key may arrive as an X-API-Key header, a bearer token or an api_key
// query parameter. Paths under any of skipPaths bypass the check, and an
// empty apiKey disables authentication entirely.
func (s *Server) authMiddleware(apiKey string, skipPaths []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		for _, p := range skipPaths {
			if strings.HasPrefix(c.Request.URL.Path, p) {
				c.Next()
				return
			}
		}

		key := c.GetHeader("X-API-Key")
		if key == "" {
			key = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if key == "" {
			key = c.Query("api_key")
		}

		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "API key is required",
			})
			return
		}
		if key != apiKey {
			s.logger.Warn("invalid API key attempt",
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "invalid API key",
			})
			return
		}

		c.Next()
	}
}

// rateLimiter is a token bucket limiter keyed by client IP. Buckets refill
// continuously at rps tokens per second up to a burst of 2*rps.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	rps     float64
	burst   float64
}

type tokenBucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(rps int) *rateLimiter {
	rl := &rateLimiter{
		buckets: make(map[string]*tokenBucket),
		rps:     float64(rps),
		burst:   float64(rps * 2),
	}
	go rl.sweep()
	return rl
}

func (rl *rateLimiter) allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[client]
	if !ok {
		b = &tokenBucket{tokens: rl.burst, last: now}
		rl.buckets[client] = b
	}

	b.tokens += now.Sub(b.last).Seconds() * rl.rps
	if b.tokens > rl.burst {
		b.tokens = rl.burst
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops buckets for clients idle longer than five minutes.
func (rl *rateLimiter) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-5 * time.Minute)
		rl.mu.Lock()
		for client, b := range rl.buckets {
			if b.last.Before(cutoff) {
				delete(rl.buckets, client)
			}
		}
		rl.mu.Unlock()
	}
}

// rateLimitMiddleware throttles clients to rps requests per second each.
// A non-positive rps disables limiting.
func (s *Server) rateLimitMiddleware(rps int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	limiter := newRateLimiter(rps)

	return func(c *gin.Context) {
		client := c.ClientIP()
		if !limiter.allow(client) {
			s.logger.Warn("rate limit exceeded",
				zap.String("client_ip", client),
				zap.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "too many requests, please slow down",
			})
			return
		}
		c.Next()
	}
}

// requestIDMiddleware tags every request with an X-Request-ID, generating
// one when the caller did not supply it.
func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// securityHeadersMiddleware sets baseline security headers on every response.
func (s *Server) securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

package api

import (
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// DefaultRateLimitConfig is generous for a single local UI client.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		Burst:             100,
	}
}

// RateLimit creates a per-client rate limiting middleware.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	var (
		mu      sync.Mutex
		clients = make(map[string]*rate.Limiter)
	)

	return func(c *gin.Context) {
		ip := c.RemoteIP()

		mu.Lock()
		limiter, ok := clients[ip]
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
			clients[ip] = limiter
		}
		mu.Unlock()

		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// LoopbackOnly rejects requests that do not come from a loopback address.
// Forwarding headers are ignored.
func LoopbackOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := net.ParseIP(c.RemoteIP())
		if ip == nil || !ip.IsLoopback() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "control API is only reachable from loopback",
			})
			return
		}
		c.Next()
	}
}

// isLoopbackHost reports whether host names this machine's loopback
// interface. Names other than "localhost" are not resolved.
func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// LoopbackHost rejects requests whose Host header is not a loopback name,
// which defeats DNS rebinding. When port returns a nonzero value the Host
// port must equal it.
func LoopbackHost(port func() int) gin.HandlerFunc {
	return func(c *gin.Context) {
		host, p, err := net.SplitHostPort(c.Request.Host)
		if err != nil {
			host, p = c.Request.Host, ""
		}
		ok := isLoopbackHost(strings.Trim(host, "[]"))
		if want := port(); ok && want != 0 {
			ok = p == strconv.Itoa(want)
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "control API only answers to a loopback host",
			})
			return
		}
		c.Next()
	}
}

// LoopbackOrigin answers CORS requests from loopback origins and rejects
// every other Origin, including "null", with 403. Preflights from loopback
// origins are answered without a token.
func LoopbackOrigin() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			u, err := url.Parse(origin)
			return err == nil && u.Host != "" && isLoopbackHost(u.Hostname())
		},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       time.Hour,
	})
}

// BearerToken requires "Authorization: Bearer <token>".
func BearerToken(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing or invalid API token",
			})
			return
		}
		c.Next()
	}
}

// RequireJSON rejects request bodies that are not application/json.
func RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength != 0 && c.ContentType() != gin.MIMEJSON {
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
				"error": "request body must be application/json",
			})
			return
		}
		c.Next()
	}
}

// RequestLogger logs every request at debug level.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("api request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}

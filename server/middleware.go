package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xhad/glov/internal/logger"
	"golang.org/x/time/rate"
)

const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware tags each request with an id, taken from the
// X-Request-ID header when present, and stores a logger carrying it in the
// request context.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)

		log := logger.FromContext(c.Request.Context()).With("request_id", id)
		c.Request = c.Request.WithContext(logger.ContextWithLogger(c.Request.Context(), log))
		c.Next()
	}
}

// LoggerMiddleware logs one line per completed request.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		logger.FromContext(c.Request.Context()).Info("request completed",
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"method", c.Request.Method,
			"status_code", c.Writer.Status(),
			"body_size", c.Writer.Size(),
			"path", path,
		)
	}
}

// RateLimitMiddleware rejects requests beyond rps with 429. The limit is
// shared by all clients.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Detail: "Rate Limit Exceeded",
				Kind:   "rate_limited",
			})
			return
		}
		c.Next()
	}
}

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/signalsfoundry/commodity-pathsim/internal/logging"
	"github.com/signalsfoundry/commodity-pathsim/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID ensures every request has an id, taken from the inbound header
// when present, and stores a request logger on the context.
func RequestID(base logging.Logger) gin.HandlerFunc {
	if base == nil {
		base = logging.Noop()
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if incoming := c.GetHeader(RequestIDHeader); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, base.With(
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
		))
		ctx = logging.ContextWithLogger(ctx, reqLog)
		c.Request = c.Request.WithContext(ctx)
		c.Header(RequestIDHeader, logging.RequestIDFromContext(ctx))
		c.Next()
	}
}

// Tracing opens a server span per request.
func Tracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := observability.StartSpan(c.Request.Context(), "HTTP "+c.Request.Method+" "+c.FullPath(),
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", c.FullPath()),
		)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
	}
}

// AccessLog logs one line per request through the request logger.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ctx := c.Request.Context()
		log := logging.LoggerFromContextOr(ctx, nil)
		log.Info(ctx, "request served",
			logging.Int("status", c.Writer.Status()),
			logging.Any("duration", time.Since(start)),
		)
	}
}

// RateLimit rejects requests beyond the limiter's budget with 429. A nil
// limiter disables limiting.
func RateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter != nil && !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error:     "rate limit exceeded",
				RequestID: logging.RequestIDFromContext(c.Request.Context()),
			})
			return
		}
		c.Next()
	}
}

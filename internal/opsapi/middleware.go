// Package opsapi exposes the operator HTTP surface: health and status
// probes, Prometheus metrics, and token-guarded manual job triggers.
//
// This file holds the middleware: request IDs for log correlation,
// structured access logs, panic recovery, and Prometheus instrumentation.
package opsapi

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	// requestIDKey is the Gin context key under which the request ID is stored.
	requestIDKey = "requestID"
	// requestIDHeader is the HTTP header used to propagate the correlation ID.
	requestIDHeader = "X-Request-ID"
)

var (
	// opsReqs counts requests by method, route path, and status code.
	opsReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coffee_ops_requests_total",
			Help: "Total number of ops HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// opsLat records request duration in seconds by method and route path.
	opsLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coffee_ops_request_duration_seconds",
			Help:    "Duration of ops HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(opsReqs, opsLat)
}

// RequestID attaches (or propagates) a correlation identifier per request.
// An incoming X-Request-ID is reused; otherwise a new UUIDv4 is generated.
// The ID is echoed on the response and stored in the Gin context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Logger writes a structured access log per request. Level is chosen by
// outcome: error for 5xx, warn for 4xx, info otherwise. Place after
// RequestID so logs carry the correlation ID.
func Logger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		rid, _ := c.Get(requestIDKey)
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()

		evt := log.Info()
		switch {
		case status >= 500:
			evt = log.Error()
		case status >= 400:
			evt = log.Warn()
		}
		evt.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Interface("request_id", rid).
			Msg("ops request")
	}
}

// Recovery converts panics into a JSON 500 carrying the correlation ID,
// logging the stack trace.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				rid, _ := c.Get(requestIDKey)
				log.Error().
					Interface("panic", r).
					Interface("request_id", rid).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered in ops handler")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":      "internal error",
					"request_id": rid,
				})
			}
		}()
		c.Next()
	}
}

// Metrics instruments requests with Prometheus. The path label uses the
// registered route (c.FullPath()) to keep cardinality bounded.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		opsReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		opsLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

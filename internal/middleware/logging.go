package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"sak/internal/metrics"
	"sak/pkg/logger"
)

// LoggingMiddleware logs each request and records its latency under the
// matched route template, so wallet keys and session ids never become labels.
type LoggingMiddleware struct {
	logger  logger.Logger
	metrics *metrics.Metrics
}

func NewLoggingMiddleware(log logger.Logger, m *metrics.Metrics) *LoggingMiddleware {
	if m == nil {
		m = metrics.NopMetrics()
	}
	return &LoggingMiddleware{logger: log, metrics: m}
}

func (m *LoggingMiddleware) Log(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		elapsed := time.Since(start)
		route := routeTemplate(r)
		m.metrics.RequestSeconds.With(
			"route", route,
			"method", r.Method,
			"status", fmt.Sprintf("%dxx", wrapped.statusCode/100),
		).Observe(elapsed.Seconds())

		switch r.URL.Path {
		case "/health", "/ready", "/metrics":
			return
		}

		fields := map[string]interface{}{
			"method":      r.Method,
			"route":       route,
			"status":      wrapped.statusCode,
			"duration_ms": elapsed.Milliseconds(),
			"ip":          r.RemoteAddr,
			"request_id":  RequestIDFromContext(r.Context()),
		}
		if wrapped.statusCode >= http.StatusInternalServerError {
			m.logger.Warn("HTTP Request", fields)
			return
		}
		m.logger.Info("HTTP Request", fields)
	})
}

// routeTemplate is the mux path template of the matched route, or
// "unmatched" for 404s and preflight catch-alls.
func routeTemplate(r *http.Request) string {
	if cur := mux.CurrentRoute(r); cur != nil {
		if tpl, err := cur.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Hijack lets websocket upgrades pass through the wrapper.
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

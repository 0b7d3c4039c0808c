package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	prom "github.com/prometheus/client_golang/prometheus"
)

type requestMetrics struct {
	requests *prom.CounterVec
	duration *prom.HistogramVec
}

func newRequestMetrics() *requestMetrics {
	return &requestMetrics{
		requests: prom.NewCounterVec(prom.CounterOpts{
			Name: "portalauth_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "portalauth_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method.",
			Buckets: prom.DefBuckets,
		}, []string{"route", "method"}),
	}
}

func (m *requestMetrics) collectors() []prom.Collector {
	return []prom.Collector{m.requests, m.duration}
}

// instrument records every request under its chi route pattern so path
// parameters do not explode label cardinality.
func (m *requestMetrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		m.duration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

package rpc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	HTTPRequestTotal           = "explorer_http_requests_total"
	HTTPRequestDurationSeconds = "explorer_http_request_duration_seconds"
)

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: HTTPRequestTotal,
		Help: "Count of all HTTP requests",
	}, []string{"method", "route", "status_code"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    HTTPRequestDurationSeconds,
		Help:    "Duration of all HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status_code"})
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration)
}

// metricsMiddleware records request counts and latencies per chi route pattern, so
// path parameters do not explode label cardinality.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := prometheus.Labels{
			"method":      r.Method,
			"route":       route,
			"status_code": strconv.Itoa(status),
		}
		httpRequests.With(labels).Inc()
		httpDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}

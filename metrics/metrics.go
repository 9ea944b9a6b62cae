// Package metrics exposes Prometheus instrumentation for the
// marketplace engine and its HTTP surface.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	core "taskmarket-backend/core/marketplace"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_operations_total",
		Help: "Marketplace operations by name and outcome.",
	}, []string{"operation", "outcome"})

	operationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_operation_errors_total",
		Help: "Failed marketplace operations by name and error kind.",
	}, []string{"operation", "kind"})

	escrowMoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_escrow_tokens_total",
		Help: "Token amounts moved through escrows by direction.",
	}, []string{"direction"}) // funded | released | refunded

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_http_requests_total",
		Help: "HTTP requests by method, path and status.",
	}, []string{"method", "path", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketplace_http_request_duration_seconds",
		Help:    "HTTP request latency by path.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})
)

// RecordOperation counts one engine operation and classifies failures by
// error kind.
func RecordOperation(operation string, err error) {
	if err == nil {
		operationsTotal.WithLabelValues(operation, "ok").Inc()
		return
	}
	operationsTotal.WithLabelValues(operation, "error").Inc()

	kind := "other"
	var mpErr *core.Error
	if errors.As(err, &mpErr) {
		kind = string(mpErr.Kind)
	}
	operationErrors.WithLabelValues(operation, kind).Inc()
}

// RecordEscrowFunded counts tokens locked into escrow.
func RecordEscrowFunded(amount uint64) {
	escrowMoved.WithLabelValues("funded").Add(float64(amount))
}

// RecordEscrowReleased counts tokens paid out to freelancers.
func RecordEscrowReleased(amount uint64) {
	escrowMoved.WithLabelValues("released").Add(float64(amount))
}

// RecordEscrowRefunded counts tokens returned to clients.
func RecordEscrowRefunded(amount uint64) {
	escrowMoved.WithLabelValues("refunded").Add(float64(amount))
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Instrument wraps an HTTP handler with request counting and latency
// observation. The path label uses the route pattern, not the raw URL,
// to keep cardinality bounded.
func Instrument(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(r.Method, pattern, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(pattern).Observe(time.Since(start).Seconds())
	})
}

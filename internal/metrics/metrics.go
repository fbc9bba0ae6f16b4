package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "riveredge"

// Labels never carry tenant identifiers.
var (
	// Request metrics
	RequestDurationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	APIRequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// Domain metrics
	CodesMintedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codes_minted_total",
			Help:      "Total number of business codes minted",
		},
		[]string{"rule"},
	)

	StateTransitionCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of state transition attempts",
		},
		[]string{"entity_type", "result"},
	)

	TenantAccessDeniedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenant_access_denied_total",
			Help:      "Total number of requests refused at the tenant boundary",
		},
		[]string{"reason"},
	)
)

// Middleware tracks request count and duration by route template.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &StatusRecorder{ResponseWriter: w, Status: http.StatusOK}

		next.ServeHTTP(rec, r)

		labels := prometheus.Labels{
			"method": r.Method,
			"path":   RouteTemplate(r),
			"status": strconv.Itoa(rec.Status),
		}
		APIRequestCounter.With(labels).Inc()
		RequestDurationHistogram.With(labels).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordMint counts a minted code.
func RecordMint(rule string) {
	CodesMintedCounter.WithLabelValues(rule).Inc()
}

// RecordTransition counts a transition attempt.
func RecordTransition(entityType, result string) {
	StateTransitionCounter.WithLabelValues(entityType, result).Inc()
}

// RecordAccessDenied counts a boundary refusal.
func RecordAccessDenied(reason string) {
	TenantAccessDeniedCounter.WithLabelValues(reason).Inc()
}

// RouteTemplate returns the matched mux path template, so ids stay out of labels.
func RouteTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// StatusRecorder captures the response status.
type StatusRecorder struct {
	http.ResponseWriter
	Status      int
	wroteHeader bool
}

func (r *StatusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.Status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *StatusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

// Hijack lets websocket upgrades pass through the recorder.
func (r *StatusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.Status = http.StatusSwitchingProtocols
	r.wroteHeader = true
	return h.Hijack()
}

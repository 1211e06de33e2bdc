// Package metrics holds the Prometheus collectors of the engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status_code"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status_code"})

	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collections_job_runs_total",
		Help: "Scheduled and manual job runs by outcome.",
	}, []string{"job", "outcome"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "collections_job_duration_seconds",
		Help:    "Duration of job runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})

	InstallmentsMarkedOverdue = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collections_installments_marked_overdue_total",
		Help: "Installments moved from PENDING to OVERDUE by the sweeper.",
	})

	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collections_messages_total",
		Help: "Outbound notifications by kind, medium and outcome.",
	}, []string{"kind", "medium", "outcome"})

	TextFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collections_text_fallbacks_total",
		Help: "Composed texts that fell back to the template.",
	}, []string{"kind", "reason"})

	ChannelState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "collections_channel_state",
		Help: "1 for the current messaging channel state, 0 otherwise.",
	}, []string{"state"})
)

// ObserveJob records the outcome and duration of one job run.
func ObserveJob(job string, started time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	JobRuns.WithLabelValues(job, outcome).Inc()
	JobDuration.WithLabelValues(job).Observe(time.Since(started).Seconds())
}

// SetChannelState flips the state gauge so exactly one state reads 1.
func SetChannelState(current string, all ...string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		ChannelState.WithLabelValues(s).Set(v)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware counts requests by their mux route template.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		code := strconv.Itoa(rec.status)
		httpRequestsTotal.WithLabelValues(r.Method, path, code).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path, code).Observe(time.Since(start).Seconds())
	})
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements quiz.Recorder and instruments HTTP handlers.
type Metrics struct {
	gatherer prometheus.Gatherer

	attemptsStarted   *prometheus.CounterVec
	startsDenied      *prometheus.CounterVec
	attemptsSubmitted *prometheus.CounterVec
	submitConflicts   prometheus.Counter
	scores            prometheus.Histogram
	requestDuration   *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in
// tests to keep them isolated from the default registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,

		// Attempts opened, by quiz
		attemptsStarted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_attempts_started_total",
				Help: "Total number of attempts started",
			},
			[]string{"quiz_id"},
		),

		startsDenied: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_attempt_starts_denied_total",
				Help: "Start requests refused by eligibility checks",
			},
			[]string{"reason"}, // not_yet_open, closed, attempts_exhausted, attempt_in_progress
		),

		attemptsSubmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_attempts_submitted_total",
				Help: "Total number of attempts graded and closed",
			},
			[]string{"quiz_id", "result", "late"}, // result: pass/fail
		),

		submitConflicts: f.NewCounter(
			prometheus.CounterOpts{
				Name: "quiz_submit_conflicts_total",
				Help: "Submits rejected because the attempt was already closed",
			},
		),

		scores: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quiz_attempt_score",
				Help:    "Distribution of attempt scores (0-100)",
				Buckets: prometheus.LinearBuckets(10, 10, 10),
			},
		),

		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quiz_http_request_duration_seconds",
				Help:    "Time spent serving HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}
}

func (m *Metrics) AttemptStarted(quizID string) {
	m.attemptsStarted.WithLabelValues(quizID).Inc()
}

func (m *Metrics) StartDenied(reason string) {
	m.startsDenied.WithLabelValues(reason).Inc()
}

func (m *Metrics) AttemptSubmitted(quizID string, score int, passed, late bool) {
	result := "fail"
	if passed {
		result = "pass"
	}
	m.attemptsSubmitted.WithLabelValues(quizID, result, strconv.FormatBool(late)).Inc()
	m.scores.Observe(float64(score))
}

func (m *Metrics) SubmitConflict() { m.submitConflicts.Inc() }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware times each request, labelled with its chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

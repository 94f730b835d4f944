// Package observability defines the Prometheus metrics of the service.
//
// All methods are safe on a nil *Metrics, so tests and tools can pass nil.
package observability

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aldoetobex/legal-aid-backend/internal/apperr"
)

const namespace = "legalaid"

// Metrics holds the case lifecycle and HTTP metrics.
type Metrics struct {
	// CasesCreated counts created cases. Labels: type
	CasesCreated *prometheus.CounterVec
	// StatusTransitions counts status changes. Labels: from, to
	StatusTransitions *prometheus.CounterVec
	// AssignmentRejections counts refused assignments. Labels: reason
	AssignmentRejections *prometheus.CounterVec
	// CaseNumberRetries counts create retries after a case-number collision.
	CaseNumberRetries prometheus.Counter
	// InvariantViolations counts compound operations aborted by an internal inconsistency.
	InvariantViolations prometheus.Counter
	// RequestDuration observes HTTP latency. Labels: method, route, status
	RequestDuration *prometheus.HistogramVec
}

// New registers the metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CasesCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cases", Name: "created_total",
			Help: "Cases created by type",
		}, []string{"type"}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cases", Name: "status_transitions_total",
			Help: "Case status changes by source and target status",
		}, []string{"from", "to"}),
		AssignmentRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cases", Name: "assignment_rejections_total",
			Help: "Refused assignments by reason",
		}, []string{"reason"}),
		CaseNumberRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cases", Name: "case_number_retries_total",
			Help: "Case creations retried after a case number collision",
		}),
		InvariantViolations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cases", Name: "invariant_violations_total",
			Help: "Compound case operations rolled back by an invariant violation",
		}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) CaseCreated(caseType string) {
	if m == nil {
		return
	}
	m.CasesCreated.WithLabelValues(caseType).Inc()
}

func (m *Metrics) StatusChanged(from, to string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) AssignmentRejected(reason string) {
	if m == nil {
		return
	}
	m.AssignmentRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) CaseNumberRetried() {
	if m == nil {
		return
	}
	m.CaseNumberRetries.Inc()
}

func (m *Metrics) InvariantViolated() {
	if m == nil {
		return
	}
	m.InvariantViolations.Inc()
}

// Middleware records request latency by route pattern.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if m == nil {
			return err
		}
		m.RequestDuration.
			WithLabelValues(c.Method(), c.Route().Path, strconv.Itoa(StatusOf(c, err))).
			Observe(time.Since(start).Seconds())
		return err
	}
}

// StatusOf returns the status the error handler will send for err, or the
// response status when the handler succeeded.
func StatusOf(c *fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	code, _ := apperr.HTTPStatus(err)
	return code
}

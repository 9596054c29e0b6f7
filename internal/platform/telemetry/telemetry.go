// Package telemetry exposes Prometheus metrics for the booking service:
// admission outcomes, registry round-trips, and HTTP latencies.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors on a private registry so tests can create
// isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	Admissions     *prometheus.CounterVec
	RegistryChecks *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		Admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_admissions_total",
			Help: "Appointment admission decisions by outcome.",
		}, []string{"outcome"}),
		RegistryChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_registry_checks_total",
			Help: "Resource registry existence checks by kind and outcome.",
		}, []string{"kind", "outcome"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "booking_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Admissions,
		m.RegistryChecks,
		m.httpDuration,
	)

	return m
}

// ObserveAdmission records one admission decision.
func (m *Metrics) ObserveAdmission(outcome string) {
	m.Admissions.WithLabelValues(outcome).Inc()
}

// ObserveRegistryCheck records one verifier round-trip.
func (m *Metrics) ObserveRegistryCheck(kind, outcome string) {
	m.RegistryChecks.WithLabelValues(kind, outcome).Inc()
}

// HTTPMiddleware times each request against its route pattern.
func (m *Metrics) HTTPMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			m.httpDuration.
				WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler returns the /metrics exposition handler.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

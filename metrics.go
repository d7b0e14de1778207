package oaipmh

import (
	"time"

	"emperror.dev/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeProtocol  = "protocol_error"
	OutcomeStatus    = "status_error"
	OutcomeMalformed = "malformed"
	OutcomeTransport = "transport_error"
)

// Metrics holds the collectors for a client. A nil *Metrics records nothing.
type Metrics struct {
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	retries        *prometheus.CounterVec
	protocolErrors *prometheus.CounterVec
	pages          *prometheus.CounterVec
}

// NewMetrics registers the client collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oaipmh_requests_total",
			Help: "OAI-PMH requests by verb and outcome.",
		}, []string{"verb", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oaipmh_request_duration_seconds",
			Help:    "Duration of OAI-PMH requests including retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"verb"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oaipmh_retries_total",
			Help: "Retried attempts after timeouts.",
		}, []string{"verb"}),
		protocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oaipmh_protocol_errors_total",
			Help: "OAI-PMH error conditions by code.",
		}, []string{"code"}),
		pages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oaipmh_pages_total",
			Help: "Decoded list pages by verb.",
		}, []string{"verb"}),
	}
}

func outcome(err error) string {
	var oaiErr OAIError
	var statusErr *StatusError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &oaiErr):
		return OutcomeProtocol
	case errors.As(err, &statusErr):
		return OutcomeStatus
	case errors.Is(err, ErrMalformedResponse):
		return OutcomeMalformed
	default:
		return OutcomeTransport
	}
}

func (m *Metrics) observe(verb string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(verb, outcome(err)).Inc()
	m.duration.WithLabelValues(verb).Observe(d.Seconds())
	var oaiErr OAIError
	if errors.As(err, &oaiErr) {
		m.protocolErrors.WithLabelValues(oaiErr.Kind().String()).Inc()
	}
}

func (m *Metrics) retried(verb string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(verb).Inc()
}

func (m *Metrics) page(verb string) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues(verb).Inc()
}

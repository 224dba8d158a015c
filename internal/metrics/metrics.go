// Package metrics records run statistics as Prometheus metrics and exports
// them in the node_exporter textfile format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters of one relay run. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	itemsTotal       *prometheus.CounterVec
	apiRequestsTotal *prometheus.CounterVec
	rateLimitWaits   prometheus.Counter
	attachmentsLost  *prometheus.CounterVec
	lastRunTimestamp prometheus.Gauge
}

// New creates a Metrics instance backed by its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		itemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mail2telegram_items_total",
				Help: "Mailbox items processed, by result",
			},
			[]string{"result"},
		),
		apiRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mail2telegram_api_requests_total",
				Help: "Telegram Bot API calls, by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		rateLimitWaits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mail2telegram_rate_limit_waits_total",
				Help: "Backoff waits caused by 429 responses",
			},
		),
		attachmentsLost: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mail2telegram_attachments_dropped_total",
				Help: "Attachments that were not delivered, by reason",
			},
			[]string{"reason"},
		),
		lastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mail2telegram_last_run_timestamp_seconds",
				Help: "Unix time the last run finished",
			},
		),
	}
}

// ItemProcessed counts one mailbox item with result "delivered" or "failed".
func (m *Metrics) ItemProcessed(result string) {
	if m == nil {
		return
	}
	m.itemsTotal.WithLabelValues(result).Inc()
}

// APIRequest counts one Bot API call.
func (m *Metrics) APIRequest(method, outcome string) {
	if m == nil {
		return
	}
	m.apiRequestsTotal.WithLabelValues(method, outcome).Inc()
}

// RateLimitWait counts one backoff wait.
func (m *Metrics) RateLimitWait() {
	if m == nil {
		return
	}
	m.rateLimitWaits.Inc()
}

// AttachmentsDropped counts n attachments lost for the given reason.
func (m *Metrics) AttachmentsDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.attachmentsLost.WithLabelValues(reason).Add(float64(n))
}

// WriteTextfile stamps the run completion time and writes every metric to
// path atomically, for pickup by node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	m.lastRunTimestamp.SetToCurrentTime()
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

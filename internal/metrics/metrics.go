// Package metrics holds the gateway's Prometheus instrumentation,
// registered once at startup and updated from the pipeline and adapters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the gateway exposes.
type Metrics struct {
	MessagesReceived *prometheus.CounterVec
	MessagesParsed   *prometheus.CounterVec
	ParseErrors      *prometheus.CounterVec
	RulesMatched     *prometheus.CounterVec
	ForwardTotal     *prometheus.CounterVec
	ForwardDuration  *prometheus.HistogramVec
	AdapterState     *prometheus.GaugeVec
}

// New creates and registers every gateway collector.
func New() *Metrics {
	return &Metrics{
		MessagesReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_messages_received_total",
				Help: "Total messages received by an ingress adapter",
			},
			[]string{"protocol", "source_id"},
		),
		MessagesParsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_messages_parsed_total",
				Help: "Total messages successfully parsed against a frame schema",
			},
			[]string{"source_id"},
		),
		ParseErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_parse_errors_total",
				Help: "Total frame parse failures",
			},
			[]string{"source_id"},
		),
		RulesMatched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_rules_matched_total",
				Help: "Total routing rule matches",
			},
			[]string{"rule_id"},
		),
		ForwardTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_forward_total",
				Help: "Total forward attempts by target and outcome",
			},
			[]string{"target_id", "status"},
		),
		ForwardDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_forward_duration_seconds",
				Help:    "Duration of a (possibly retried) forward dispatch",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"target_id"},
		),
		AdapterState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_adapter_state",
				Help: "Current lifecycle state of an adapter (0=NEW,1=STARTING,2=RUNNING,3=STOPPING,4=STOPPED)",
			},
			[]string{"name", "protocol"},
		),
	}
}

// Package metrics provides Prometheus metrics for streamwatch.
//
// Metrics stay aggregate-safe for a fleet of streams: the only
// per-stream label is the stream id on the health gauge, which is
// bounded by the registry's stream count.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-hls-streamwatch/internal/model"
)

var (
	streamsMonitored = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamwatch_streams_monitored",
			Help: "Number of streams currently monitored",
		},
	)

	activeIncidents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamwatch_active_incidents",
			Help: "Incidents currently open or acknowledged",
		},
	)

	probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamwatch_probes_total",
			Help: "Total probes issued, by sample kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	bytesDownloadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streamwatch_bytes_downloaded_total",
			Help: "Total bytes downloaded by probes",
		},
	)

	healthState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamwatch_health_state",
			Help: "Stream health (0=green, 1=yellow, 2=red)",
		},
		[]string{"stream_id"},
	)

	incidentsOpenedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streamwatch_incidents_opened_total",
			Help: "Total incidents opened since startup",
		},
	)

	incidentsResolvedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streamwatch_incidents_resolved_total",
			Help: "Total incidents resolved since startup",
		},
	)

	eventsDroppedTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamwatch_push_events_dropped_total",
			Help: "Push-channel events evicted from slow subscribers",
		},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default registry. Safe to
// call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			streamsMonitored,
			activeIncidents,
			probesTotal,
			bytesDownloadedTotal,
			healthState,
			incidentsOpenedTotal,
			incidentsResolvedTotal,
			eventsDroppedTotal,
		)
	})
}

// Collector updates the gauges and counters from pipeline events. It is
// fed by the registry's own event subscription so the exporters see the
// same stream the push channel does.
type Collector struct{}

// NewCollector registers the metric set and returns a Collector.
func NewCollector() *Collector {
	Register()
	return &Collector{}
}

// ObserveEvent folds one push-channel event into the metric set.
func (c *Collector) ObserveEvent(ev model.Event) {
	switch ev.Event {
	case model.EventTypeSampleAppended:
		sample, ok := ev.Payload.(model.MetricSample)
		if !ok {
			return
		}
		probesTotal.WithLabelValues(string(sample.Kind), string(sample.Outcome.Kind)).Inc()
		if sample.Bytes > 0 {
			bytesDownloadedTotal.Add(float64(sample.Bytes))
		}
	case model.EventTypeHealthChanged:
		tr, ok := ev.Payload.(model.HealthTransition)
		if !ok {
			return
		}
		healthState.WithLabelValues(ev.StreamID).Set(float64(tr.To.Severity()))
	case model.EventTypeIncidentOpened:
		incidentsOpenedTotal.Inc()
	case model.EventTypeIncidentResolved:
		incidentsResolvedTotal.Inc()
	}
}

// SetFleet updates the process-level gauges.
func (c *Collector) SetFleet(streams, incidents int) {
	streamsMonitored.Set(float64(streams))
	activeIncidents.Set(float64(incidents))
}

// SetDroppedEvents records the fan-out drop counter.
func (c *Collector) SetDroppedEvents(n int64) {
	eventsDroppedTotal.Set(float64(n))
}

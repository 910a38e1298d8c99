package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/randomizedcoder/go-hls-streamwatch/internal/model"
)

func TestObserveSampleEvent(t *testing.T) {
	c := NewCollector()

	before := testutil.ToFloat64(probesTotal.WithLabelValues("segment", "ok"))
	bytesBefore := testutil.ToFloat64(bytesDownloadedTotal)

	c.ObserveEvent(model.Event{
		Event:    model.EventTypeSampleAppended,
		StreamID: "s1",
		Payload: model.MetricSample{
			Timestamp: time.Now(),
			Kind:      model.SampleSegment,
			Outcome:   model.Outcome{Kind: model.OutcomeOK},
			Bytes:     2048,
		},
	})

	if got := testutil.ToFloat64(probesTotal.WithLabelValues("segment", "ok")); got != before+1 {
		t.Errorf("probes_total = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(bytesDownloadedTotal); got != bytesBefore+2048 {
		t.Errorf("bytes_total = %v", got)
	}
}

func TestObserveHealthEvent(t *testing.T) {
	c := NewCollector()

	c.ObserveEvent(model.Event{
		Event:    model.EventTypeHealthChanged,
		StreamID: "s-health",
		Payload:  model.HealthTransition{From: model.HealthGreen, To: model.HealthRed},
	})

	if got := testutil.ToFloat64(healthState.WithLabelValues("s-health")); got != 2 {
		t.Errorf("health gauge = %v, want 2 (red)", got)
	}
}

func TestObserveIncidentEvents(t *testing.T) {
	c := NewCollector()

	opened := testutil.ToFloat64(incidentsOpenedTotal)
	c.ObserveEvent(model.Event{Event: model.EventTypeIncidentOpened, StreamID: "s1"})
	if got := testutil.ToFloat64(incidentsOpenedTotal); got != opened+1 {
		t.Errorf("incidents_opened = %v", got)
	}
}

func TestMismatchedPayloadIgnored(t *testing.T) {
	c := NewCollector()
	// A payload of the wrong type must not panic.
	c.ObserveEvent(model.Event{Event: model.EventTypeSampleAppended, Payload: "not a sample"})
	c.ObserveEvent(model.Event{Event: model.EventTypeHealthChanged, Payload: 42})
}

func TestSetFleet(t *testing.T) {
	c := NewCollector()
	c.SetFleet(7, 2)
	if got := testutil.ToFloat64(streamsMonitored); got != 7 {
		t.Errorf("streams gauge = %v", got)
	}
	if got := testutil.ToFloat64(activeIncidents); got != 2 {
		t.Errorf("incidents gauge = %v", got)
	}
}

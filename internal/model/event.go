package model

import "time"

// EventType identifies a push-channel event.
type EventType string

const (
	EventTypeHealthChanged        EventType = "health_changed"
	EventTypeIncidentOpened       EventType = "incident_opened"
	EventTypeIncidentAcknowledged EventType = "incident_acknowledged"
	EventTypeIncidentResolved     EventType = "incident_resolved"
	EventTypeSampleAppended       EventType = "sample_appended"
)

// Event is one message on the registry's fan-out channel. Payload is
// whatever projection makes sense for the event type (a HealthTransition,
// an Incident, a MetricSample); it is always a copied value.
type Event struct {
	Event    EventType `json:"event"`
	StreamID string    `json:"stream_id"`
	Payload  any       `json:"payload"`
	TS       time.Time `json:"ts"`
}

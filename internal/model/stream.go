package model

import "time"

// Stream is the immutable configuration of a monitored stream.
type Stream struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ManifestURL string    `json:"manifest_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// StreamSummary is the list-view projection of a stream.
type StreamSummary struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Health            HealthSnapshot `json:"health"`
	HasActiveIncident bool           `json:"has_active_incident"`
	ActiveIncidentID  string         `json:"active_incident_id,omitempty"`
	ThumbnailURL      string         `json:"thumbnail_url,omitempty"`
}

// StreamDetail is the investigation-view projection of a stream.
type StreamDetail struct {
	Stream         Stream         `json:"stream"`
	Health         HealthSnapshot `json:"health"`
	ActiveIncident *Incident      `json:"active_incident,omitempty"`
	RootCause      *RootCause     `json:"root_cause,omitempty"`
	LatestSample   *MetricSample  `json:"latest_sample,omitempty"`
	ThumbnailURL   string         `json:"thumbnail_url,omitempty"`
}

// HistoryPoint is one per-minute bucket of the charting series.
type HistoryPoint struct {
	Timestamp        time.Time `json:"timestamp"`
	AvgTTFBMS        float64   `json:"avg_ttfb_ms"`
	AvgDownloadRatio float64   `json:"avg_download_ratio"`
	ErrorCount       int       `json:"error_count"`
	SampleCount      int       `json:"sample_count"`
}

// HistoryPayload backs the metrics-history chart endpoint.
// TTFB percentiles cover the whole requested range.
type HistoryPayload struct {
	StreamID    string             `json:"stream_id"`
	Points      []HistoryPoint     `json:"points"`
	Transitions []HealthTransition `json:"health_transitions"`
	TTFBP50MS   float64            `json:"ttfb_p50_ms"`
	TTFBP95MS   float64            `json:"ttfb_p95_ms"`
}

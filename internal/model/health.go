package model

import "time"

// HealthState is the tri-state health of a stream.
type HealthState string

const (
	HealthGreen  HealthState = "green"
	HealthYellow HealthState = "yellow"
	HealthRed    HealthState = "red"
)

// Severity orders states for comparisons: GREEN < YELLOW < RED.
func (h HealthState) Severity() int {
	switch h {
	case HealthYellow:
		return 1
	case HealthRed:
		return 2
	default:
		return 0
	}
}

// WindowStats summarizes the evaluation window backing a snapshot.
type WindowStats struct {
	SampleCount      int     `json:"sample_count"`
	ErrorCount       int     `json:"error_count"`
	AvgTTFBMS        float64 `json:"avg_ttfb_ms"`
	AvgDownloadRatio float64 `json:"avg_download_ratio"`
}

// HealthSnapshot is the evaluator's verdict over the current window.
// Reason names the specific rule and the numeric fact that triggered it.
type HealthSnapshot struct {
	State     HealthState `json:"state"`
	Reason    string      `json:"reason"`
	UpdatedAt time.Time   `json:"updated_at"`
	Stats     WindowStats `json:"window_stats"`
}

// HealthTransition records a state change for the history timeline.
type HealthTransition struct {
	Timestamp time.Time   `json:"timestamp"`
	From      HealthState `json:"from"`
	To        HealthState `json:"to"`
	Reason    string      `json:"reason"`
}

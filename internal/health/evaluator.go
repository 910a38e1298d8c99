// Package health maps a rolling window of metric samples onto the
// tri-state stream health.
//
// Evaluate is a pure function of (window, thresholds, now). The Tracker
// wraps it with the small amount of state needed to detect transitions
// and to suppress short-lived GREEN→YELLOW→GREEN flaps.
package health

import (
	"fmt"
	"time"

	"github.com/randomizedcoder/go-hls-streamwatch/internal/model"
)

// Thresholds are the tunable decision constants. Zero values are not
// meaningful; build them from the process config.
type Thresholds struct {
	Window               time.Duration // W_short
	TTFBYellowMS         float64
	RatioYellow          float64
	RedConsecutiveErrors int
	RedErrRate           float64
	FlapWindow           time.Duration

	// Manifest-outage subrule of the RED state.
	ManifestWindow      time.Duration
	ManifestMinAttempts int
}

// minErrRateSamples gates the err-rate RED rule so a single failed probe
// in an otherwise empty window cannot flip the stream straight to RED;
// the consecutive-errors rule covers sparse windows.
const minErrRateSamples = 4

// Evaluate computes the health snapshot for the given window. Samples
// must be ordered oldest-first; now anchors the manifest subwindow and
// the snapshot timestamp.
func Evaluate(samples []model.MetricSample, now time.Time, th Thresholds) model.HealthSnapshot {
	snap := model.HealthSnapshot{
		State:     model.HealthGreen,
		Reason:    "Stream healthy",
		UpdatedAt: now,
	}

	if len(samples) == 0 {
		snap.Reason = "No samples in window yet"
		return snap
	}

	st := computeStats(samples)
	snap.Stats = st.WindowStats

	windowSec := int(th.Window / time.Second)

	// RED rules, most specific first.
	manifestAttempts, manifestOK := manifestStatus(samples, now, th.ManifestWindow)
	switch {
	case manifestAttempts >= th.ManifestMinAttempts && !manifestOK:
		snap.State = model.HealthRed
		snap.Reason = fmt.Sprintf("Manifest failing: no successful manifest probe in last %d s (%d attempts)",
			int(th.ManifestWindow/time.Second), manifestAttempts)
		return snap
	case st.ConsecutiveErrors >= th.RedConsecutiveErrors:
		snap.State = model.HealthRed
		snap.Reason = fmt.Sprintf("%d consecutive probe failures (threshold %d)",
			st.ConsecutiveErrors, th.RedConsecutiveErrors)
		return snap
	case st.SampleCount >= minErrRateSamples && st.ErrRate >= th.RedErrRate:
		snap.State = model.HealthRed
		snap.Reason = fmt.Sprintf("Error rate %.0f%% exceeded %.0f%% threshold over last %d s",
			st.ErrRate*100, th.RedErrRate*100, windowSec)
		return snap
	}

	// YELLOW rules.
	switch {
	case st.HasTTFB && st.WindowStats.AvgTTFBMS > th.TTFBYellowMS:
		snap.State = model.HealthYellow
		snap.Reason = fmt.Sprintf("Avg TTFB %.0f ms exceeded %.0f ms threshold over last %d s",
			st.WindowStats.AvgTTFBMS, th.TTFBYellowMS, windowSec)
		return snap
	case st.HasRatio && st.WindowStats.AvgDownloadRatio > th.RatioYellow:
		snap.State = model.HealthYellow
		snap.Reason = fmt.Sprintf("Avg download ratio %.2f exceeded %.2f threshold over last %d s",
			st.WindowStats.AvgDownloadRatio, th.RatioYellow, windowSec)
		return snap
	case st.ErrRate > 0 && st.ErrRate < th.RedErrRate:
		snap.State = model.HealthYellow
		snap.Reason = fmt.Sprintf("%d of %d probes failed in last %d s",
			st.WindowStats.ErrorCount, st.SampleCount, windowSec)
		return snap
	}

	return snap
}

// windowStats carries the derived numbers Evaluate decides on.
type windowStats struct {
	model.WindowStats
	SampleCount       int
	ErrRate           float64
	ConsecutiveErrors int
	HasTTFB           bool
	HasRatio          bool
}

func computeStats(samples []model.MetricSample) windowStats {
	var st windowStats
	st.SampleCount = len(samples)
	st.WindowStats.SampleCount = len(samples)

	var ttfbSum float64
	var ttfbN int
	var ratioSum float64
	var ratioN int

	for _, sm := range samples {
		if !sm.Outcome.OK() {
			st.WindowStats.ErrorCount++
			continue
		}
		if sm.TTFBMS > 0 {
			ttfbSum += sm.TTFBMS
			ttfbN++
		}
		if sm.HasRatio() {
			ratioSum += sm.DownloadRatio
			ratioN++
		}
	}

	if st.SampleCount > 0 {
		st.ErrRate = float64(st.WindowStats.ErrorCount) / float64(st.SampleCount)
	}
	if ttfbN > 0 {
		st.WindowStats.AvgTTFBMS = ttfbSum / float64(ttfbN)
		st.HasTTFB = true
	}
	if ratioN > 0 {
		st.WindowStats.AvgDownloadRatio = ratioSum / float64(ratioN)
		st.HasRatio = true
	}

	// Longest all-error suffix.
	for i := len(samples) - 1; i >= 0; i-- {
		if samples[i].Outcome.OK() {
			break
		}
		st.ConsecutiveErrors++
	}

	return st
}

// manifestStatus counts manifest attempts in the trailing subwindow and
// reports whether any of them succeeded.
func manifestStatus(samples []model.MetricSample, now time.Time, window time.Duration) (attempts int, ok bool) {
	cutoff := now.Add(-window)
	for _, sm := range samples {
		if sm.Kind != model.SampleManifest || !sm.Timestamp.After(cutoff) {
			continue
		}
		attempts++
		if sm.Outcome.OK() {
			ok = true
		}
	}
	return attempts, ok
}

// Package classify derives a probable root cause from a window of
// metric samples. The rules are fixed-priority and fully explainable:
// every label ships with evidence citing the numbers that fired it.
package classify

import (
	"fmt"

	"github.com/randomizedcoder/go-hls-streamwatch/internal/model"
)

// Config holds the classifier's decision thresholds.
type Config struct {
	// TTFBCongestionMS and RatioRealtime gate the Network Congestion rule.
	TTFBCongestionMS float64
	RatioRealtime    float64

	// TTFBEdgeMS gates the CDN Edge Latency rule. Usually the same value
	// as the health evaluator's YELLOW TTFB threshold.
	TTFBEdgeMS float64

	// ManifestFailStreak is the consecutive-failure count that implicates
	// the origin, and SegmentHTTPErrors the count implicating the packager.
	ManifestFailStreak int
	SegmentHTTPErrors  int
}

// DefaultConfig returns the classifier defaults.
func DefaultConfig() Config {
	return Config{
		TTFBCongestionMS:   800,
		RatioRealtime:      1.0,
		TTFBEdgeMS:         500,
		ManifestFailStreak: 2,
		SegmentHTTPErrors:  3,
	}
}

// Classify inspects the window (oldest first) and returns the first
// matching rule's diagnosis. It is pure and deterministic: the same
// window always yields the same label and evidence.
func Classify(samples []model.MetricSample, cfg Config) model.RootCause {
	facts := gather(samples)

	// Rule 1: origin unreachable — the manifests themselves are failing.
	if facts.manifestFailStreak >= cfg.ManifestFailStreak {
		return model.RootCause{
			Label:      model.CauseOriginOutage,
			Confidence: model.ConfidenceHigh,
			Evidence: []string{
				fmt.Sprintf("%d consecutive manifest probe failures", facts.manifestFailStreak),
				fmt.Sprintf("most recent manifest outcome: %s", facts.lastManifestOutcome),
			},
		}
	}

	// Rule 2: manifest fine but segments 4xx/5xx — packager side.
	if facts.manifestOK && facts.segmentHTTPErrors >= cfg.SegmentHTTPErrors {
		return model.RootCause{
			Label:      model.CauseEncoderPackager,
			Confidence: model.ConfidenceMedium,
			Evidence: []string{
				fmt.Sprintf("%d segment HTTP errors in window", facts.segmentHTTPErrors),
				"manifest ok",
			},
		}
	}

	// Rule 3: both latency and throughput degraded — path congestion.
	if facts.hasTTFB && facts.avgTTFB > cfg.TTFBCongestionMS && facts.hasRatio && facts.avgRatio > cfg.RatioRealtime {
		return model.RootCause{
			Label:      model.CauseNetworkCongestion,
			Confidence: model.ConfidenceMedium,
			Evidence: []string{
				fmt.Sprintf("avg TTFB %.0f ms above %.0f ms", facts.avgTTFB, cfg.TTFBCongestionMS),
				fmt.Sprintf("avg download ratio %.2f above realtime", facts.avgRatio),
			},
		}
	}

	// Rule 4: latency elevated, throughput keeping up — edge latency.
	if facts.hasTTFB && facts.avgTTFB > cfg.TTFBEdgeMS && (!facts.hasRatio || facts.avgRatio <= cfg.RatioRealtime) {
		ev := []string{fmt.Sprintf("avg TTFB %.0f ms above %.0f ms", facts.avgTTFB, cfg.TTFBEdgeMS)}
		if facts.hasRatio {
			ev = append(ev, fmt.Sprintf("avg download ratio %.2f within realtime", facts.avgRatio))
		}
		return model.RootCause{
			Label:      model.CauseCDNEdgeLatency,
			Confidence: model.ConfidenceLow,
			Evidence:   ev,
		}
	}

	// Rule 5: some errors with no clearer pattern.
	if facts.errorCount > 0 {
		return model.RootCause{
			Label:      model.CauseIntermittentFailures,
			Confidence: model.ConfidenceLow,
			Evidence: []string{
				fmt.Sprintf("%d of %d probes failed without a clearer pattern", facts.errorCount, facts.sampleCount),
			},
		}
	}

	return model.RootCause{
		Label:    model.CauseInsufficientEvidence,
		Evidence: []string{"no failures or threshold breaches in window"},
	}
}

type windowFacts struct {
	sampleCount int
	errorCount  int

	manifestOK          bool
	manifestFailStreak  int
	lastManifestOutcome string

	segmentHTTPErrors int

	avgTTFB  float64
	hasTTFB  bool
	avgRatio float64
	hasRatio bool
}

func gather(samples []model.MetricSample) windowFacts {
	var f windowFacts
	f.sampleCount = len(samples)

	var ttfbSum float64
	var ttfbN int
	var ratioSum float64
	var ratioN int
	manifestStreak := 0

	for _, sm := range samples {
		if !sm.Outcome.OK() {
			f.errorCount++
		}

		switch sm.Kind {
		case model.SampleManifest:
			f.lastManifestOutcome = sm.Outcome.String()
			if sm.Outcome.OK() {
				f.manifestOK = true
				manifestStreak = 0
			} else {
				manifestStreak++
			}
		case model.SampleSegment:
			if sm.Outcome.Kind == model.OutcomeHTTPError {
				f.segmentHTTPErrors++
			}
		}

		if sm.Outcome.OK() {
			if sm.TTFBMS > 0 {
				ttfbSum += sm.TTFBMS
				ttfbN++
			}
			if sm.HasRatio() {
				ratioSum += sm.DownloadRatio
				ratioN++
			}
		}
	}

	// The streak counts trailing manifest failures: any later ok resets it.
	f.manifestFailStreak = manifestStreak

	if ttfbN > 0 {
		f.avgTTFB = ttfbSum / float64(ttfbN)
		f.hasTTFB = true
	}
	if ratioN > 0 {
		f.avgRatio = ratioSum / float64(ratioN)
		f.hasRatio = true
	}

	return f
}

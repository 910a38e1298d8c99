package store

import (
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-hls-streamwatch/internal/model"
)

// History aggregates a stream's samples over (now-dur, now] into
// per-minute buckets for charting, together with the health transitions
// inside the range and TTFB percentiles over the whole range.
func (s *Store) History(streamID string, now time.Time, dur time.Duration) model.HistoryPayload {
	samples := s.Window(streamID, now, dur)

	payload := model.HistoryPayload{
		StreamID:    streamID,
		Transitions: s.transitionsSince(streamID, now.Add(-dur)),
	}
	if len(samples) == 0 {
		return payload
	}

	td := tdigest.NewWithCompression(100)
	ttfbObservations := 0

	type bucket struct {
		ttfbSum  float64
		ttfbN    int
		ratioSum float64
		ratioN   int
		errors   int
		count    int
	}
	buckets := make(map[time.Time]*bucket)
	var order []time.Time

	for _, sm := range samples {
		minute := sm.Timestamp.Truncate(time.Minute)
		b, ok := buckets[minute]
		if !ok {
			b = &bucket{}
			buckets[minute] = b
			order = append(order, minute)
		}
		b.count++
		if !sm.Outcome.OK() {
			b.errors++
			continue
		}
		if sm.TTFBMS > 0 {
			b.ttfbSum += sm.TTFBMS
			b.ttfbN++
			td.Add(sm.TTFBMS, 1)
			ttfbObservations++
		}
		if sm.HasRatio() {
			b.ratioSum += sm.DownloadRatio
			b.ratioN++
		}
	}

	// Samples arrive in timestamp order, so order is already sorted.
	payload.Points = make([]model.HistoryPoint, 0, len(order))
	for _, minute := range order {
		b := buckets[minute]
		p := model.HistoryPoint{
			Timestamp:   minute,
			ErrorCount:  b.errors,
			SampleCount: b.count,
		}
		if b.ttfbN > 0 {
			p.AvgTTFBMS = b.ttfbSum / float64(b.ttfbN)
		}
		if b.ratioN > 0 {
			p.AvgDownloadRatio = b.ratioSum / float64(b.ratioN)
		}
		payload.Points = append(payload.Points, p)
	}

	if ttfbObservations > 0 {
		payload.TTFBP50MS = td.Quantile(0.5)
		payload.TTFBP95MS = td.Quantile(0.95)
	}

	return payload
}

// transitionsSince returns a copy of the stream's health transitions at
// or after the cutoff.
func (s *Store) transitionsSince(streamID string, cutoff time.Time) []model.HealthTransition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rings[streamID]
	if !ok {
		return nil
	}
	out := make([]model.HealthTransition, 0, len(r.transitions))
	for _, tr := range r.transitions {
		if !tr.Timestamp.Before(cutoff) {
			out = append(out, tr)
		}
	}
	return out
}

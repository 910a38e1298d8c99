// Package store keeps the per-stream rolling metric history.
//
// Each stream owns a bounded append-only ring of samples, written by
// exactly one supervisor and read by the evaluator, the classifier, and
// the history API. Reads return copies, so a slice handed to a reader is
// stable for the reader's lifetime regardless of later appends.
package store

import (
	"sync"
	"time"

	"github.com/randomizedcoder/go-hls-streamwatch/internal/model"
)

// transitionCap bounds the retained health transitions per stream.
const transitionCap = 256

// ring is one stream's bounded sample buffer plus its transition log.
type ring struct {
	samples  []model.MetricSample
	writeIdx int
	capacity int

	transitions []model.HealthTransition
}

// Store holds the rings for all registered streams.
//
// Thread-safe: one writer per stream, many readers.
type Store struct {
	mu       sync.RWMutex
	rings    map[string]*ring
	capacity int
}

// New creates a Store whose per-stream rings hold capacity samples.
// Size the capacity to the longest history window at the maximum
// sampling rate (two samples per tick) plus a margin.
func New(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		rings:    make(map[string]*ring),
		capacity: capacity,
	}
}

// CapacityFor computes a ring capacity covering windowLong at one
// manifest plus one segment sample per tick, with headroom.
func CapacityFor(windowLong, pollInterval time.Duration) int {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	n := int(windowLong/pollInterval)*2 + 32
	if n < 64 {
		n = 64
	}
	return n
}

// Register creates an empty ring for a stream. Registering an existing
// stream is a no-op.
func (s *Store) Register(streamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rings[streamID]; !ok {
		s.rings[streamID] = &ring{
			samples:  make([]model.MetricSample, 0, s.capacity),
			capacity: s.capacity,
		}
	}
}

// Drop removes a stream's ring and everything in it.
func (s *Store) Drop(streamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rings, streamID)
}

// Append adds a sample to a stream's ring, evicting the oldest entry
// once the ring is full. Appending to an unregistered stream is dropped.
func (s *Store) Append(streamID string, sample model.MetricSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rings[streamID]
	if !ok {
		return
	}
	if len(r.samples) < r.capacity {
		r.samples = append(r.samples, sample)
	} else {
		r.samples[r.writeIdx] = sample
		r.writeIdx = (r.writeIdx + 1) % r.capacity
	}
}

// RecordTransition appends a health transition to the stream's log.
func (s *Store) RecordTransition(streamID string, tr model.HealthTransition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rings[streamID]
	if !ok {
		return
	}
	r.transitions = append(r.transitions, tr)
	if len(r.transitions) > transitionCap {
		r.transitions = r.transitions[len(r.transitions)-transitionCap:]
	}
}

// Window returns the stream's samples with ts in (now-dur, now], oldest
// first. The returned slice is a copy.
func (s *Store) Window(streamID string, now time.Time, dur time.Duration) []model.MetricSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rings[streamID]
	if !ok {
		return nil
	}

	cutoff := now.Add(-dur)
	out := make([]model.MetricSample, 0, len(r.samples))
	for _, sm := range r.ordered() {
		if sm.Timestamp.After(cutoff) && !sm.Timestamp.After(now) {
			out = append(out, sm)
		}
	}
	return out
}

// Latest returns the stream's most recent sample.
func (s *Store) Latest(streamID string) (model.MetricSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rings[streamID]
	if !ok || len(r.samples) == 0 {
		return model.MetricSample{}, false
	}
	ord := r.ordered()
	return ord[len(ord)-1], true
}

// SampleCount returns the number of samples held for a stream.
// Useful for testing.
func (s *Store) SampleCount(streamID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.rings[streamID]; ok {
		return len(r.samples)
	}
	return 0
}

// ordered returns the ring's samples oldest-first. Must be called with
// mu held.
func (r *ring) ordered() []model.MetricSample {
	if len(r.samples) < r.capacity {
		return r.samples
	}
	out := make([]model.MetricSample, 0, len(r.samples))
	out = append(out, r.samples[r.writeIdx:]...)
	out = append(out, r.samples[:r.writeIdx]...)
	return out
}

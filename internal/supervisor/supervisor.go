package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/randomizedcoder/go-hls-streamwatch/internal/health"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/hls"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/incident"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/model"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/store"
)

// Prober issues observational requests. Implemented by probe.Prober;
// tests inject fakes.
type Prober interface {
	Manifest(ctx context.Context, url string) (model.MetricSample, []byte)
	Segment(ctx context.Context, url string, declaredDurationMS float64) model.MetricSample
}

// Thumbnailer captures a still from a segment URL. Implementations must
// tolerate the underlying tool being absent. May be nil.
type Thumbnailer interface {
	Capture(ctx context.Context, streamID, segmentURL string) (string, error)
}

// Callbacks contains optional callback functions for supervisor events.
type Callbacks struct {
	// OnSnapshot is called with every published health snapshot.
	OnSnapshot func(streamID string, snap model.HealthSnapshot)

	// OnEvent is called for push-channel events (health_changed,
	// sample_appended).
	OnEvent func(ev model.Event)

	// OnStateChange is called when the supervisor state changes.
	OnStateChange func(streamID string, oldState, newState State)
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	Stream model.Stream

	PollInterval    time.Duration
	WindowShort     time.Duration
	ThumbnailEveryK int

	Thresholds health.Thresholds
	Backoff    BackoffConfig

	Prober      Prober
	Store       *store.Store
	Incidents   *incident.Manager
	Thumbnailer Thumbnailer
	Logger      *slog.Logger
	Callbacks   Callbacks
}

// seenSegmentCap bounds the probed-segment set for long-lived streams.
const seenSegmentCap = 1024

// Supervisor owns the polling loop for a single stream. It is the only
// writer of that stream's metric ring; everything it learns flows out
// through the store, the incident manager, and the callbacks.
type Supervisor struct {
	cfg     Config
	logger  *slog.Logger
	backoff *Backoff
	tracker *health.Tracker

	state   State
	stateMu sync.RWMutex

	// Probe target bookkeeping. mediaURL is set once a master manifest
	// has been drilled into; seenSegments dedupes probed segment URIs.
	mediaURL     string
	seenSegments map[string]struct{}
	seenOrder    []string
	tick         int

	// Read-side snapshots.
	snapMu        sync.RWMutex
	lastSnapshot  model.HealthSnapshot
	lastOKSegment string
	lastThumbnail string

	thumbInFlight sync.Mutex
}

// New creates a Supervisor for one stream.
func New(cfg Config) *Supervisor {
	return &Supervisor{
		cfg:          cfg,
		logger:       cfg.Logger,
		backoff:      NewBackoff(cfg.Backoff),
		tracker:      health.NewTracker(cfg.Thresholds),
		state:        StateInit,
		seenSegments: make(map[string]struct{}),
		lastSnapshot: model.HealthSnapshot{
			State:     model.HealthGreen,
			Reason:    "No samples in window yet",
			UpdatedAt: time.Now(),
		},
	}
}

// Run starts the supervision loop. It blocks until ctx is cancelled.
// An internal panic restarts the loop with exponential backoff and
// publishes a RED snapshot, so one faulty stream cannot stay silent.
func (s *Supervisor) Run(ctx context.Context) {
	s.logger.Debug("supervisor_starting", "manifest_url", s.cfg.Stream.ManifestURL)

	for {
		started := time.Now()
		crashed := s.runLoop(ctx)

		if ctx.Err() != nil {
			s.setState(StateStopped)
			s.logger.Debug("supervisor_stopped", "reason", "context_cancelled")
			return
		}
		if !crashed {
			s.setState(StateStopped)
			return
		}

		if shouldReset(time.Since(started)) {
			s.backoff.Reset()
		}
		delay := s.backoff.Next()
		s.setState(StateBackoff)

		s.publishSnapshot(model.HealthSnapshot{
			State:     model.HealthRed,
			Reason:    "supervisor restart",
			UpdatedAt: time.Now(),
		}, nil)

		s.logger.Warn("supervisor_restart_scheduled",
			"attempt", s.backoff.Attempts(),
			"delay", delay.String(),
		)

		select {
		case <-ctx.Done():
			s.setState(StateStopped)
			return
		case <-time.After(delay):
		}
	}
}

// runLoop runs ticks until cancellation or panic. Returns true if the
// loop exited because of a panic.
func (s *Supervisor) runLoop(ctx context.Context) (crashed bool) {
	defer func() {
		if r := recover(); r != nil {
			crashed = true
			s.logger.Error("supervisor_panic", "panic", fmt.Sprint(r))
		}
	}()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	// First tick fires immediately: a newly added stream should have a
	// health verdict within one probe round, not one poll interval.
	s.runTick(ctx)

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

// runTick performs one observation round.
func (s *Supervisor) runTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.tick++
	streamID := s.cfg.Stream.ID

	// 1. Manifest probe.
	target := s.cfg.Stream.ManifestURL
	if s.mediaURL != "" {
		target = s.mediaURL
	}
	manifestSample, body := s.cfg.Prober.Manifest(ctx, target)
	if ctx.Err() != nil {
		s.setState(StateStopping)
		return
	}

	var segment *hls.Segment
	if manifestSample.Outcome.OK() {
		base, _ := url.Parse(target)
		playlist, err := hls.Parse(body, base)
		switch {
		case err != nil:
			manifestSample.Outcome = model.Outcome{Kind: model.OutcomeParseError}
			s.logger.Debug("manifest_parse_failed", "url", target, "error", err)
		case playlist.Master != nil:
			if v, ok := playlist.Master.HighestBandwidth(); ok {
				s.mediaURL = v.URI
				s.logger.Debug("variant_selected", "bandwidth", v.Bandwidth, "uri", v.URI)
			}
		case playlist.Media != nil:
			segment = s.selectSegment(playlist.Media)
		}
	}
	s.record(streamID, manifestSample)

	if s.State() == StateInit {
		s.setState(StateRunning)
	}

	// 2. Segment probe.
	if segment != nil {
		segSample := s.cfg.Prober.Segment(ctx, segment.URI, segment.DurationSec*1000)
		if ctx.Err() != nil {
			s.setState(StateStopping)
			return
		}
		s.record(streamID, segSample)
		if segSample.Outcome.OK() {
			s.snapMu.Lock()
			s.lastOKSegment = segment.URI
			s.snapMu.Unlock()
		}
	}

	// 3. Evaluate the window and publish.
	now := time.Now()
	window := s.cfg.Store.Window(streamID, now, s.cfg.WindowShort)
	snap, transitions := s.tracker.Observe(window, now)
	for _, tr := range transitions {
		s.cfg.Store.RecordTransition(streamID, tr)
	}
	s.publishSnapshot(snap, transitions)

	// 4. Incident lifecycle.
	s.cfg.Incidents.Observe(streamID, snap, transitions)

	// 5. Thumbnail cadence.
	if s.cfg.Thumbnailer != nil && s.cfg.ThumbnailEveryK > 0 && s.tick%s.cfg.ThumbnailEveryK == 0 {
		s.captureThumbnail(ctx)
	}
}

// selectSegment picks the second-most-recent segment not already probed.
// The most recent segment is often still being produced at the origin.
func (s *Supervisor) selectSegment(media *hls.MediaPlaylist) *hls.Segment {
	n := len(media.Segments)
	if n == 0 {
		return nil
	}

	candidates := make([]hls.Segment, 0, 2)
	if n >= 2 {
		candidates = append(candidates, media.Segments[n-2])
	}
	candidates = append(candidates, media.Segments[n-1])

	for i := range candidates {
		seg := candidates[i]
		if _, seen := s.seenSegments[seg.URI]; seen {
			continue
		}
		s.markSeen(seg.URI)
		return &seg
	}
	return nil
}

func (s *Supervisor) markSeen(uri string) {
	s.seenSegments[uri] = struct{}{}
	s.seenOrder = append(s.seenOrder, uri)
	if len(s.seenOrder) > seenSegmentCap {
		evict := s.seenOrder[0]
		s.seenOrder = s.seenOrder[1:]
		delete(s.seenSegments, evict)
	}
}

// record appends a sample and forwards it to the incident timeline and
// the push channel.
func (s *Supervisor) record(streamID string, sample model.MetricSample) {
	s.cfg.Store.Append(streamID, sample)
	s.cfg.Incidents.RecordOutcome(streamID, sample)

	if s.cfg.Callbacks.OnEvent != nil {
		s.cfg.Callbacks.OnEvent(model.Event{
			Event:    model.EventTypeSampleAppended,
			StreamID: streamID,
			Payload:  sample,
			TS:       sample.Timestamp,
		})
	}
}

// publishSnapshot stores the read-side snapshot and notifies listeners.
func (s *Supervisor) publishSnapshot(snap model.HealthSnapshot, transitions []model.HealthTransition) {
	s.snapMu.Lock()
	s.lastSnapshot = snap
	s.snapMu.Unlock()

	if s.cfg.Callbacks.OnSnapshot != nil {
		s.cfg.Callbacks.OnSnapshot(s.cfg.Stream.ID, snap)
	}
	if s.cfg.Callbacks.OnEvent != nil {
		for _, tr := range transitions {
			s.cfg.Callbacks.OnEvent(model.Event{
				Event:    model.EventTypeHealthChanged,
				StreamID: s.cfg.Stream.ID,
				Payload:  tr,
				TS:       tr.Timestamp,
			})
		}
	}
}

// captureThumbnail asks the external tool for a still of the most recent
// ok segment. Runs in a goroutine so a slow tool cannot delay ticks; at
// most one capture is in flight per stream.
func (s *Supervisor) captureThumbnail(ctx context.Context) {
	s.snapMu.RLock()
	segURL := s.lastOKSegment
	s.snapMu.RUnlock()
	if segURL == "" {
		return
	}

	if !s.thumbInFlight.TryLock() {
		return
	}
	go func() {
		defer s.thumbInFlight.Unlock()

		path, err := s.cfg.Thumbnailer.Capture(ctx, s.cfg.Stream.ID, segURL)
		if err != nil {
			s.logger.Debug("thumbnail_capture_failed", "error", err)
			return
		}
		s.snapMu.Lock()
		s.lastThumbnail = path
		s.snapMu.Unlock()
		s.cfg.Incidents.RecordThumbnail(s.cfg.Stream.ID, path)
	}()
}

// Snapshot returns the latest published health snapshot.
func (s *Supervisor) Snapshot() model.HealthSnapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.lastSnapshot
}

// LastThumbnail returns the most recent captured thumbnail path.
func (s *Supervisor) LastThumbnail() string {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.lastThumbnail
}

// Stream returns the stream configuration this supervisor watches.
func (s *Supervisor) Stream() model.Stream {
	return s.cfg.Stream
}

// State returns the current supervisor state.
func (s *Supervisor) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// setState updates the state and calls the callback if registered.
func (s *Supervisor) setState(newState State) {
	s.stateMu.Lock()
	oldState := s.state
	if oldState == StateStopped && newState != StateStopped {
		s.stateMu.Unlock()
		return
	}
	s.state = newState
	s.stateMu.Unlock()

	if s.cfg.Callbacks.OnStateChange != nil && oldState != newState {
		s.cfg.Callbacks.OnStateChange(s.cfg.Stream.ID, oldState, newState)
	}
}

// Package incident owns the incident lifecycle: opening on sustained
// bad health, operator acknowledgement, hold-based auto-resolution, and
// the per-incident timeline.
//
// The Manager is the only code allowed to mutate incident state. At most
// one incident per stream is active (OPEN or ACKNOWLEDGED) at any time;
// resolved incidents move to a bounded FIFO history and are destroyed
// only by eviction.
package incident

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/go-hls-streamwatch/internal/model"
)

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config holds the manager's lifecycle policy knobs.
type Config struct {
	YellowPersistence time.Duration // YELLOW duration before an incident opens
	ResolveHold       time.Duration // GREEN duration before auto-resolve
	HistoryRetention  int           // resolved incidents kept per stream
	TimelineCap       int           // events kept per incident
}

// Notifier receives lifecycle events for fan-out. May be nil.
type Notifier func(ev model.Event)

// streamState is the per-stream bookkeeping behind the open/resolve policies.
type streamState struct {
	active      *model.Incident
	history     []model.Incident
	eventSeq    int64
	yellowSince time.Time // zero when not in a YELLOW stretch
	greenSince  time.Time // zero when not in a GREEN stretch
}

// Manager tracks incidents for all streams.
//
// Thread-safe: supervisors and the HTTP layer call in concurrently.
type Manager struct {
	mu      sync.Mutex
	streams map[string]*streamState

	cfg    Config
	logger *slog.Logger
	clock  Clock
	notify Notifier
}

// New creates a Manager.
func New(cfg Config, logger *slog.Logger, notify Notifier) *Manager {
	return NewWithClock(cfg, logger, notify, realClock{})
}

// NewWithClock creates a Manager with a custom clock for testing.
func NewWithClock(cfg Config, logger *slog.Logger, notify Notifier, clock Clock) *Manager {
	if cfg.TimelineCap < 2 {
		cfg.TimelineCap = 2
	}
	return &Manager{
		streams: make(map[string]*streamState),
		cfg:     cfg,
		logger:  logger,
		clock:   clock,
		notify:  notify,
	}
}

// Observe feeds one evaluation result into the lifecycle policies:
// transitions (oldest first) plus the current snapshot. It opens an
// incident on a RED transition or on YELLOW persisting past the
// configured duration, and resolves the active incident once GREEN has
// held long enough.
func (m *Manager) Observe(streamID string, snap model.HealthSnapshot, transitions []model.HealthTransition) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(streamID)
	now := m.clock.Now()

	for _, tr := range transitions {
		m.appendEventLocked(st, model.TimelineEvent{
			TS:      tr.Timestamp,
			Kind:    model.EventHealthTransition,
			Message: fmt.Sprintf("Health changed from %s to %s: %s", tr.From, tr.To, tr.Reason),
			Attributes: map[string]string{
				"from": string(tr.From),
				"to":   string(tr.To),
			},
		})

		switch tr.To {
		case model.HealthRed:
			st.greenSince = time.Time{}
			m.openLocked(streamID, st, tr.Reason, snap)
		case model.HealthYellow:
			st.greenSince = time.Time{}
			if st.yellowSince.IsZero() {
				st.yellowSince = tr.Timestamp
			}
		case model.HealthGreen:
			st.yellowSince = time.Time{}
			if st.greenSince.IsZero() {
				st.greenSince = tr.Timestamp
			}
		}
	}

	// Sustained-YELLOW opening is time-based, not edge-based: check it on
	// every observation while the state is still YELLOW.
	switch snap.State {
	case model.HealthYellow:
		st.greenSince = time.Time{}
		if st.yellowSince.IsZero() {
			st.yellowSince = now
		}
		if now.Sub(st.yellowSince) >= m.cfg.YellowPersistence {
			reason := fmt.Sprintf("Stream degraded (YELLOW) for %d s: %s",
				int(m.cfg.YellowPersistence/time.Second), snap.Reason)
			m.openLocked(streamID, st, reason, snap)
		}
	case model.HealthGreen:
		st.yellowSince = time.Time{}
		if st.greenSince.IsZero() {
			st.greenSince = now
		}
		if st.active != nil && now.Sub(st.greenSince) >= m.cfg.ResolveHold {
			m.resolveLocked(streamID, st, "Health held GREEN; incident auto-resolved")
		}
	case model.HealthRed:
		st.greenSince = time.Time{}
	}
}

// RecordOutcome appends a probe outcome to the active incident's
// timeline. Without an active incident this is a no-op: outcome history
// lives in the metric store, the incident timeline is diagnostic.
func (m *Manager) RecordOutcome(streamID string, sample model.MetricSample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(streamID)
	if st.active == nil {
		return
	}

	kind := model.EventSegmentOK
	msg := fmt.Sprintf("Segment probe ok (%.0f ms)", sample.TotalMS)
	switch {
	case sample.Kind == model.SampleManifest && !sample.Outcome.OK():
		kind = model.EventManifestFail
		msg = fmt.Sprintf("Manifest probe failed: %s", sample.Outcome)
	case sample.Kind == model.SampleManifest:
		return // healthy manifest fetches are noise on a timeline
	case !sample.Outcome.OK():
		kind = model.EventSegmentFail
		msg = fmt.Sprintf("Segment probe failed: %s", sample.Outcome)
	}

	m.appendEventLocked(st, model.TimelineEvent{
		TS:      sample.Timestamp,
		Kind:    kind,
		Message: msg,
		Attributes: map[string]string{
			"url":     sample.URL,
			"outcome": sample.Outcome.String(),
		},
	})
}

// RecordThumbnail notes a captured thumbnail on the active timeline.
func (m *Manager) RecordThumbnail(streamID, thumbnailURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(streamID)
	if st.active == nil {
		return
	}
	m.appendEventLocked(st, model.TimelineEvent{
		TS:      m.clock.Now(),
		Kind:    model.EventThumbnailCaptured,
		Message: "Thumbnail captured",
		Attributes: map[string]string{
			"thumbnail_url": thumbnailURL,
		},
	})
}

// Acknowledge sets an OPEN incident to ACKNOWLEDGED. It is idempotent:
// acknowledging an already-acknowledged incident changes nothing. The
// bool reports whether the incident was found among active incidents.
func (m *Manager) Acknowledge(incidentID string) (model.Incident, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for streamID, st := range m.streams {
		if st.active == nil || st.active.ID != incidentID {
			continue
		}
		if st.active.Status == model.IncidentOpen {
			now := m.clock.Now()
			st.active.Status = model.IncidentAcknowledged
			st.active.AckedAt = &now
			m.appendEventLocked(st, model.TimelineEvent{
				TS:      now,
				Kind:    model.EventIncidentAcknowledged,
				Message: "Incident acknowledged by operator",
			})
			m.logger.Info("incident_acknowledged", "incident_id", incidentID, "stream_id", streamID)
			m.emit(model.EventTypeIncidentAcknowledged, streamID, st.active.Clone())
		}
		return st.active.Clone(), true
	}
	return model.Incident{}, false
}

// Active returns a copy of the stream's active incident.
func (m *Manager) Active(streamID string) (model.Incident, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.streams[streamID]
	if !ok || st.active == nil {
		return model.Incident{}, false
	}
	return st.active.Clone(), true
}

// ByID finds an incident, active or historical.
func (m *Manager) ByID(incidentID string) (model.Incident, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, st := range m.streams {
		if st.active != nil && st.active.ID == incidentID {
			return st.active.Clone(), true
		}
		for i := range st.history {
			if st.history[i].ID == incidentID {
				return st.history[i].Clone(), true
			}
		}
	}
	return model.Incident{}, false
}

// List returns incidents newest-first, optionally restricted to a
// stream and to active statuses.
func (m *Manager) List(streamID string, activeOnly bool) []model.Incident {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Incident
	for id, st := range m.streams {
		if streamID != "" && id != streamID {
			continue
		}
		if st.active != nil {
			out = append(out, st.active.Clone())
		}
		if !activeOnly {
			for i := range st.history {
				out = append(out, st.history[i].Clone())
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OpenedAt.After(out[j].OpenedAt)
	})
	return out
}

// ActiveCount returns the number of active incidents across all streams.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, st := range m.streams {
		if st.active != nil {
			n++
		}
	}
	return n
}

// Timeline returns the last limit events of the stream's active
// incident, oldest first, or nil when no incident is active.
func (m *Manager) Timeline(streamID string, limit int) []model.TimelineEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.streams[streamID]
	if !ok || st.active == nil {
		return nil
	}
	tl := st.active.Timeline
	if limit > 0 && len(tl) > limit {
		tl = tl[len(tl)-limit:]
	}
	out := make([]model.TimelineEvent, len(tl))
	copy(out, tl)
	return out
}

// DropStream discards all incident state for a deleted stream.
func (m *Manager) DropStream(streamID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streams, streamID)
}

// state returns (creating if needed) the bookkeeping for a stream.
// Must be called with mu held.
func (m *Manager) state(streamID string) *streamState {
	st, ok := m.streams[streamID]
	if !ok {
		st = &streamState{}
		m.streams[streamID] = st
	}
	return st
}

// openLocked opens an incident unless one is already active.
func (m *Manager) openLocked(streamID string, st *streamState, triggerReason string, snap model.HealthSnapshot) {
	if st.active != nil {
		return
	}

	now := m.clock.Now()
	inc := &model.Incident{
		ID:            "INC-" + uuid.NewString()[:8],
		StreamID:      streamID,
		Status:        model.IncidentOpen,
		TriggerReason: triggerReason,
		OpenedAt:      now,
	}
	st.active = inc
	m.appendEventLocked(st, model.TimelineEvent{
		TS:      now,
		Kind:    model.EventIncidentOpened,
		Message: triggerReason,
		Attributes: map[string]string{
			"state":  string(snap.State),
			"reason": snap.Reason,
		},
	})

	m.logger.Info("incident_opened",
		"incident_id", inc.ID,
		"stream_id", streamID,
		"trigger", triggerReason,
	)
	m.emit(model.EventTypeIncidentOpened, streamID, inc.Clone())
}

// resolveLocked resolves the active incident and moves it to history.
func (m *Manager) resolveLocked(streamID string, st *streamState, reason string) {
	inc := st.active
	now := m.clock.Now()
	inc.Status = model.IncidentResolved
	inc.ResolvedAt = &now
	m.appendEventLocked(st, model.TimelineEvent{
		TS:      now,
		Kind:    model.EventIncidentResolved,
		Message: reason,
	})

	st.active = nil
	st.history = append(st.history, *inc)
	if m.cfg.HistoryRetention > 0 && len(st.history) > m.cfg.HistoryRetention {
		st.history = st.history[len(st.history)-m.cfg.HistoryRetention:]
	}

	m.logger.Info("incident_resolved",
		"incident_id", inc.ID,
		"stream_id", streamID,
		"open_for", now.Sub(inc.OpenedAt).String(),
	)
	m.emit(model.EventTypeIncidentResolved, streamID, inc.Clone())
}

// appendEventLocked stamps and appends a timeline event to the active
// incident, enforcing the cap. The opening event and the newest events
// survive eviction.
func (m *Manager) appendEventLocked(st *streamState, ev model.TimelineEvent) {
	if st.active == nil {
		return
	}
	st.eventSeq++
	ev.ID = st.eventSeq
	st.active.Timeline = append(st.active.Timeline, ev)

	if len(st.active.Timeline) > m.cfg.TimelineCap {
		// Drop the second-oldest entries, keeping the open event at the head.
		tl := st.active.Timeline
		excess := len(tl) - m.cfg.TimelineCap
		kept := make([]model.TimelineEvent, 0, m.cfg.TimelineCap)
		kept = append(kept, tl[0])
		kept = append(kept, tl[1+excess:]...)
		st.active.Timeline = kept
	}
}

func (m *Manager) emit(t model.EventType, streamID string, payload any) {
	if m.notify == nil {
		return
	}
	m.notify(model.Event{
		Event:    t,
		StreamID: streamID,
		Payload:  payload,
		TS:       m.clock.Now(),
	})
}

// Package registry is the process-wide map of stream supervisors and
// the read side every external interface goes through.
//
// The registry owns supervisor lifecycles (start on add, stop with a
// grace timeout on remove), publishes change events on its fan-out bus,
// and hands out point-in-time copies: no caller ever sees a reference
// into live per-stream state.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/go-hls-streamwatch/internal/classify"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/config"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/health"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/incident"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/logging"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/model"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/persist"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/store"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/supervisor"
)

// Registry errors surfaced to the HTTP layer.
var (
	ErrStreamNotFound  = errors.New("stream not found")
	ErrDuplicateStream = errors.New("stream with this manifest URL already exists")
)

// entry pairs a running supervisor with its cancellation handle.
type entry struct {
	sup    *supervisor.Supervisor
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry holds stream_id → supervisor plus the shared pipeline
// components. It is the only cross-stream shared state in the process.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	cfg       *config.Config
	logger    *slog.Logger
	prober    supervisor.Prober
	thumbs    supervisor.Thumbnailer
	store     *store.Store
	incidents *incident.Manager
	bus       *Bus

	classifyCfg classify.Config
	persistence *persist.FileStore
	startTime   time.Time
}

// Options bundles the collaborators a Registry needs.
type Options struct {
	Config      *config.Config
	Logger      *slog.Logger
	Prober      supervisor.Prober
	Thumbnailer supervisor.Thumbnailer
	Persistence *persist.FileStore
}

// New creates a Registry and its owned pipeline components.
func New(opts Options) *Registry {
	cfg := opts.Config
	bus := NewBus(cfg.SubscriberQueue)

	incidents := incident.New(incident.Config{
		YellowPersistence: cfg.YellowPersistence,
		ResolveHold:       cfg.ResolveHold,
		HistoryRetention:  cfg.HistoryRetention,
		TimelineCap:       cfg.TimelineCap,
	}, opts.Logger, bus.Publish)

	ccfg := classify.DefaultConfig()
	ccfg.TTFBEdgeMS = cfg.TTFBYellowMS

	return &Registry{
		entries:     make(map[string]*entry),
		cfg:         cfg,
		logger:      opts.Logger,
		prober:      opts.Prober,
		thumbs:      opts.Thumbnailer,
		store:       store.New(store.CapacityFor(cfg.WindowLong, cfg.PollInterval)),
		incidents:   incidents,
		bus:         bus,
		classifyCfg: ccfg,
		persistence: opts.Persistence,
		startTime:   time.Now(),
	}
}

// LoadPersisted starts supervisors for every stream in the persisted
// document. Called once at startup.
func (r *Registry) LoadPersisted(ctx context.Context) error {
	if r.persistence == nil {
		return nil
	}
	streams, err := r.persistence.Load()
	if err != nil {
		return err
	}
	for _, st := range streams {
		r.startStream(ctx, st)
	}
	if len(streams) > 0 {
		r.logger.Info("streams_loaded", "count", len(streams))
	}
	return nil
}

// AddStream validates, registers, persists, and starts monitoring a new
// stream.
func (r *Registry) AddStream(ctx context.Context, name, manifestURL string) (model.Stream, error) {
	if err := config.ValidateManifestURL(manifestURL); err != nil {
		return model.Stream{}, err
	}

	r.mu.RLock()
	for _, e := range r.entries {
		if e.sup.Stream().ManifestURL == manifestURL {
			r.mu.RUnlock()
			return model.Stream{}, ErrDuplicateStream
		}
	}
	r.mu.RUnlock()

	st := model.Stream{
		ID:          uuid.NewString()[:8],
		Name:        name,
		ManifestURL: manifestURL,
		CreatedAt:   time.Now(),
	}
	r.startStream(ctx, st)
	r.persistStreams()

	r.logger.Info("stream_added", "stream_id", st.ID, "name", name, "manifest_url", manifestURL)
	return st, nil
}

// RemoveStream stops a stream's supervisor and drops all of its state.
// It blocks until the supervisor reaches STOPPED or the grace timeout
// elapses, after which resources are released unconditionally.
func (r *Registry) RemoveStream(streamID string) error {
	r.mu.Lock()
	e, ok := r.entries[streamID]
	if !ok {
		r.mu.Unlock()
		return ErrStreamNotFound
	}
	delete(r.entries, streamID)
	r.mu.Unlock()

	e.cancel()
	select {
	case <-e.done:
	case <-time.After(r.cfg.StopGrace):
		r.logger.Warn("stream_stop_grace_exceeded", "stream_id", streamID)
	}

	r.store.Drop(streamID)
	r.incidents.DropStream(streamID)
	r.persistStreams()

	r.logger.Info("stream_removed", "stream_id", streamID)
	return nil
}

// startStream registers and launches a supervisor. Must not hold mu.
func (r *Registry) startStream(ctx context.Context, st model.Stream) {
	r.store.Register(st.ID)

	supCtx, cancel := context.WithCancel(ctx)
	sup := supervisor.New(supervisor.Config{
		Stream:          st,
		PollInterval:    r.cfg.PollInterval,
		WindowShort:     r.cfg.WindowShort,
		ThumbnailEveryK: r.cfg.ThumbnailEveryK,
		Thresholds: health.Thresholds{
			Window:               r.cfg.WindowShort,
			TTFBYellowMS:         r.cfg.TTFBYellowMS,
			RatioYellow:          r.cfg.RatioYellow,
			RedConsecutiveErrors: r.cfg.RedConsecutiveErrors,
			RedErrRate:           r.cfg.RedErrRate,
			FlapWindow:           r.cfg.FlapWindow,
			ManifestWindow:       30 * time.Second,
			ManifestMinAttempts:  2,
		},
		Backoff: supervisor.BackoffConfig{
			Initial: r.cfg.BackoffInitial,
			Max:     r.cfg.BackoffMax,
			Factor:  r.cfg.BackoffFactor,
		},
		Prober:      r.prober,
		Store:       r.store,
		Incidents:   r.incidents,
		Thumbnailer: r.thumbs,
		Logger:      logging.ForStream(r.logger, st.ID, st.Name),
		Callbacks: supervisor.Callbacks{
			OnEvent: r.bus.Publish,
		},
	})

	e := &entry{sup: sup, cancel: cancel, done: make(chan struct{})}
	r.mu.Lock()
	r.entries[st.ID] = e
	r.mu.Unlock()

	go func() {
		defer close(e.done)
		sup.Run(supCtx)
	}()
}

// ListStreams returns summaries sorted by creation time.
func (r *Registry) ListStreams() []model.StreamSummary {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].sup.Stream().CreatedAt.Before(entries[j].sup.Stream().CreatedAt)
	})

	out := make([]model.StreamSummary, 0, len(entries))
	for _, e := range entries {
		st := e.sup.Stream()
		summary := model.StreamSummary{
			ID:           st.ID,
			Name:         st.Name,
			Health:       e.sup.Snapshot(),
			ThumbnailURL: e.sup.LastThumbnail(),
		}
		if inc, ok := r.incidents.Active(st.ID); ok {
			summary.HasActiveIncident = true
			summary.ActiveIncidentID = inc.ID
		}
		out = append(out, summary)
	}
	return out
}

// GetStream returns the investigation view of one stream.
func (r *Registry) GetStream(streamID string) (model.StreamDetail, error) {
	r.mu.RLock()
	e, ok := r.entries[streamID]
	r.mu.RUnlock()
	if !ok {
		return model.StreamDetail{}, ErrStreamNotFound
	}

	detail := model.StreamDetail{
		Stream:       e.sup.Stream(),
		Health:       e.sup.Snapshot(),
		ThumbnailURL: e.sup.LastThumbnail(),
	}

	if inc, ok := r.incidents.Active(streamID); ok {
		detail.ActiveIncident = &inc
	}

	if latest, ok := r.store.Latest(streamID); ok {
		detail.LatestSample = &latest
	}

	// Classification is computed on demand for unhealthy streams.
	if detail.Health.State != model.HealthGreen || detail.ActiveIncident != nil {
		window := r.store.Window(streamID, time.Now(), r.cfg.WindowShort)
		rc := classify.Classify(window, r.classifyCfg)
		detail.RootCause = &rc
	}

	return detail, nil
}

// GetHistory returns the charting series for a stream.
func (r *Registry) GetHistory(streamID string, minutes int) (model.HistoryPayload, error) {
	if !r.knows(streamID) {
		return model.HistoryPayload{}, ErrStreamNotFound
	}
	dur := time.Duration(minutes) * time.Minute
	if dur <= 0 || dur > r.cfg.WindowLong {
		dur = r.cfg.WindowLong
	}
	return r.store.History(streamID, time.Now(), dur), nil
}

// GetTimeline returns recent timeline events for a stream.
func (r *Registry) GetTimeline(streamID string, limit int) ([]model.TimelineEvent, error) {
	if !r.knows(streamID) {
		return nil, ErrStreamNotFound
	}
	return r.incidents.Timeline(streamID, limit), nil
}

// ListIncidents filters incidents across streams.
func (r *Registry) ListIncidents(streamID string, activeOnly bool) []model.Incident {
	return r.incidents.List(streamID, activeOnly)
}

// AcknowledgeIncident marks an incident acknowledged. Idempotent.
func (r *Registry) AcknowledgeIncident(incidentID string) (model.Incident, bool) {
	return r.incidents.Acknowledge(incidentID)
}

// GetIncident finds an incident by id, active or resolved.
func (r *Registry) GetIncident(incidentID string) (model.Incident, bool) {
	return r.incidents.ByID(incidentID)
}

// Subscribe attaches a new push-channel reader.
func (r *Registry) Subscribe() *Subscription {
	return r.bus.Subscribe()
}

// Health summarizes the process for the /health endpoint.
type Health struct {
	Status           string  `json:"status"`
	StreamsMonitored int     `json:"streams_monitored"`
	ActiveIncidents  int     `json:"active_incidents"`
	UptimeS          float64 `json:"uptime_s"`
}

// HealthCheck returns the process-level health summary.
func (r *Registry) HealthCheck() Health {
	r.mu.RLock()
	n := len(r.entries)
	r.mu.RUnlock()

	return Health{
		Status:           "ok",
		StreamsMonitored: n,
		ActiveIncidents:  r.incidents.ActiveCount(),
		UptimeS:          time.Since(r.startTime).Seconds(),
	}
}

// StreamCount returns the number of monitored streams.
func (r *Registry) StreamCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ActiveIncidentCount returns the number of active incidents.
func (r *Registry) ActiveIncidentCount() int {
	return r.incidents.ActiveCount()
}

// DroppedEvents returns the total push events dropped for slow readers.
func (r *Registry) DroppedEvents() int64 {
	return r.bus.Dropped()
}

// Shutdown stops every supervisor and closes the fan-out bus. Blocks
// until all supervisors stop or ctx expires.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for id, e := range r.entries {
		entries = append(entries, e)
		delete(r.entries, id)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.cancel()
	}
	for _, e := range entries {
		select {
		case <-e.done:
		case <-ctx.Done():
			r.bus.Close()
			return ctx.Err()
		}
	}
	r.bus.Close()
	return nil
}

func (r *Registry) knows(streamID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[streamID]
	return ok
}

// persistStreams writes the current configuration set. Persistence
// failures are logged; in-memory state stays authoritative and the next
// successful write catches up.
func (r *Registry) persistStreams() {
	if r.persistence == nil {
		return
	}

	r.mu.RLock()
	streams := make([]model.Stream, 0, len(r.entries))
	for _, e := range r.entries {
		streams = append(streams, e.sup.Stream())
	}
	r.mu.RUnlock()

	sort.Slice(streams, func(i, j int) bool {
		return streams[i].CreatedAt.Before(streams[j].CreatedAt)
	})

	if err := r.persistence.Save(streams); err != nil {
		r.logger.Error("streams_persist_failed", "error", err)
	}
}

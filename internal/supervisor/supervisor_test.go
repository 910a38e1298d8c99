package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/randomizedcoder/go-hls-streamwatch/internal/health"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/incident"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/model"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/store"
)

// =============================================================================
// Fake prober
// =============================================================================

// fakeProber serves canned manifests and segment outcomes.
type fakeProber struct {
	mu sync.Mutex

	// manifestBody maps URL -> body; missing URLs return a 503 outcome.
	manifestBody map[string]string

	// segmentOutcome is applied to every segment probe.
	segmentOutcome model.Outcome
	segmentTTFB    float64
	segmentTotalMS float64

	// hang blocks probes until the context is cancelled.
	hang bool

	manifestProbes atomic.Int64
	segmentProbes  atomic.Int64
	segmentURLs    []string
}

func (f *fakeProber) Manifest(ctx context.Context, url string) (model.MetricSample, []byte) {
	f.manifestProbes.Add(1)
	sample := model.MetricSample{
		Timestamp: time.Now(),
		Kind:      model.SampleManifest,
		URL:       url,
		TTFBMS:    20,
		TotalMS:   40,
	}

	if f.hang {
		<-ctx.Done()
		sample.Outcome = model.Outcome{Kind: model.OutcomeTimeout}
		return sample, nil
	}

	f.mu.Lock()
	body, ok := f.manifestBody[url]
	f.mu.Unlock()
	if !ok {
		sample.Outcome = model.Outcome{Kind: model.OutcomeHTTPError, HTTPStatus: 503}
		sample.TTFBMS = 0
		return sample, nil
	}
	sample.Outcome = model.Outcome{Kind: model.OutcomeOK}
	sample.Bytes = int64(len(body))
	return sample, []byte(body)
}

func (f *fakeProber) Segment(ctx context.Context, url string, declaredMS float64) model.MetricSample {
	f.segmentProbes.Add(1)
	f.mu.Lock()
	f.segmentURLs = append(f.segmentURLs, url)
	outcome := f.segmentOutcome
	ttfb := f.segmentTTFB
	total := f.segmentTotalMS
	f.mu.Unlock()

	if f.hang {
		<-ctx.Done()
		return model.MetricSample{
			Timestamp: time.Now(),
			Kind:      model.SampleSegment,
			URL:       url,
			Outcome:   model.Outcome{Kind: model.OutcomeTimeout},
		}
	}

	sample := model.MetricSample{
		Timestamp:          time.Now(),
		Kind:               model.SampleSegment,
		URL:                url,
		Outcome:            outcome,
		TTFBMS:             ttfb,
		TotalMS:            total,
		DeclaredDurationMS: declaredMS,
		Bytes:              1 << 20,
	}
	if sample.HasRatio() {
		sample.DownloadRatio = sample.TotalMS / sample.DeclaredDurationMS
	}
	return sample
}

func (f *fakeProber) setManifest(url, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.manifestBody == nil {
		f.manifestBody = make(map[string]string)
	}
	f.manifestBody[url] = body
}

func (f *fakeProber) probedSegments() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.segmentURLs))
	copy(out, f.segmentURLs)
	return out
}

// =============================================================================
// Helpers
// =============================================================================

const mediaURL = "http://origin.test/live/playlist.m3u8"

func livePlaylist(firstSeq int) string {
	return fmt.Sprintf(`#EXTM3U
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:%d
#EXTINF:6.0,
seg%d.ts
#EXTINF:6.0,
seg%d.ts
#EXTINF:6.0,
seg%d.ts
`, firstSeq, firstSeq, firstSeq+1, firstSeq+2)
}

func testSupervisor(t *testing.T, prober Prober) (*Supervisor, *store.Store, *incident.Manager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(256)
	st.Register("s1")

	incidents := incident.New(incident.Config{
		YellowPersistence: 60 * time.Second,
		ResolveHold:       30 * time.Second,
		HistoryRetention:  10,
		TimelineCap:       100,
	}, logger, nil)

	sup := New(Config{
		Stream: model.Stream{
			ID:          "s1",
			Name:        "test stream",
			ManifestURL: mediaURL,
			CreatedAt:   time.Now(),
		},
		PollInterval:    20 * time.Millisecond,
		WindowShort:     time.Minute,
		ThumbnailEveryK: 0,
		Thresholds: health.Thresholds{
			Window:               time.Minute,
			TTFBYellowMS:         500,
			RatioYellow:          0.9,
			RedConsecutiveErrors: 3,
			RedErrRate:           0.5,
			FlapWindow:           30 * time.Second,
			ManifestWindow:       30 * time.Second,
			ManifestMinAttempts:  2,
		},
		Backoff:   DefaultBackoffConfig(),
		Prober:    prober,
		Store:     st,
		Incidents: incidents,
		Logger:    logger,
	})
	return sup, st, incidents
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timeout waiting for: " + msg)
}

// =============================================================================
// Tests
// =============================================================================

func TestSupervisorHealthyLoop(t *testing.T) {
	prober := &fakeProber{
		segmentOutcome: model.Outcome{Kind: model.OutcomeOK},
		segmentTTFB:    100,
		segmentTotalMS: 300,
	}
	prober.setManifest(mediaURL, livePlaylist(100))

	sup, st, incidents := testSupervisor(t, prober)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Run(ctx)
	}()

	waitFor(t, 2*time.Second, func() bool {
		return st.SampleCount("s1") >= 4
	}, "samples to accumulate")

	if sup.State() != StateRunning {
		t.Errorf("state = %v, want running", sup.State())
	}

	snap := sup.Snapshot()
	if snap.State != model.HealthGreen {
		t.Errorf("health = %v (%s), want green", snap.State, snap.Reason)
	}
	if _, ok := incidents.Active("s1"); ok {
		t.Error("no incident expected in steady state")
	}

	// The second-most-recent segment is chosen first.
	segs := prober.probedSegments()
	if len(segs) == 0 || segs[0] != "http://origin.test/live/seg101.ts" {
		t.Errorf("first probed segment = %v, want seg101.ts", segs)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop")
	}
	if sup.State() != StateStopped {
		t.Errorf("state after stop = %v", sup.State())
	}
}

func TestSupervisorSegmentDedupe(t *testing.T) {
	prober := &fakeProber{
		segmentOutcome: model.Outcome{Kind: model.OutcomeOK},
		segmentTTFB:    100,
		segmentTotalMS: 300,
	}
	prober.setManifest(mediaURL, livePlaylist(100))

	sup, _, _ := testSupervisor(t, prober)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	// With a static playlist both candidates are eventually consumed,
	// after which no further segment probes happen.
	waitFor(t, 2*time.Second, func() bool {
		return prober.manifestProbes.Load() >= 5
	}, "several manifest rounds")

	segs := prober.probedSegments()
	if len(segs) != 2 {
		t.Fatalf("probed segments = %v, want exactly the two fresh candidates", segs)
	}
	if segs[0] == segs[1] {
		t.Error("same segment probed twice")
	}
}

func TestSupervisorMasterDrillDown(t *testing.T) {
	const masterURL = "http://origin.test/live/master.m3u8"
	master := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=500000
low/playlist.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=4000000
high/playlist.m3u8
`
	prober := &fakeProber{
		segmentOutcome: model.Outcome{Kind: model.OutcomeOK},
		segmentTTFB:    100,
		segmentTotalMS: 300,
	}
	prober.setManifest(masterURL, master)
	prober.setManifest("http://origin.test/live/high/playlist.m3u8", livePlaylist(7))

	sup, _, _ := testSupervisor(t, prober)
	sup.cfg.Stream.ManifestURL = masterURL

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	// Tick 1 probes the master and selects the highest-bandwidth
	// variant; tick 2 probes the media playlist and a segment from it.
	waitFor(t, 2*time.Second, func() bool {
		return prober.segmentProbes.Load() >= 1
	}, "segment probe via selected variant")

	segs := prober.probedSegments()
	if segs[0] != "http://origin.test/live/high/seg8.ts" {
		t.Errorf("segment = %q, want one from the high-bandwidth variant", segs[0])
	}
}

func TestSupervisorManifestOutageGoesRed(t *testing.T) {
	prober := &fakeProber{} // no manifests configured: every probe 503s

	sup, _, incidents := testSupervisor(t, prober)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	waitFor(t, 2*time.Second, func() bool {
		return sup.Snapshot().State == model.HealthRed
	}, "health to reach RED")

	waitFor(t, 2*time.Second, func() bool {
		_, ok := incidents.Active("s1")
		return ok
	}, "incident to open")

	inc, _ := incidents.Active("s1")
	if inc.Status != model.IncidentOpen {
		t.Errorf("incident status = %v", inc.Status)
	}
}

func TestSupervisorParseErrorRecorded(t *testing.T) {
	prober := &fakeProber{}
	prober.setManifest(mediaURL, "<html>not a playlist</html>")

	sup, st, _ := testSupervisor(t, prober)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	waitFor(t, 2*time.Second, func() bool {
		return st.SampleCount("s1") >= 1
	}, "first sample")

	window := st.Window("s1", time.Now(), time.Minute)
	if len(window) == 0 {
		t.Fatal("no samples")
	}
	if window[0].Outcome.Kind != model.OutcomeParseError {
		t.Errorf("outcome = %v, want parse_error", window[0].Outcome)
	}
}

func TestSupervisorCancellationBound(t *testing.T) {
	prober := &fakeProber{hang: true}

	sup, _, _ := testSupervisor(t, prober)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Run(ctx)
	}()

	// Let the loop enter the hung probe, then cancel.
	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not surrender after cancel")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("stop took %v", elapsed)
	}
	if sup.State() != StateStopped {
		t.Errorf("state = %v", sup.State())
	}
}

func TestSupervisorEmitsEvents(t *testing.T) {
	prober := &fakeProber{
		segmentOutcome: model.Outcome{Kind: model.OutcomeOK},
		segmentTTFB:    100,
		segmentTotalMS: 300,
	}
	prober.setManifest(mediaURL, livePlaylist(100))

	sup, _, _ := testSupervisor(t, prober)

	var mu sync.Mutex
	var events []model.Event
	sup.cfg.Callbacks.OnEvent = func(ev model.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) >= 2
	}, "sample events")

	mu.Lock()
	defer mu.Unlock()
	for _, ev := range events {
		if ev.StreamID != "s1" {
			t.Errorf("event stream_id = %q", ev.StreamID)
		}
		if ev.Event != model.EventTypeSampleAppended && ev.Event != model.EventTypeHealthChanged {
			t.Errorf("unexpected event type %q", ev.Event)
		}
	}
}

func TestBackoffSequence(t *testing.T) {
	b := NewBackoff(DefaultBackoffConfig())

	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("attempt %d = %v, want %v", i, got, w)
		}
	}

	b.Reset()
	if got := b.Calculate(); got != time.Second {
		t.Errorf("after reset = %v, want 1s", got)
	}
}

func TestStateStrings(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateInit, "init"},
		{StateRunning, "running"},
		{StateBackoff, "backoff"},
		{StateStopping, "stopping"},
		{StateStopped, "stopped"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
	if StateStopped.IsActive() || !StateRunning.IsActive() {
		t.Error("IsActive misclassifies states")
	}
	if !StateStopped.IsTerminal() {
		t.Error("stopped should be terminal")
	}
}

package health

import (
	"time"

	"github.com/randomizedcoder/go-hls-streamwatch/internal/model"
)

// Tracker detects state transitions across successive evaluations for a
// single stream and applies flap suppression.
//
// A GREEN→YELLOW leg is held pending for the flap window: if the stream
// returns to GREEN inside that window, neither leg is reported; if the
// YELLOW persists past the window or escalates to RED, the held
// transition is released (with its original timestamp) ahead of any
// later one. All other transitions are reported immediately.
//
// Not safe for concurrent use; each supervisor owns one Tracker.
type Tracker struct {
	th   Thresholds
	prev model.HealthState

	pending   *model.HealthTransition
	pendingAt time.Time
}

// NewTracker creates a Tracker starting from GREEN.
func NewTracker(th Thresholds) *Tracker {
	return &Tracker{th: th, prev: model.HealthGreen}
}

// Observe evaluates the window and returns the snapshot plus any
// transitions to report, oldest first.
func (t *Tracker) Observe(samples []model.MetricSample, now time.Time) (model.HealthSnapshot, []model.HealthTransition) {
	snap := Evaluate(samples, now, t.th)

	var out []model.HealthTransition

	// Release a pending GREEN→YELLOW once it has aged past the flap
	// window, regardless of where the state is heading next.
	if t.pending != nil && now.Sub(t.pendingAt) >= t.th.FlapWindow {
		out = append(out, *t.pending)
		t.pending = nil
	}

	if snap.State == t.prev {
		return snap, out
	}

	tr := model.HealthTransition{
		Timestamp: now,
		From:      t.prev,
		To:        snap.State,
		Reason:    snap.Reason,
	}
	t.prev = snap.State

	switch {
	case tr.From == model.HealthGreen && tr.To == model.HealthYellow:
		// Hold: may be a flap.
		t.pending = &tr
		t.pendingAt = now
	case t.pending != nil && tr.To == model.HealthGreen:
		// Flap collapsed: drop both legs.
		t.pending = nil
	case t.pending != nil:
		// Escalation: release the held leg first.
		out = append(out, *t.pending, tr)
		t.pending = nil
	default:
		out = append(out, tr)
	}

	return snap, out
}

// State returns the last evaluated state.
func (t *Tracker) State() model.HealthState {
	return t.prev
}

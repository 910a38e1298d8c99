package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-hls-streamwatch/internal/model"
)

// TickMsg is sent periodically to refresh the display.
type TickMsg time.Time

// refreshInterval is the dashboard redraw cadence.
const refreshInterval = time.Second

// SnapshotSource provides the data the dashboard renders.
// Implemented by the registry.
type SnapshotSource interface {
	ListStreams() []model.StreamSummary
	ActiveIncidentCount() int
}

// Model represents the TUI state.
type Model struct {
	source     SnapshotSource
	listenAddr string

	streams    []model.StreamSummary
	startTime  time.Time
	lastUpdate time.Time

	width    int
	height   int
	quitting bool
}

// NewModel creates the dashboard model.
func NewModel(source SnapshotSource, listenAddr string) Model {
	return Model{
		source:     source,
		listenAddr: listenAddr,
		startTime:  time.Now(),
	}
}

// Init starts the refresh ticker.
func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		m.streams = m.source.ListStreams()
		m.lastUpdate = time.Time(msg)
		return m, tick()
	}

	return m, nil
}

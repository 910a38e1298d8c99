package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-hls-streamwatch/internal/model"
)

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStreams())
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	title := headerStyle.Render("streamwatch")
	sub := subHeaderStyle.Render(fmt.Sprintf("  %d streams · %d active incidents · up %s",
		len(m.streams),
		m.source.ActiveIncidentCount(),
		formatDuration(time.Since(m.startTime)),
	))
	return title + sub
}

func (m Model) renderStreams() string {
	if len(m.streams) == 0 {
		return tableStyle.Render(mutedStyle.Render("no streams configured; add one via POST /api/streams"))
	}

	var rows []string
	rows = append(rows, mutedStyle.Render(fmt.Sprintf(
		"%-10s %-20s %-8s %-9s %-7s %-5s %s",
		"ID", "NAME", "STATE", "TTFB", "RATIO", "ERRS", "REASON",
	)))

	for _, st := range m.streams {
		reason := st.Health.Reason
		if maxReason := m.width - 66; maxReason > 8 && len(reason) > maxReason {
			reason = reason[:maxReason-1] + "…"
		}

		name := st.Name
		if len(name) > 20 {
			name = name[:19] + "…"
		}

		row := fmt.Sprintf("%-10s %-20s %-17s %-9s %-7s %-5d %s",
			st.ID,
			name,
			stateBadge(st.Health.State), // styled text is wider than it prints
			fmt.Sprintf("%.0fms", st.Health.Stats.AvgTTFBMS),
			fmt.Sprintf("%.2f", st.Health.Stats.AvgDownloadRatio),
			st.Health.Stats.ErrorCount,
			cellStyle.Render(reason),
		)
		if st.HasActiveIncident {
			row += redBadge.Render("  [" + st.ActiveIncidentID + "]")
		}
		rows = append(rows, row)
	}

	return tableStyle.Render(strings.Join(rows, "\n"))
}

func (m Model) renderFooter() string {
	return mutedStyle.Render(fmt.Sprintf("api http://%s · press q to quit", m.listenAddr))
}

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	mi := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, mi, s)
}

// summaryLine is used by tests to check row content without styling.
func summaryLine(st model.StreamSummary) string {
	return fmt.Sprintf("%s %s %s %s", st.ID, st.Name, st.Health.State, st.Health.Reason)
}

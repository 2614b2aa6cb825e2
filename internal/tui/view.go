package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// Playback View
// =============================================================================

// renderPlayback draws the grid, a reverse-video status bar and a key hint.
func (m Model) renderPlayback() string {
	status := statusBarStyle.Width(m.width).Render(truncate(m.status, m.width))
	hint := dimStyle.Render(truncate("d: stats | q: quit", m.width))

	if m.grid == "" {
		return lipgloss.JoinVertical(lipgloss.Left,
			mutedStyle.Render("waiting for first frame..."),
			status,
			hint,
		)
	}
	return m.grid + "\n" + status + "\n" + hint
}

// =============================================================================
// Stats View
// =============================================================================

func (m Model) renderStatsView() string {
	sections := []string{m.renderHeader()}

	if m.snap != nil {
		sections = append(sections,
			m.renderStageStats(),
			m.renderDropStats(),
			m.renderQueueStats(),
			m.renderLatencyStats(),
		)
	} else {
		sections = append(sections, mutedStyle.Render("no stats yet"))
	}

	sections = append(sections, m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	header := fmt.Sprintf(" %s │ %s │ Frames: %s │ Elapsed: %s ",
		m.title,
		GetDropLabel(m.DropRate()),
		formatNumber(m.frames),
		formatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Sections
// =============================================================================

func (m Model) renderStageStats() string {
	s := m.snap
	rows := []string{
		renderStageRow("Decode", s.DecodeFPS, s.Decoded, m.targetFPS),
		renderStageRow("Process", s.ProcessFPS, s.Processed, m.targetFPS),
		renderStageRow("Render", s.RenderFPS, s.Rendered, m.targetFPS),
		RenderKeyValue("Loops", formatNumber(s.Loops)),
	}
	return m.box("Stages", rows)
}

func renderStageRow(label string, fps float64, total int64, target float64) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		GetFPSStyle(fps, target).Width(12).Render(formatFPS(fps)),
		mutedStyle.Render(" total "),
		valueStyle.Render(formatNumber(total)),
	)
}

func (m Model) renderDropStats() string {
	s := m.snap
	rate := m.DropRate()
	rows := []string{
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Dropped:"),
			GetDropStyle(rate).Render(fmt.Sprintf("%s (%s)", formatNumber(s.Dropped), formatPercent(rate))),
		),
		RenderKeyValue("  at decode", formatNumber(s.DroppedDecode)),
		RenderKeyValue("  at process", formatNumber(s.DroppedProcess)),
		RenderKeyValue("Pacing misses", formatNumber(s.PacingMisses)),
		RenderKeyValue("Decode retries", formatNumber(s.DecodeRetries)),
	}
	return m.box("Drops", rows)
}

func (m Model) renderQueueStats() string {
	barWidth := max(m.width/3, 10)
	rows := []string{
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Decode queue:"),
			RenderQueueBar(m.depths.DecodeLen, m.depths.DecodeCap, barWidth),
		),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Render queue:"),
			RenderQueueBar(m.depths.RenderLen, m.depths.RenderCap, barWidth),
		),
	}
	return m.box("Queues", rows)
}

func (m Model) renderLatencyStats() string {
	s := m.snap
	rows := []string{
		RenderKeyValue("P50", formatMs(msOf(s.LatencyP50))),
		RenderKeyValue("P95", formatMs(msOf(s.LatencyP95))),
		RenderKeyValue("Average", formatMs(msOf(s.LatencyAvg))),
	}
	return m.box("Latency (decode to draw)", rows)
}

func (m Model) box(title string, rows []string) string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render(title)}, rows...)...,
	)
	return boxStyle.Width(max(m.width-2, 20)).Render(content)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"q: quit",
		"d: back to video",
	}
	return footerStyle.Render(dimStyle.Render(strings.Join(shortcuts, " │ ")))
}

func msOf(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

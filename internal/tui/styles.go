// Package tui plays video inside a Bubble Tea program.
//
// The video grid fills the screen above a Lipgloss status bar. Pressing d
// swaps the video for a stats panel showing:
// - Stage rates and frame counters
// - Drops by stage and pacing misses
// - Queue occupancy
// - Decode-to-draw latency
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan

	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red

	colorText      = lipgloss.Color("#E5E7EB")
	colorTextMuted = lipgloss.Color("#9CA3AF")
	colorTextDim   = lipgloss.Color("#6B7280")
	colorBorder    = lipgloss.Color("#374151")
)

// =============================================================================
// Base Styles
// =============================================================================

var (
	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorPrimary).
			Bold(true).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Reverse(true)

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			MarginTop(1)
)

// =============================================================================
// Value Styles
// =============================================================================

var (
	valueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	valueGoodStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	valueWarnStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	valueBadStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(20)

	queueFullStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	queueEmptyStyle = lipgloss.NewStyle().
			Foreground(colorBorder)
)

// =============================================================================
// Drop Status Indicator
// =============================================================================

// DropStatus grades playback health by the share of decoded frames dropped.
type DropStatus int

const (
	DropStatusOK DropStatus = iota
	DropStatusDegraded
	DropStatusSeverelyDegraded
)

// GetDropStatus returns the status for a drop rate in [0, 1].
func GetDropStatus(dropRate float64) DropStatus {
	switch {
	case dropRate > 0.10:
		return DropStatusSeverelyDegraded
	case dropRate > 0.0:
		return DropStatusDegraded
	default:
		return DropStatusOK
	}
}

// GetDropStyle returns the value style for a drop rate.
func GetDropStyle(dropRate float64) lipgloss.Style {
	switch GetDropStatus(dropRate) {
	case DropStatusSeverelyDegraded:
		return valueBadStyle
	case DropStatusDegraded:
		return valueWarnStyle
	default:
		return valueGoodStyle
	}
}

// GetDropLabel returns a styled health label for the header.
func GetDropLabel(dropRate float64) string {
	switch GetDropStatus(dropRate) {
	case DropStatusSeverelyDegraded:
		return valueBadStyle.Render("● Dropping")
	case DropStatusDegraded:
		return valueWarnStyle.Render("● Some drops")
	default:
		return valueGoodStyle.Render("● Smooth")
	}
}

// GetFPSStyle colors a stage rate against the source's nominal rate.
func GetFPSStyle(fps, target float64) lipgloss.Style {
	if target <= 0 {
		return valueStyle
	}
	switch ratio := fps / target; {
	case ratio >= 0.95:
		return valueGoodStyle
	case ratio >= 0.8:
		return valueWarnStyle
	default:
		return valueBadStyle
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// RenderKeyValue renders a label-value pair.
func RenderKeyValue(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// RenderQueueBar renders queue occupancy as a bar of width cells.
func RenderQueueBar(length, capacity, width int) string {
	if width < 4 {
		width = 4
	}
	filled := 0
	if capacity > 0 {
		filled = length * width / capacity
	}
	filled = min(max(filled, 0), width)

	bar := queueFullStyle.Render(strings.Repeat("█", filled)) +
		queueEmptyStyle.Render(strings.Repeat("░", width-filled))
	return bar + mutedStyle.Render(fmt.Sprintf(" %d/%d", length, capacity))
}

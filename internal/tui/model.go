package tui

import (
	"fmt"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/pipeline"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/stats"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg refreshes the stats panel.
type TickMsg time.Time

// FrameMsg carries one rendered frame and its status line.
type FrameMsg struct {
	Grid   string
	Status string
}

// QuitMsg asks the program to exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// StatsSource provides live pipeline telemetry. *pipeline.Pipeline
// implements it.
type StatsSource interface {
	Stats() *stats.PipelineStats
	QueueDepths() pipeline.QueueDepths
}

// shared is state the model and the Display both touch from different
// goroutines.
type shared struct {
	quit atomic.Bool
	cols atomic.Int32
	rows atomic.Int32
}

// Model is the Bubble Tea model for playback.
type Model struct {
	title     string
	targetFPS float64

	grid   string
	status string
	frames int64

	snap      *stats.Snapshot
	depths    pipeline.QueueDepths
	startTime time.Time

	detailedView bool
	width        int
	height       int

	statsSource StatsSource
	shared      *shared
	quitting    bool
}

// Config holds TUI model configuration.
type Config struct {
	Title       string
	TargetFPS   float64
	StatsSource StatsSource
}

// New creates a model with its own quit flag.
func New(cfg Config) Model {
	return newModel(cfg, &shared{})
}

func newModel(cfg Config, sh *shared) Model {
	return Model{
		title:       cfg.Title,
		targetFPS:   cfg.TargetFPS,
		statsSource: cfg.StatsSource,
		shared:      sh,
		startTime:   time.Now(),
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init starts the stats refresh tick. The alternate screen is requested
// by the program options.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "Q", "ctrl+c", "esc":
			m.shared.quit.Store(true)
			m.quitting = true
			return m, tea.Quit
		case "d":
			m.detailedView = !m.detailedView
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.shared.cols.Store(int32(msg.Width))
		m.shared.rows.Store(int32(msg.Height))
		return m, nil

	case FrameMsg:
		m.grid = msg.Grid
		m.status = msg.Status
		m.frames++
		return m, nil

	case TickMsg:
		m.refresh()
		return m, tickCmd()

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) refresh() {
	if m.statsSource == nil {
		return
	}
	if ps := m.statsSource.Stats(); ps != nil {
		snap := ps.Snapshot()
		m.snap = &snap
	}
	m.depths = m.statsSource.QueueDepths()
}

// View renders either the video or the stats panel.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.detailedView {
		return m.renderStatsView()
	}
	return m.renderPlayback()
}

// =============================================================================
// Commands
// =============================================================================

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the model was created.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Frames returns the number of frames received.
func (m Model) Frames() int64 {
	return m.frames
}

// QuitRequested reports whether the user pressed a quit key.
func (m Model) QuitRequested() bool {
	return m.shared.quit.Load()
}

// DropRate returns dropped over decoded frames.
func (m Model) DropRate() float64 {
	if m.snap == nil || m.snap.Decoded == 0 {
		return 0
	}
	return float64(m.snap.Dropped) / float64(m.snap.Decoded)
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatNumber formats a number with K/M suffixes.
func formatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// formatFPS formats a stage rate.
func formatFPS(fps float64) string {
	return fmt.Sprintf("%.1f fps", fps)
}

// formatPercent formats a ratio as a percentage.
func formatPercent(value float64) string {
	return fmt.Sprintf("%.1f%%", value*100)
}

// formatMs formats milliseconds, with a decimal below 10ms.
func formatMs(ms float64) string {
	if ms < 10 {
		return fmt.Sprintf("%.1f ms", ms)
	}
	return fmt.Sprintf("%.0f ms", ms)
}

// truncate cuts s to at most n bytes.
func truncate(s string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(s) > n {
		return s[:n]
	}
	return s
}

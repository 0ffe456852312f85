package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-docker-machine/internal/controller"
	"github.com/randomizedcoder/go-docker-machine/internal/stream"
	"github.com/randomizedcoder/go-docker-machine/internal/task"
)

// tailLines is how many output lines per stream the dashboard shows.
const tailLines = 8

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// DoneMsg reports that the scheduled work finished, with the latched error
// if it halted.
type DoneMsg struct {
	Err error
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Source is the machine state the dashboard renders.
// *machine.Machine and *controller.Controller implement it.
type Source interface {
	Snapshot() controller.Snapshot
	Records() []task.Record
	Pending() []task.Record
	ClearErrors()
	Stdout() *stream.Queue
	Stderr() *stream.Queue
}

// Config holds TUI configuration.
type Config struct {
	Source  Source
	APIAddr string
}

// Model represents the TUI state.
type Model struct {
	source  Source
	apiAddr string

	// Current state
	snapshot    controller.Snapshot
	records     []task.Record
	pending     []task.Record
	stdout      []string
	stderr      []string
	startTime   time.Time
	lastUpdate  time.Time
	showHistory bool
	done        bool
	doneErr     error

	width  int
	height int

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	m := Model{
		source:     cfg.Source,
		apiAddr:    cfg.APIAddr,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
		width:      80,
		height:     24,
	}
	m.refresh()
	return m
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "h":
			m.showHistory = !m.showHistory
			return m, nil
		case "c":
			if m.source != nil && m.snapshot.Halted {
				m.source.ClearErrors()
				m.done = false
				m.doneErr = nil
				m.refresh()
			}
			return m, nil
		case "r":
			m.refresh()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.refresh()
		return m, tickCmd()

	case DoneMsg:
		m.done = true
		m.doneErr = msg.Err
		m.refresh()
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.showHistory {
		return m.renderHistoryView()
	}
	return m.renderSummaryView()
}

func (m *Model) refresh() {
	m.lastUpdate = time.Now()
	if m.source == nil {
		return
	}
	m.snapshot = m.source.Snapshot()
	m.records = m.source.Records()
	m.pending = m.source.Pending()
	m.stdout = m.source.Stdout().Tail(tailLines)
	m.stderr = m.source.Stderr().Tail(tailLines)
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Finished returns how many tasks reached a terminal state.
func (m Model) Finished() int {
	return len(m.records)
}

// Total returns finished + running + queued tasks.
func (m Model) Total() int {
	total := len(m.records) + len(m.pending)
	if m.snapshot.Current != nil {
		total++
	}
	return total
}

// Progress returns the share of scheduled tasks that finished (0.0 to 1.0).
func (m Model) Progress() float64 {
	if m.Total() == 0 {
		return 0
	}
	return float64(m.Finished()) / float64(m.Total())
}

// =============================================================================
// Helper for external use
// =============================================================================

// Waiter reports the outcome of the scheduled work.
// *machine.Machine and *controller.Controller implement it.
type Waiter interface {
	Wait(ctx context.Context) error
	WaitCleared(ctx context.Context) error
}

// Follow sends a DoneMsg for every outcome of w until the work finishes
// cleanly or ctx is done. After a latched error it waits for the error to be
// cleared (the dashboard's clear key) and follows the resumed queue.
// send is usually (*tea.Program).Send.
func Follow(ctx context.Context, w Waiter, send func(tea.Msg)) {
	for {
		err := w.Wait(ctx)
		if ctx.Err() != nil {
			return
		}
		send(DoneMsg{Err: err})
		if err == nil {
			return
		}
		if w.WaitCleared(ctx) != nil {
			return
		}
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
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

// formatTaskDuration formats a task duration compactly: 850ms, 12.3s, 4m05s.
func formatTaskDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}

// truncate shortens s to width runes with an ellipsis.
func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}

func tail[T any](items []T, n int) []T {
	if len(items) > n {
		return items[len(items)-n:]
	}
	return items
}

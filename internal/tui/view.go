package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-docker-machine/internal/task"
)

// maxQueueRows caps the "Up Next" list.
const maxQueueRows = 5

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the main dashboard.
func (m Model) renderSummaryView() string {
	sections := []string{
		m.renderHeader(),
		m.renderMachine(),
		m.renderProgress(),
		m.renderCurrent(),
	}

	if len(m.pending) > 0 {
		sections = append(sections, m.renderQueue())
	}
	if len(m.stdout) > 0 || len(m.stderr) > 0 {
		sections = append(sections, m.renderOutput())
	}
	if m.snapshot.Halted {
		sections = append(sections, m.renderError())
	}

	sections = append(sections, m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderHistoryView renders the finished task table.
func (m Model) renderHistoryView() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderHistoryTable(),
		m.renderFooter(),
	)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" go-docker-machine │ %s │ %s │ Tasks: %d/%d │ Elapsed: %s ",
		m.snapshot.Name,
		GetWorkerLabel(m.snapshot),
		m.Finished(),
		m.Total(),
		formatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Machine
// =============================================================================

func (m Model) renderMachine() string {
	ip := m.snapshot.IP
	if ip == "" {
		ip = "-"
	}
	status := m.snapshot.Status
	if status == "" {
		status = "unknown"
	}

	statusStyle := valueWarnStyle
	if status == "Running" {
		statusStyle = valueGoodStyle
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Machine"),
		RenderKeyValue("IP", ip),
		lipgloss.JoinHorizontal(lipgloss.Left, labelStyle.Render("Status:"), statusStyle.Render(status)),
		RenderKeyValue("Directory", truncate(m.snapshot.Cwd, m.width-26)),
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Progress
// =============================================================================

func (m Model) renderProgress() string {
	barWidth := m.width - 30
	if barWidth < 20 {
		barWidth = 20
	}

	var status string
	switch {
	case m.snapshot.Halted:
		status = statusError.Render(fmt.Sprintf("✗ Halted with %d queued", len(m.pending)))
	case m.done || (m.Total() > 0 && !m.snapshot.Busy):
		status = statusOK.Render("✓ All tasks finished")
	case m.Total() == 0:
		status = mutedStyle.Render("Nothing scheduled")
	default:
		status = statusInfo.Render(fmt.Sprintf("Running... %d/%d", m.Finished(), m.Total()))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Progress"),
		RenderProgressBar(m.Progress(), barWidth),
		status,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Current Task
// =============================================================================

func (m Model) renderCurrent() string {
	rows := []string{sectionHeaderStyle.Render("Current Task")}

	cur := m.snapshot.Current
	if cur == nil {
		rows = append(rows, dimStyle.Render("(none)"))
		return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	running := time.Duration(0)
	if !cur.Started.IsZero() {
		running = m.lastUpdate.Sub(cur.Started)
	}

	rows = append(rows,
		RenderKeyValue("Task", cur.Name),
		RenderKeyValue("Command", truncate(commandLine(*cur), m.width-26)),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Running for:"),
			valueStyle.Render(formatTaskDuration(running)),
		),
	)
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Queue
// =============================================================================

func (m Model) renderQueue() string {
	rows := []string{sectionHeaderStyle.Render(fmt.Sprintf("Up Next (%d)", len(m.pending)))}

	for i, rec := range m.pending {
		if i == maxQueueRows {
			rows = append(rows, dimStyle.Render(fmt.Sprintf("  … %d more", len(m.pending)-maxQueueRows)))
			break
		}
		line := fmt.Sprintf("%2d. %-20s %s", i+1, rec.Name, truncate(commandLine(rec), m.width-34))
		rows = append(rows, rowStyle(i).Render(line))
	}
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Output
// =============================================================================

func (m Model) renderOutput() string {
	rows := []string{sectionHeaderStyle.Render("Output")}

	for _, line := range m.stdout {
		rows = append(rows, baseStyle.Render(truncate(line, m.width-6)))
	}
	for _, line := range m.stderr {
		rows = append(rows, valueWarnStyle.Render(truncate(line, m.width-6)))
	}
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Error
// =============================================================================

func (m Model) renderError() string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Error"),
		valueBadStyle.Render(wrap(m.snapshot.LastError, m.width-6)),
		mutedStyle.Render("Press c to clear the error and resume the queue"),
	)
	return boxStyle.Width(m.width - 2).BorderForeground(colorError).Render(content)
}

// =============================================================================
// History
// =============================================================================

func (m Model) renderHistoryTable() string {
	header := tableHeaderStyle.Render(fmt.Sprintf("%-22s %-10s %5s %9s  %s", "Task", "State", "Exit", "Duration", "Command"))
	rows := []string{sectionHeaderStyle.Render(fmt.Sprintf("History (%d)", len(m.records))), header}

	if len(m.records) == 0 {
		rows = append(rows, dimStyle.Render("(no finished tasks)"))
	}

	// Newest last; keep what fits on screen
	visible := tail(m.records, max(m.height-10, 5))
	for i, rec := range visible {
		state := GetStateStyle(rec.State).Render(fmt.Sprintf("%-10s", rec.State))
		exit := GetExitCodeStyle(rec.ExitCode).Render(fmt.Sprintf("%5d", rec.ExitCode))
		line := lipgloss.JoinHorizontal(lipgloss.Left,
			tableCellStyle.Render(fmt.Sprintf("%-20s", truncate(rec.Name, 20))),
			state, " ",
			exit, " ",
			unitStyle.Render(fmt.Sprintf("%9s", formatTaskDuration(rec.Duration()))), "  ",
			rowStyle(i).Render(truncate(commandLine(rec), m.width-56)),
		)
		rows = append(rows, line)
	}
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	keys := "q quit • h history • r refresh"
	if m.snapshot.Halted {
		keys += " • c clear error"
	}
	if m.apiAddr != "" {
		keys += fmt.Sprintf(" │ API: http://%s", m.apiAddr)
	}
	updated := fmt.Sprintf(" │ updated %s", m.lastUpdate.Format("15:04:05"))
	return footerStyle.Render(keys + updated)
}

// =============================================================================
// Helpers
// =============================================================================

func commandLine(rec task.Record) string {
	parts := []string{rec.Bin}
	if rec.Cmd != "" {
		parts = append(parts, rec.Cmd)
	}
	return strings.Join(append(parts, rec.Args...), " ")
}

func rowStyle(i int) lipgloss.Style {
	if i%2 == 0 {
		return tableRowEvenStyle
	}
	return tableRowOddStyle
}

// wrap breaks s into lines of at most width runes.
func wrap(s string, width int) string {
	if width <= 0 {
		return s
	}
	var lines []string
	r := []rune(s)
	for len(r) > width {
		lines = append(lines, string(r[:width]))
		r = r[width:]
	}
	return strings.Join(append(lines, string(r)), "\n")
}

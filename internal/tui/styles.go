// Package tui provides a live terminal dashboard for one docker machine.
//
// It is built on Bubble Tea and styled with Lipgloss. The dashboard shows
// the running task, the queue, recent process output and the latched error,
// and lets the operator clear the error to resume.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-docker-machine/internal/controller"
	"github.com/randomizedcoder/go-docker-machine/internal/task"
)

// =============================================================================
// Palette
// =============================================================================

var (
	colorBrand  = lipgloss.Color("#1D63ED") // docker blue
	colorAccent = lipgloss.Color("#2AC3DE")

	colorSuccess = lipgloss.Color("#22C55E")
	colorWarning = lipgloss.Color("#EAB308")
	colorError   = lipgloss.Color("#F43F5E")
	colorInfo    = lipgloss.Color("#60A5FA")

	colorText      = lipgloss.Color("#F1F5F9")
	colorTextMuted = lipgloss.Color("#94A3B8")
	colorTextDim   = lipgloss.Color("#64748B")
	colorBorder    = lipgloss.Color("#334155")
)

// =============================================================================
// Styles
// =============================================================================

func fg(c lipgloss.TerminalColor) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

var (
	baseStyle  = fg(colorText)
	mutedStyle = fg(colorTextMuted)
	dimStyle   = fg(colorTextDim)
	unitStyle  = dimStyle

	statusOK    = fg(colorSuccess).Bold(true)
	statusWarn  = fg(colorWarning).Bold(true)
	statusError = fg(colorError).Bold(true)
	statusInfo  = fg(colorInfo).Bold(true)

	valueStyle     = baseStyle.Bold(true)
	valueGoodStyle = statusOK
	valueWarnStyle = statusWarn
	valueBadStyle  = statusError
	labelStyle     = mutedStyle.Width(20)
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorBrand).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	// Underlined accent title at the top of every box
	sectionHeaderStyle = fg(colorAccent).
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder)

	footerStyle = mutedStyle.MarginTop(1)

	tableHeaderStyle  = fg(colorAccent).Bold(true)
	tableCellStyle    = baseStyle.PaddingRight(2)
	tableRowEvenStyle = baseStyle
	tableRowOddStyle  = mutedStyle

	barFilledStyle  = fg(colorBrand)
	barEmptyStyle   = fg(colorBorder)
	barPercentStyle = valueStyle
)

// =============================================================================
// Worker status
// =============================================================================

// WorkerStatus is the controller's queue-level state.
type WorkerStatus int

const (
	WorkerIdle WorkerStatus = iota
	WorkerBusy
	WorkerHalted
)

// GetWorkerStatus derives the status from a snapshot. Halted wins over busy.
func GetWorkerStatus(s controller.Snapshot) WorkerStatus {
	switch {
	case s.Halted:
		return WorkerHalted
	case s.Busy:
		return WorkerBusy
	default:
		return WorkerIdle
	}
}

// GetWorkerLabel returns a styled label for the snapshot.
func GetWorkerLabel(s controller.Snapshot) string {
	switch GetWorkerStatus(s) {
	case WorkerHalted:
		return statusError.Render("● Halted")
	case WorkerBusy:
		return statusInfo.Render("● Busy")
	default:
		return statusOK.Render("● Idle")
	}
}

// =============================================================================
// Task state
// =============================================================================

// GetStateStyle returns a style for a task state.
func GetStateStyle(state task.State) lipgloss.Style {
	switch state {
	case task.StateSucceeded:
		return valueGoodStyle
	case task.StateRunning:
		return statusInfo
	case task.StateCancelled:
		return statusWarn
	case task.StateFailed, task.StateTimedOut:
		return valueBadStyle
	default:
		return mutedStyle
	}
}

// GetStateLabel returns a styled state name.
func GetStateLabel(state task.State) string {
	return GetStateStyle(state).Render(state.String())
}

// GetExitCodeStyle returns a style for an exit code: unknown, clean or not.
func GetExitCodeStyle(code int) lipgloss.Style {
	switch {
	case code < 0:
		return dimStyle
	case code == 0:
		return valueGoodStyle
	default:
		return valueBadStyle
	}
}

// =============================================================================
// Rendering helpers
// =============================================================================

// RenderKeyValue renders "label: value" with a fixed-width label column.
func RenderKeyValue(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// RenderProgressBar renders a bar of at least 10 cells followed by the
// percentage. progress is clamped to [0, 1].
func RenderProgressBar(progress float64, width int) string {
	width = max(width, 10)
	progress = min(max(progress, 0), 1)
	filled := int(progress * float64(width))

	return barFilledStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", width-filled)) +
		barPercentStyle.Render(fmt.Sprintf(" %3.0f%%", progress*100))
}

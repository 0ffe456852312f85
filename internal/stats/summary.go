// Package stats aggregates finished task records for the exit summary.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/randomizedcoder/go-docker-machine/internal/task"
)

const (
	heavyRule = "═══════════════════════════════════════════════════════════════════════════════\n"
	lightRule = "───────────────────────────────────────────────────────────────────────────────\n"
)

// RunStats is the aggregate of one run's task records.
type RunStats struct {
	Tasks     int
	States    map[string]int
	ExitCodes map[int]int

	// Failures lists records that did not succeed, in run order.
	Failures []task.Record

	Slowest   task.Record
	TotalTime time.Duration
	P50       time.Duration
	P95       time.Duration
	P99       time.Duration
}

// Summarize aggregates records. Exit codes below zero (never spawned) are
// not counted.
func Summarize(records []task.Record) *RunStats {
	s := &RunStats{
		Tasks:     len(records),
		States:    make(map[string]int),
		ExitCodes: make(map[int]int),
	}

	digest := NewDurationDigest()
	for _, rec := range records {
		s.States[rec.State.String()]++
		if rec.ExitCode >= 0 {
			s.ExitCodes[rec.ExitCode]++
		}
		if rec.State != task.StateSucceeded {
			s.Failures = append(s.Failures, rec)
		}

		d := rec.Duration()
		if d <= 0 {
			continue
		}
		digest.Add(d)
		s.TotalTime += d
		if d > s.Slowest.Duration() {
			s.Slowest = rec
		}
	}

	s.P50 = digest.Quantile(0.50)
	s.P95 = digest.Quantile(0.95)
	s.P99 = digest.Quantile(0.99)
	return s
}

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	Machine string
	IP      string
	Status  string

	// Duration is the total run duration
	Duration time.Duration

	// PeakQueue is the deepest the task queue got (from metrics.Collector)
	PeakQueue int

	// OutputLines is lines read per stream (from metrics.Collector)
	OutputLines map[string]int64

	// LastError is the latched error at exit, if any
	LastError error

	// APIAddr is the HTTP API address
	APIAddr string
}

// FormatExitSummary formats run statistics for display at program exit.
func FormatExitSummary(stats *RunStats, cfg SummaryConfig) string {
	if stats == nil {
		stats = Summarize(nil)
	}

	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(heavyRule)
	b.WriteString("                         go-docker-machine Exit Summary\n")
	b.WriteString(heavyRule + "\n")

	fmt.Fprintf(&b, "Machine:                %s\n", orDash(cfg.Machine))
	fmt.Fprintf(&b, "IP:                     %s\n", orDash(cfg.IP))
	fmt.Fprintf(&b, "Status:                 %s\n", orDash(cfg.Status))
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Tasks Finished:         %d\n", stats.Tasks)
	if cfg.PeakQueue > 0 {
		fmt.Fprintf(&b, "Peak Queue Depth:       %d\n", cfg.PeakQueue)
	}
	b.WriteString("\n")

	if len(stats.States) > 0 {
		writeSection(&b, "Task States")
		states := make([]string, 0, len(stats.States))
		for state := range stats.States {
			states = append(states, state)
		}
		sort.Strings(states)
		for _, state := range states {
			fmt.Fprintf(&b, "  %-20s %d\n", state, stats.States[state])
		}
		b.WriteString("\n")
	}

	if stats.P50 > 0 || stats.P95 > 0 {
		writeSection(&b, "Task Duration")
		fmt.Fprintf(&b, "  P50 (median):         %s\n", FormatMs(stats.P50))
		fmt.Fprintf(&b, "  P95:                  %s\n", FormatMs(stats.P95))
		fmt.Fprintf(&b, "  P99:                  %s\n", FormatMs(stats.P99))
		fmt.Fprintf(&b, "  Total:                %s\n", FormatDuration(stats.TotalTime))
		if stats.Slowest.Name != "" {
			fmt.Fprintf(&b, "  Slowest:              %s (%s)\n", stats.Slowest.Name, FormatMs(stats.Slowest.Duration()))
		}
		b.WriteString("\n")
	}

	if len(cfg.OutputLines) > 0 {
		writeSection(&b, "Process Output")
		fmt.Fprintf(&b, "  stdout lines:         %s\n", FormatNumber(cfg.OutputLines["stdout"]))
		fmt.Fprintf(&b, "  stderr lines:         %s\n", FormatNumber(cfg.OutputLines["stderr"]))
		b.WriteString("\n")
	}

	if len(stats.ExitCodes) > 0 {
		writeSection(&b, "Exit Codes")
		codes := make([]int, 0, len(stats.ExitCodes))
		for code := range stats.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			fmt.Fprintf(&b, "  %3d %-16s %d\n", code, exitCodeLabel(code), stats.ExitCodes[code])
		}
		b.WriteString("\n")
	}

	if len(stats.Failures) > 0 || cfg.LastError != nil {
		writeSection(&b, "Errors")
		for _, rec := range stats.Failures {
			fmt.Fprintf(&b, "  %-20s %s (exit %d)\n", rec.Name, rec.State, rec.ExitCode)
		}
		if cfg.LastError != nil {
			fmt.Fprintf(&b, "  Halted on:            %v\n", cfg.LastError)
		}
		b.WriteString("\n")
	}

	if cfg.APIAddr != "" {
		fmt.Fprintf(&b, "API endpoint was: http://%s/v1/machine\n", cfg.APIAddr)
	}

	b.WriteString(heavyRule)
	return b.String()
}

func writeSection(b *strings.Builder, title string) {
	pad := (len([]rune(lightRule)) - 1 - len(title)) / 2
	b.WriteString(lightRule)
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString(lightRule + "\n")
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 127:
		return "(not found)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a logged output line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent lines kept per stream.
	MaxBufferedLines = 100
)

// OutputLogger logs the output of docker-machine and docker-compose
// processes. Lines that look like problems are logged at warn, everything
// else at debug (only when verbose). The most recent lines of each stream
// are kept for the exit summary.
type OutputLogger struct {
	logger  *slog.Logger
	verbose bool

	mu      sync.Mutex
	buffers map[string]*ring
}

// NewOutputLogger creates an output logger.
func NewOutputLogger(logger *slog.Logger, verbose bool) *OutputLogger {
	return &OutputLogger{
		logger:  logger,
		verbose: verbose,
		buffers: make(map[string]*ring),
	}
}

// ObserveLine records and logs one line read from the named stream
// ("stdout" or "stderr").
func (o *OutputLogger) ObserveLine(ctx context.Context, stream, line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	o.mu.Lock()
	buf, ok := o.buffers[stream]
	if !ok {
		buf = &ring{lines: make([]string, MaxBufferedLines)}
		o.buffers[stream] = buf
	}
	buf.add(line)
	o.mu.Unlock()

	level := ClassifyLine(line)
	if !o.verbose && level == slog.LevelDebug {
		return
	}
	o.logger.Log(ctx, level, "process_output",
		"stream", stream,
		"line", line,
	)
}

// ClassifyLine determines the log level for a line of process output.
func ClassifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	if strings.Contains(lower, "error") ||
		strings.Contains(lower, "failed") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "timed out") {
		return slog.LevelWarn
	}

	if strings.Contains(lower, "warning") ||
		strings.Contains(lower, "retrying") ||
		strings.Contains(lower, "does not exist") {
		return slog.LevelWarn
	}

	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines of stream, oldest first.
func (o *OutputLogger) RecentLines(stream string, n int) []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	buf, ok := o.buffers[stream]
	if !ok {
		return nil
	}
	return buf.recent(n)
}

// ErrorPatterns are the problem patterns counted for the exit summary.
var ErrorPatterns = []string{
	"Error",
	"connection refused",
	"timed out",
	"Permission denied",
	"already exists",
	"not found",
	"exit status",
}

// CountErrors counts occurrences of ErrorPatterns in the buffered lines of
// every stream.
func (o *OutputLogger) CountErrors() map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()

	counts := make(map[string]int)
	for _, buf := range o.buffers {
		for _, line := range buf.lines {
			if line == "" {
				continue
			}
			for _, pattern := range ErrorPatterns {
				if strings.Contains(line, pattern) {
					counts[pattern]++
				}
			}
		}
	}
	return counts
}

// ring is a fixed-size circular buffer of lines.
type ring struct {
	lines []string
	idx   int
}

func (r *ring) add(line string) {
	r.lines[r.idx] = line
	r.idx = (r.idx + 1) % len(r.lines)
}

func (r *ring) recent(n int) []string {
	size := len(r.lines)
	if n > size {
		n = size
	}

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.idx - n + i + size) % size
		if r.lines[idx] != "" {
			out = append(out, r.lines[idx])
		}
	}
	return out
}

// Package metrics provides Prometheus metrics for go-docker-machine.
//
// Every metric carries a "machine" label so one process can drive several
// docker-machine hosts. A nil *Collector is valid and records nothing.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/randomizedcoder/go-docker-machine/internal/task"
)

const namespace = "docker_machine"

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version string
	Machine string
	Driver  string
}

// Collector manages all Prometheus metrics for the engine.
type Collector struct {
	info         *prometheus.GaugeVec
	tasksTotal   *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	exitsTotal   *prometheus.CounterVec
	queueDepth   *prometheus.GaugeVec
	running      *prometheus.GaugeVec
	errorLatched *prometheus.GaugeVec
	outputLines  *prometheus.CounterVec
	lastExitCode *prometheus.GaugeVec
	lastFinished *prometheus.GaugeVec

	// For summary generation
	mu        sync.Mutex
	startTime time.Time
	peakQueue int
	exitCodes map[int]int64
	states    map[task.State]int64
}

// NewCollector creates a collector registered with the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "info",
				Help:      "Information about the managed machine (value always 1)",
			},
			[]string{"version", "machine", "driver"},
		),
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Tasks that reached a terminal state",
			},
			[]string{"machine", "task", "state"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Wall time from spawn to terminal state",
				// docker-machine create routinely takes minutes
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 540},
			},
			[]string{"machine", "task"},
		),
		exitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "process_exits_total",
				Help:      "Process exits by category (success, error, signal)",
			},
			[]string{"machine", "category"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Tasks waiting to run",
			},
			[]string{"machine"},
		),
		running: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "task_running",
				Help:      "1 while a task process is running",
			},
			[]string{"machine"},
		),
		errorLatched: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "error_latched",
				Help:      "1 while the worker is halted on a task error",
			},
			[]string{"machine"},
		),
		outputLines: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "output_lines_total",
				Help:      "Lines read from task processes",
			},
			[]string{"machine", "stream"},
		),
		lastExitCode: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_exit_code",
				Help:      "Exit code of the most recent run of each task",
			},
			[]string{"machine", "task"},
		),
		lastFinished: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_finished_timestamp_seconds",
				Help:      "Unix time the most recent run of each task finished",
			},
			[]string{"machine", "task"},
		),
		startTime: time.Now(),
		exitCodes: make(map[int]int64),
		states:    make(map[task.State]int64),
	}

	registry.MustRegister(
		c.info,
		c.tasksTotal,
		c.taskDuration,
		c.exitsTotal,
		c.queueDepth,
		c.running,
		c.errorLatched,
		c.outputLines,
		c.lastExitCode,
		c.lastFinished,
	)

	c.info.WithLabelValues(cfg.Version, cfg.Machine, cfg.Driver).Set(1)

	return c
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// TaskStarted records that a task process was spawned.
func (c *Collector) TaskStarted(machine string) {
	if c == nil {
		return
	}
	c.running.WithLabelValues(machine).Set(1)
}

// TaskFinished records a terminal task.
func (c *Collector) TaskFinished(rec task.Record) {
	if c == nil {
		return
	}

	c.running.WithLabelValues(rec.Machine).Set(0)
	c.tasksTotal.WithLabelValues(rec.Machine, rec.Name, rec.State.String()).Inc()
	if d := rec.Duration(); d > 0 {
		c.taskDuration.WithLabelValues(rec.Machine, rec.Name).Observe(d.Seconds())
	}
	if !rec.Finished.IsZero() {
		c.lastFinished.WithLabelValues(rec.Machine, rec.Name).Set(float64(rec.Finished.Unix()))
	}

	c.mu.Lock()
	c.states[rec.State]++
	c.mu.Unlock()

	// -1: the process never ran
	if rec.ExitCode < 0 {
		return
	}
	c.lastExitCode.WithLabelValues(rec.Machine, rec.Name).Set(float64(rec.ExitCode))
	c.exitsTotal.WithLabelValues(rec.Machine, exitCategory(rec.ExitCode)).Inc()

	c.mu.Lock()
	c.exitCodes[rec.ExitCode]++
	c.mu.Unlock()
}

// SetQueueDepth updates the pending task count.
func (c *Collector) SetQueueDepth(machine string, depth int) {
	if c == nil {
		return
	}
	c.queueDepth.WithLabelValues(machine).Set(float64(depth))

	c.mu.Lock()
	if depth > c.peakQueue {
		c.peakQueue = depth
	}
	c.mu.Unlock()
}

// SetErrorLatched records whether the worker is halted on an error.
func (c *Collector) SetErrorLatched(machine string, latched bool) {
	if c == nil {
		return
	}
	v := 0.0
	if latched {
		v = 1
	}
	c.errorLatched.WithLabelValues(machine).Set(v)
}

// OutputLine counts one line read from stream ("stdout" or "stderr").
func (c *Collector) OutputLine(machine, stream string) {
	if c == nil {
		return
	}
	c.outputLines.WithLabelValues(machine, stream).Inc()
}

// exitCategory buckets an exit code the way shells report it.
func exitCategory(code int) string {
	switch {
	case code == 0:
		return "success"
	case code > 128:
		return "signal"
	default:
		return "error"
	}
}

// =============================================================================
// Snapshots
// =============================================================================

// TaskCounts returns the terminal task count per state for machine, read
// back from the counters.
func (c *Collector) TaskCounts(machine string) map[string]int64 {
	counts := make(map[string]int64)
	if c == nil {
		return counts
	}

	for _, m := range collect(c.tasksTotal) {
		labels := labelMap(m)
		if labels["machine"] != machine {
			continue
		}
		counts[labels["state"]] += int64(m.GetCounter().GetValue())
	}
	return counts
}

// OutputLineCounts returns lines read per stream for machine.
func (c *Collector) OutputLineCounts(machine string) map[string]int64 {
	counts := make(map[string]int64)
	if c == nil {
		return counts
	}

	for _, m := range collect(c.outputLines) {
		labels := labelMap(m)
		if labels["machine"] != machine {
			continue
		}
		counts[labels["stream"]] += int64(m.GetCounter().GetValue())
	}
	return counts
}

// collect drains a collector into protobuf metrics.
func collect(col prometheus.Collector) []*dto.Metric {
	ch := make(chan prometheus.Metric)
	go func() {
		col.Collect(ch)
		close(ch)
	}()

	var out []*dto.Metric
	for m := range ch {
		pb := &dto.Metric{}
		if err := m.Write(pb); err != nil {
			continue
		}
		out = append(out, pb)
	}
	return out
}

func labelMap(m *dto.Metric) map[string]string {
	labels := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	return labels
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the counters used by the exit summary.
type Summary struct {
	Duration  time.Duration
	PeakQueue int
	ExitCodes map[int]int64
	States    map[string]int64
}

// GenerateSummary creates a summary of the run.
func (c *Collector) GenerateSummary() *Summary {
	if c == nil {
		return &Summary{ExitCodes: map[int]int64{}, States: map[string]int64{}}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:  time.Since(c.startTime),
		PeakQueue: c.peakQueue,
		ExitCodes: make(map[int]int64, len(c.exitCodes)),
		States:    make(map[string]int64, len(c.states)),
	}
	for code, count := range c.exitCodes {
		s.ExitCodes[code] = count
	}
	for state, count := range c.states {
		s.States[state.String()] = count
	}
	return s
}

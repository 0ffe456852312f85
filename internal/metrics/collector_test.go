package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/randomizedcoder/go-docker-machine/internal/task"
)

// =============================================================================
// Test Helpers
// =============================================================================

// newTestCollector creates a collector with an isolated registry.
func newTestCollector() (*Collector, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	c := NewCollectorWithRegistry(CollectorConfig{Version: "test", Machine: "dev", Driver: "digitalocean"}, registry)
	return c, registry
}

func record(name string, state task.State, exitCode int, d time.Duration) task.Record {
	finished := time.Now()
	return task.Record{
		Machine:  "dev",
		Name:     name,
		Bin:      "docker-machine",
		Cmd:      name,
		State:    state,
		ExitCode: exitCode,
		Started:  finished.Add(-d),
		Finished: finished,
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestNewCollector_RegistersInfo(t *testing.T) {
	_, registry := newTestCollector()

	expected := `
# HELP docker_machine_info Information about the managed machine (value always 1)
# TYPE docker_machine_info gauge
docker_machine_info{driver="digitalocean",machine="dev",version="test"} 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "docker_machine_info"); err != nil {
		t.Error(err)
	}
}

func TestTaskFinished(t *testing.T) {
	c, _ := newTestCollector()

	c.TaskStarted("dev")
	if got := testutil.ToFloat64(c.running.WithLabelValues("dev")); got != 1 {
		t.Errorf("running = %v, want 1", got)
	}

	c.TaskFinished(record("create", task.StateSucceeded, 0, 2*time.Second))
	c.TaskFinished(record("ip", task.StateFailed, 1, time.Second))
	c.TaskFinished(record("ip", task.StateTimedOut, 137, time.Second))

	if got := testutil.ToFloat64(c.running.WithLabelValues("dev")); got != 0 {
		t.Errorf("running = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.tasksTotal.WithLabelValues("dev", "ip", "failed")); got != 1 {
		t.Errorf("tasks_total{ip,failed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.exitsTotal.WithLabelValues("dev", "signal")); got != 1 {
		t.Errorf("exits{signal} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.lastExitCode.WithLabelValues("dev", "ip")); got != 137 {
		t.Errorf("last_exit_code{ip} = %v, want 137", got)
	}
	if got := testutil.CollectAndCount(c.taskDuration); got != 2 {
		t.Errorf("duration series = %d, want 2", got)
	}
}

func TestTaskFinished_SpawnFailureSkipsExitCode(t *testing.T) {
	c, _ := newTestCollector()

	c.TaskFinished(record("create", task.StateFailed, -1, 0))

	if got := testutil.CollectAndCount(c.exitsTotal); got != 0 {
		t.Errorf("exit series = %d, want 0", got)
	}
	s := c.GenerateSummary()
	if len(s.ExitCodes) != 0 {
		t.Errorf("ExitCodes = %v, want empty", s.ExitCodes)
	}
	if s.States["failed"] != 1 {
		t.Errorf("States[failed] = %d, want 1", s.States["failed"])
	}
}

func TestExitCategory(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "success"},
		{1, "error"},
		{128, "error"},
		{137, "signal"},
		{143, "signal"},
	}
	for _, tt := range tests {
		if got := exitCategory(tt.code); got != tt.want {
			t.Errorf("exitCategory(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestQueueDepthAndLatch(t *testing.T) {
	c, _ := newTestCollector()

	c.SetQueueDepth("dev", 3)
	c.SetQueueDepth("dev", 5)
	c.SetQueueDepth("dev", 0)
	c.SetErrorLatched("dev", true)

	if got := testutil.ToFloat64(c.queueDepth.WithLabelValues("dev")); got != 0 {
		t.Errorf("queue_depth = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.errorLatched.WithLabelValues("dev")); got != 1 {
		t.Errorf("error_latched = %v, want 1", got)
	}
	if got := c.GenerateSummary().PeakQueue; got != 5 {
		t.Errorf("PeakQueue = %d, want 5", got)
	}

	c.SetErrorLatched("dev", false)
	if got := testutil.ToFloat64(c.errorLatched.WithLabelValues("dev")); got != 0 {
		t.Errorf("error_latched = %v, want 0", got)
	}
}

func TestSnapshots(t *testing.T) {
	c, _ := newTestCollector()

	c.TaskFinished(record("create", task.StateSucceeded, 0, time.Second))
	c.TaskFinished(record("start", task.StateSucceeded, 0, time.Second))
	c.TaskFinished(record("ip", task.StateFailed, 1, time.Second))

	other := record("ip", task.StateFailed, 1, time.Second)
	other.Machine = "other"
	c.TaskFinished(other)

	counts := c.TaskCounts("dev")
	if counts["succeeded"] != 2 || counts["failed"] != 1 {
		t.Errorf("TaskCounts(dev) = %v", counts)
	}

	for i := 0; i < 3; i++ {
		c.OutputLine("dev", "stdout")
	}
	c.OutputLine("dev", "stderr")

	lines := c.OutputLineCounts("dev")
	if lines["stdout"] != 3 || lines["stderr"] != 1 {
		t.Errorf("OutputLineCounts(dev) = %v", lines)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector

	// None of these may panic
	c.TaskStarted("dev")
	c.TaskFinished(record("ip", task.StateSucceeded, 0, time.Second))
	c.SetQueueDepth("dev", 1)
	c.SetErrorLatched("dev", true)
	c.OutputLine("dev", "stdout")

	if len(c.TaskCounts("dev")) != 0 {
		t.Error("nil collector TaskCounts should be empty")
	}
	if s := c.GenerateSummary(); s == nil || s.ExitCodes == nil {
		t.Error("nil collector summary should be usable")
	}
}

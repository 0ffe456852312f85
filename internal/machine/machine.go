// Package machine schedules docker-machine and docker-compose tasks for one
// remote host on top of a controller.
package machine

import (
	"fmt"
	"slices"
	"time"

	"github.com/randomizedcoder/go-docker-machine/internal/controller"
	"github.com/randomizedcoder/go-docker-machine/internal/task"
)

const (
	DefaultMachineBin = task.DefaultBin
	DefaultComposeBin = "docker-compose"

	// ServiceLogTail is passed as --tail to docker-compose logs.
	ServiceLogTail = 256
)

// Config holds configuration for creating a Machine.
type Config struct {
	controller.Config

	MachineBin  string
	ComposeBin  string
	TaskTimeout time.Duration
}

// Machine is a docker-machine host driven by its own controller.
type Machine struct {
	*controller.Controller

	machineBin string
	composeBin string
	timeout    time.Duration
}

// New creates a machine. Nothing is scheduled; call ScheduleBootstrap or the
// individual Schedule methods, then Run.
func New(cfg Config) *Machine {
	m := &Machine{
		Controller: controller.New(cfg.Config),
		machineBin: cfg.MachineBin,
		composeBin: cfg.ComposeBin,
		timeout:    cfg.TaskTimeout,
	}
	if m.machineBin == "" {
		m.machineBin = DefaultMachineBin
	}
	if m.composeBin == "" {
		m.composeBin = DefaultComposeBin
	}
	return m
}

func (m *Machine) String() string {
	return fmt.Sprintf("Docker machine %s, %s, %s", m.Name(), m.IP(), m.Status())
}

func (m *Machine) schedule(cfg task.Config) *task.Task {
	if cfg.Bin == "" {
		cfg.Bin = m.machineBin
	}
	cfg.Dir = m.Cwd()
	cfg.Timeout = m.timeout
	t := task.New(cfg)
	m.AddTask(t)
	return t
}

// ProvisionArgs returns the `create` parameters: --<key> <value> for every
// option in key order, then the machine name.
func (m *Machine) ProvisionArgs() []string {
	opts := m.Config()
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	params := make([]string, 0, 2*len(keys)+1)
	for _, k := range keys {
		params = append(params, "--"+k, opts[k])
	}
	return append(params, m.Name())
}

// ScheduleBootstrap queues provision, start, ip, env and status. Provision
// and start are allowed to fail so an existing machine is reused.
func (m *Machine) ScheduleBootstrap() {
	m.ScheduleProvision(true)
	m.ScheduleStart(true)
	m.ScheduleIP()
	m.ScheduleEnv()
	m.ScheduleStatus()
}

func (m *Machine) ScheduleProvision(allowedToFail bool) *task.Task {
	return m.schedule(task.Config{
		Name:          "provision_machine",
		Cmd:           "create",
		Params:        m.ProvisionArgs(),
		AllowedToFail: allowedToFail,
	})
}

func (m *Machine) ScheduleStart(allowedToFail bool) *task.Task {
	return m.schedule(task.Config{
		Name:          "start_machine",
		Cmd:           "start",
		Params:        []string{m.Name()},
		AllowedToFail: allowedToFail,
	})
}

func (m *Machine) ScheduleStop() *task.Task {
	return m.schedule(task.Config{Name: "stop_machine", Cmd: "stop", Params: []string{m.Name()}})
}

// ScheduleKill forces the machine to stop.
func (m *Machine) ScheduleKill() *task.Task {
	return m.schedule(task.Config{Name: "kill_machine", Cmd: "kill", Params: []string{m.Name()}})
}

// ScheduleRemove removes the machine locally and remotely without prompting.
func (m *Machine) ScheduleRemove() *task.Task {
	return m.schedule(task.Config{Name: "remove_machine", Cmd: "rm", Params: []string{"-y", m.Name()}})
}

// ScheduleDown stops the machine, forcing it if needed, then removes it.
// Stop and kill are allowed to fail since the machine may already be down.
func (m *Machine) ScheduleDown() {
	m.schedule(task.Config{Name: "stop_machine", Cmd: "stop", Params: []string{m.Name()}, AllowedToFail: true})
	m.schedule(task.Config{Name: "kill_machine", Cmd: "kill", Params: []string{m.Name()}, AllowedToFail: true})
	m.ScheduleRemove()
}

// ScheduleIP captures the machine address.
func (m *Machine) ScheduleIP() *task.Task {
	return m.schedule(task.Config{
		Name:    "get_machine_ip",
		Cmd:     "ip",
		Params:  []string{m.Name()},
		Handler: m.IPCapture(),
	})
}

// ScheduleEnv merges the machine's DOCKER_* variables into the environment
// of every later task.
func (m *Machine) ScheduleEnv() *task.Task {
	return m.schedule(task.Config{
		Name:    "get_machine_env",
		Cmd:     "env",
		Params:  []string{m.Name()},
		Handler: m.EnvCapture(),
	})
}

func (m *Machine) ScheduleStatus() *task.Task {
	return m.schedule(task.Config{
		Name:    "get_machine_status",
		Cmd:     "status",
		Params:  []string{m.Name()},
		Handler: m.StatusCapture(),
	})
}

// ScheduleSecureCopyTo copies local src to dst on the machine.
func (m *Machine) ScheduleSecureCopyTo(src, dst string) *task.Task {
	return m.schedule(task.Config{
		Name:   "secure_copy_to",
		Cmd:    "scp",
		Params: []string{"-r", src, m.Name() + ":" + dst},
	})
}

// ScheduleSecureCopyFrom copies src on the machine to local dst.
func (m *Machine) ScheduleSecureCopyFrom(src, dst string) *task.Task {
	return m.schedule(task.Config{
		Name:   "secure_copy_from",
		Cmd:    "scp",
		Params: []string{"-r", m.Name() + ":" + src, dst},
	})
}

// ScheduleStartServices builds and starts the compose project in Cwd on the
// machine. Needs the env captured by ScheduleEnv.
func (m *Machine) ScheduleStartServices() *task.Task {
	return m.schedule(task.Config{
		Name:   "start_services",
		Bin:    m.composeBin,
		Cmd:    "up",
		Params: []string{"--build", "-d"},
	})
}

func (m *Machine) ScheduleServiceLogs() *task.Task {
	return m.schedule(task.Config{
		Name:    "get_service_logs",
		Bin:     m.composeBin,
		Cmd:     "logs",
		Params:  []string{fmt.Sprintf("--tail=%d", ServiceLogTail)},
		Handler: m.LogsCapture(),
	})
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/go-docker-machine/internal/api"
	"github.com/randomizedcoder/go-docker-machine/internal/config"
	"github.com/randomizedcoder/go-docker-machine/internal/controller"
	"github.com/randomizedcoder/go-docker-machine/internal/logging"
	"github.com/randomizedcoder/go-docker-machine/internal/machine"
	"github.com/randomizedcoder/go-docker-machine/internal/metrics"
	"github.com/randomizedcoder/go-docker-machine/internal/preflight"
	"github.com/randomizedcoder/go-docker-machine/internal/stats"
	"github.com/randomizedcoder/go-docker-machine/internal/store"
	"github.com/randomizedcoder/go-docker-machine/internal/tui"
)

var errDashboardClosed = errors.New("dashboard closed with tasks still queued")

// session wires one machine to its observers for a single command.
type session struct {
	cfg       *config.Config
	command   string
	logger    *slog.Logger
	options   map[string]string
	machine   *machine.Machine
	collector *metrics.Collector
	output    *logging.OutputLogger
	history   *store.SQLiteStore
	api       *api.Server

	stdout io.Writer
	stderr io.Writer
}

func newSession(ctx context.Context, cfg *config.Config, command string, stdout, stderr io.Writer) (*session, error) {
	// The dashboard owns the terminal; logs would corrupt it
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.Discard()
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	options, err := machine.DriverOptions(cfg.Driver, cfg.Options)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:     cfg,
		command: command,
		logger:  logger,
		options: options,
		output:  logging.NewOutputLogger(logger, cfg.Verbose),
		stdout:  stdout,
		stderr:  stderr,
	}

	if !cfg.SkipPreflight {
		if err := s.preflight(ctx); err != nil {
			return nil, err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.collector = metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version: version,
		Machine: cfg.Name,
		Driver:  cfg.Driver,
	}, registry)

	ccfg := controller.Config{
		Name:    cfg.Name,
		Cwd:     cfg.Cwd,
		Options: options,
		Env:     cfg.Env,
		Logger:  logger,
		Metrics: s.collector,
		Output:  s.output,
	}

	if cfg.HistoryDB != "" {
		s.history, err = store.NewSQLiteStore(cfg.HistoryDB)
		if err != nil {
			return nil, err
		}
		ccfg.History = s.history
	}

	s.machine = machine.New(machine.Config{
		Config:      ccfg,
		MachineBin:  cfg.MachineBin,
		ComposeBin:  cfg.ComposeBin,
		TaskTimeout: cfg.TaskTimeout,
	})

	if cfg.APIAddr != "" {
		acfg := api.Config{
			Addr:       cfg.APIAddr,
			Machine:    s.machine,
			Gatherer:   registry,
			Registerer: registry,
			Logger:     logger,
		}
		if s.history != nil {
			acfg.History = s.history
		}
		s.api = api.NewServer(acfg)
	}

	return s, nil
}

func (s *session) preflight(ctx context.Context) error {
	opts := preflight.Options{
		MachineBin: s.cfg.MachineBin,
		ComposeBin: s.cfg.ComposeBin,
		Cwd:        s.cfg.Cwd,
	}
	switch s.command {
	case "up":
		opts.DriverOptions = s.options
		opts.NeedCompose = s.cfg.StartServices
	case "services", "logs":
		opts.NeedCompose = true
	}

	result := preflight.RunAll(ctx, opts)
	if !result.Passed || s.cfg.Verbose {
		preflight.PrintResults(s.stderr, result)
	}
	if !result.Passed {
		return errors.New("preflight checks failed (use --skip-preflight to bypass)")
	}
	return nil
}

// Run schedules work and drives the machine until its queue drains, a task
// error halts it, or the process is signalled.
func (s *session) Run(ctx context.Context, schedule func(*machine.Machine)) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = logging.ContextAttrs(ctx, slog.Group("session",
		slog.String("cmd", s.command),
		slog.Int("pid", os.Getpid()),
	))

	s.logger.InfoContext(ctx, "starting",
		"version", version,
		"machine", s.cfg.Name,
		"driver", s.cfg.Driver,
		"cwd", s.cfg.Cwd,
		"api_addr", s.cfg.APIAddr,
	)

	schedule(s.machine)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		err := s.machine.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if s.api != nil {
		g.Go(func() error {
			return s.api.Run(gctx)
		})
	}

	var result error
	g.Go(func() error {
		defer cancel()
		if s.cfg.TUIEnabled {
			result = s.waitTUI(gctx)
		} else {
			result = s.machine.Wait(gctx)
		}
		return nil
	})

	// Worker and API errors outrank the cancellation they cause in Wait
	if err := g.Wait(); err != nil {
		result = err
	}

	s.printSummary()

	if result != nil && ctx.Err() != nil && !errors.As(result, new(*controller.TaskError)) {
		return fmt.Errorf("interrupted: %w", context.Cause(ctx))
	}
	return result
}

// waitTUI runs the dashboard until the user quits. The machine's outcome is
// the latched error at that point, or errDashboardClosed if work remains.
func (s *session) waitTUI(ctx context.Context) error {
	addr := ""
	if s.api != nil {
		addr = s.api.Addr()
	}
	p := tea.NewProgram(tui.New(tui.Config{Source: s.machine, APIAddr: addr}), tea.WithAltScreen())

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		tui.Follow(waitCtx, s.machine, p.Send)
		if waitCtx.Err() != nil {
			tui.SendQuit(p)
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}

	if err := s.machine.Errors(); err != nil {
		return err
	}
	if snap := s.machine.Snapshot(); snap.Busy || snap.Pending > 0 {
		return errDashboardClosed
	}
	return nil
}

func (s *session) printSummary() {
	summary := s.collector.GenerateSummary()
	fmt.Fprint(s.stdout, stats.FormatExitSummary(stats.Summarize(s.machine.Records()), stats.SummaryConfig{
		Machine:     s.cfg.Name,
		IP:          s.machine.IP(),
		Status:      s.machine.Status(),
		Duration:    summary.Duration,
		PeakQueue:   summary.PeakQueue,
		OutputLines: s.collector.OutputLineCounts(s.cfg.Name),
		LastError:   s.machine.Errors(),
		APIAddr:     s.cfg.APIAddr,
	}))
}

// Close releases the history database.
func (s *session) Close() error {
	if s.history == nil {
		return nil
	}
	return s.history.Close()
}

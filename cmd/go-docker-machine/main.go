// Package main provides the go-docker-machine CLI entry point.
//
// go-docker-machine provisions a docker-machine host and drives
// docker-compose on it through a serial task queue.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/randomizedcoder/go-docker-machine/internal/config"
	"github.com/randomizedcoder/go-docker-machine/internal/machine"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-docker-machine
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("go-docker-machine failed", "error", err)
		os.Exit(1)
	}
}

// cli holds the configuration shared by every subcommand.
type cli struct {
	cfg    *config.Config
	binder *config.Binder
}

func newRootCmd() *cobra.Command {
	c := &cli{cfg: config.DefaultConfig()}

	root := &cobra.Command{
		Use:           "go-docker-machine",
		Short:         "Provision a docker-machine host and run docker-compose on it",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	c.binder = config.BindFlags(root.PersistentFlags(), c.cfg)

	up := &cobra.Command{
		Use:   "up",
		Short: "Create (if needed) and start the machine, then read its ip, env and status",
		RunE: c.runE(func(m *machine.Machine) {
			m.ScheduleBootstrap()
			if c.cfg.StartServices {
				m.ScheduleStartServices()
			}
		}),
	}
	up.Flags().BoolVar(&c.cfg.StartServices, "services", c.cfg.StartServices,
		"Run docker-compose up in --cwd after the machine is ready")

	down := &cobra.Command{
		Use:   "down",
		Short: "Stop and remove the machine",
		RunE:  c.runE((*machine.Machine).ScheduleDown),
	}

	services := &cobra.Command{
		Use:   "services",
		Short: "Build and start the compose project in --cwd on the machine",
		RunE: c.runE(func(m *machine.Machine) {
			m.ScheduleEnv()
			m.ScheduleStartServices()
		}),
	}

	logs := &cobra.Command{
		Use:   "logs",
		Short: "Print the tail of the compose service logs",
		RunE: c.runE(func(m *machine.Machine) {
			m.ScheduleEnv()
			m.ScheduleServiceLogs()
		}, func(w io.Writer, m *machine.Machine) {
			fmt.Fprintln(w, m.Logs())
		}),
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Print the machine ip and status",
		RunE: c.runE(func(m *machine.Machine) {
			m.ScheduleIP()
			m.ScheduleStatus()
		}, func(w io.Writer, m *machine.Machine) {
			fmt.Fprintln(w, m)
		}),
	}

	copyTo := &cobra.Command{
		Use:   "copy-to SRC DST",
		Short: "Copy a local path to the machine (docker-machine scp -r)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runE(func(m *machine.Machine) {
				m.ScheduleSecureCopyTo(args[0], args[1])
			})(cmd, args)
		},
	}

	copyFrom := &cobra.Command{
		Use:   "copy-from SRC DST",
		Short: "Copy a path from the machine to the local host (docker-machine scp -r)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runE(func(m *machine.Machine) {
				m.ScheduleSecureCopyFrom(args[0], args[1])
			})(cmd, args)
		},
	}

	root.AddCommand(up, down, services, logs, status, copyTo, copyFrom, newVersionCmd())
	return root
}

// runE resolves the configuration, schedules work on a fresh machine and
// runs it to completion. after, if given, runs only when every task succeeded.
func (c *cli) runE(schedule func(*machine.Machine), after ...func(io.Writer, *machine.Machine)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := c.binder.Resolve(cmd.Flags())
		if err != nil {
			return fmt.Errorf("configuration: %w", err)
		}

		s, err := newSession(cmd.Context(), cfg, cmd.Name(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Run(cmd.Context(), schedule); err != nil {
			return err
		}
		for _, fn := range after {
			fn(cmd.OutOrStdout(), s.machine)
		}
		return nil
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "go-docker-machine: %s\n", version)

			info, ok := debug.ReadBuildInfo()
			if !ok {
				return
			}
			fmt.Fprintf(out, "go:     %s\n", info.GoVersion)
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					fmt.Fprintf(out, "commit: %s\n", s.Value)
				case "vcs.time":
					fmt.Fprintf(out, "date:   %s\n", s.Value)
				}
			}
		},
	}
}

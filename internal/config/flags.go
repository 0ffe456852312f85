package config

import (
	"fmt"
	"maps"

	"github.com/spf13/pflag"
)

// Binder ties a FlagSet to a Config.
type Binder struct {
	cfg     *Config
	file    string
	env     map[string]string
	options map[string]string
}

// Flags whose values are merged rather than re-applied after the file loads.
const (
	flagConfig = "config"
	flagEnv    = "env"
	flagOption = "option"
)

// BindFlags registers every configuration flag on fs, writing into cfg.
func BindFlags(fs *pflag.FlagSet, cfg *Config) *Binder {
	b := &Binder{cfg: cfg}

	fs.StringVar(&b.file, flagConfig, "", "YAML config file (flags override it)")

	// Machine
	fs.StringVarP(&cfg.Name, "name", "n", cfg.Name, "Machine name")
	fs.StringVar(&cfg.Cwd, "cwd", cfg.Cwd, "Working directory for tasks (docker-compose project)")
	fs.StringVar(&cfg.Driver, "driver", cfg.Driver, `Machine driver: "digitalocean", "amazonec2" ("aws"), any other docker-machine driver, or "" (options only)`)
	fs.StringToStringVar(&b.options, flagOption, nil, "Extra create option, e.g. digitalocean-size=s-2vcpu-4gb (can repeat)")
	fs.StringToStringVar(&b.env, flagEnv, nil, "Extra environment variable for tasks, KEY=VALUE (can repeat)")

	// Tasks
	fs.StringVar(&cfg.MachineBin, "machine-bin", cfg.MachineBin, "Path to docker-machine binary")
	fs.StringVar(&cfg.ComposeBin, "compose-bin", cfg.ComposeBin, "Path to docker-compose binary")
	fs.DurationVar(&cfg.TaskTimeout, "timeout", cfg.TaskTimeout, "Per-task timeout")
	fs.BoolVar(&cfg.AllowProvisionFailure, "allow-provision-failure", cfg.AllowProvisionFailure,
		"Treat a failing create (e.g. machine already exists) as success")

	// Observability
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn" or "error"`)
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose logging (includes process output)")
	fs.StringVar(&cfg.APIAddr, "api-addr", cfg.APIAddr, "HTTP API and metrics address (empty disables)")
	fs.StringVar(&cfg.HistoryDB, "history-db", cfg.HistoryDB, "SQLite file for task history (empty disables)")

	// Dashboard / diagnostics
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	return b
}

// Resolve layers the config file (if --config was given) under the flags
// changed on fs and returns the validated Config.
// fs must be the FlagSet that parsed the command line.
func (b *Binder) Resolve(fs *pflag.FlagSet) (*Config, error) {
	changed := make(map[string]string)
	fs.VisitAll(func(f *pflag.Flag) {
		switch f.Name {
		case flagConfig, flagEnv, flagOption:
			return
		}
		if f.Changed {
			changed[f.Name] = f.Value.String()
		}
	})

	if b.file != "" {
		if err := LoadFile(b.file, b.cfg); err != nil {
			return nil, err
		}
		for name, value := range changed {
			if err := fs.Set(name, value); err != nil {
				return nil, fmt.Errorf("re-apply --%s: %w", name, err)
			}
		}
	}

	if b.cfg.Options == nil {
		b.cfg.Options = make(map[string]string)
	}
	if b.cfg.Env == nil {
		b.cfg.Env = make(map[string]string)
	}
	maps.Copy(b.cfg.Options, b.options)
	maps.Copy(b.cfg.Env, b.env)

	if err := Validate(b.cfg); err != nil {
		return nil, err
	}
	return b.cfg, nil
}

// ConfigFile returns the --config path, if any.
func (b *Binder) ConfigFile() string {
	return b.file
}
